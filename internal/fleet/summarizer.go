package fleet

import (
	"context"
	"fmt"
	"sort"

	"github.com/septivank/waterquality-analytics-worker/internal/anomaly"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Key identifies one series of the fleet.
type Key struct {
	SensorID  string `json:"sensor_id"`
	Parameter string `json:"parameter"`
}

// Entry is the anomaly tally of one fleet series. Error is set when
// detection failed for the series; its counts are then zero.
type Entry struct {
	SensorID       string  `json:"sensor_id"`
	Parameter      string  `json:"parameter"`
	TotalPoints    int     `json:"total_points"`
	AnomalyCount   int     `json:"anomaly_count"`
	AnomalyPercent float64 `json:"anomaly_percent"`
	Error          string  `json:"error,omitempty"`
}

// Summary is sorted by AnomalyPercent descending, then SensorID and
// Parameter ascending.
type Summary []Entry

// Summarizer runs point anomaly detection across a fleet with a bounded
// number of workers.
type Summarizer struct {
	workers int
	logger  *zap.Logger
}

// NewSummarizer creates a summarizer. workers below 1 means 1.
func NewSummarizer(workers int, logger *zap.Logger) *Summarizer {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{workers: workers, logger: logger}
}

// Summarize detects anomalies in every series of the fleet. A series that
// fails detection is recorded with zero anomalies and does not stop the
// others. Only an invalid config or a cancelled context fails the call.
func (s *Summarizer) Summarize(ctx context.Context, fleet map[Key]timeseries.Series, cfg anomaly.Config) (Summary, error) {
	if cfg == nil {
		return nil, fmt.Errorf("detection config is nil: %w", timeseries.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(fleet))
	for k := range fleet {
		keys = append(keys, k)
	}

	summary := make(Summary, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary[i] = s.summarizeOne(key, fleet[key], cfg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fleet summary: %w", err)
	}

	sort.Slice(summary, func(i, j int) bool {
		a, b := summary[i], summary[j]
		if a.AnomalyPercent != b.AnomalyPercent {
			return a.AnomalyPercent > b.AnomalyPercent
		}
		if a.SensorID != b.SensorID {
			return a.SensorID < b.SensorID
		}
		return a.Parameter < b.Parameter
	})

	return summary, nil
}

func (s *Summarizer) summarizeOne(key Key, series timeseries.Series, cfg anomaly.Config) Entry {
	entry := Entry{
		SensorID:    key.SensorID,
		Parameter:   key.Parameter,
		TotalPoints: series.Len(),
	}

	results, err := anomaly.Detect(series, cfg)
	if err != nil {
		s.logger.Warn("anomaly detection failed for fleet series",
			zap.String("sensor_id", key.SensorID),
			zap.String("parameter", key.Parameter),
			zap.String("method", cfg.Method()),
			zap.Error(err),
		)
		entry.Error = err.Error()
		return entry
	}

	entry.AnomalyCount = anomaly.Count(results)
	if entry.TotalPoints > 0 {
		entry.AnomalyPercent = float64(entry.AnomalyCount) / float64(entry.TotalPoints) * 100
	}
	return entry
}
