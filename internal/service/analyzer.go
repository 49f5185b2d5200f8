package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/anomaly"
	"github.com/septivank/waterquality-analytics-worker/internal/config"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/metrics"
	"github.com/septivank/waterquality-analytics-worker/internal/stats"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/septivank/waterquality-analytics-worker/internal/trend"
)

// Analyzer runs the analysis engine on series already in memory. The job
// consumer and the HTTP API share it.
type Analyzer struct {
	defaults   config.AnalysisConfig
	summarizer *fleet.Summarizer
}

// NewAnalyzer creates an analyzer that fills unset tunables from defaults
func NewAnalyzer(defaults config.AnalysisConfig, summarizer *fleet.Summarizer) *Analyzer {
	return &Analyzer{defaults: defaults, summarizer: summarizer}
}

// PointAnomalyResult is the outcome of a point_anomaly analysis
type PointAnomalyResult struct {
	SensorID     string                `json:"sensor_id,omitempty"`
	Parameter    string                `json:"parameter,omitempty"`
	Method       string                `json:"method"`
	TotalPoints  int                   `json:"total_points"`
	AnomalyCount int                   `json:"anomaly_count"`
	Points       []anomaly.PointResult `json:"points"`
}

// DescribeResult holds per-parameter summaries and, for two or more
// parameters, their Pearson matrix over shared timestamps
type DescribeResult struct {
	SensorID    string                   `json:"sensor_id,omitempty"`
	Summaries   map[string]stats.Summary `json:"summaries"`
	Correlation *stats.CorrelationMatrix `json:"correlation,omitempty"`
}

// DetectionConfig resolves request parameters into a detection config.
// A rolling window given in hours is converted with the median sampling
// interval of series.
func (a *Analyzer) DetectionConfig(p *DetectionParams, series timeseries.Series) (anomaly.Config, error) {
	if p == nil {
		p = &DetectionParams{}
	}

	switch p.Method {
	case "", anomaly.MethodZScore:
		return anomaly.ZScore{Threshold: orDefault(p.Threshold, a.defaults.ZScoreThreshold)}, nil
	case anomaly.MethodIQR:
		return anomaly.IQR{Multiplier: orDefault(p.Multiplier, a.defaults.IQRMultiplier)}, nil
	case anomaly.MethodRollingZScore:
		cfg := anomaly.RollingZScore{Threshold: orDefault(p.Threshold, a.defaults.RollingThreshold)}
		if p.Window != nil {
			cfg.Window = *p.Window
			return cfg, nil
		}
		hours := orDefault(p.WindowHours, a.defaults.RollingWindowHours)
		window, err := series.WindowForSpan(time.Duration(hours * float64(time.Hour)))
		if err != nil {
			return nil, fmt.Errorf("rolling window of %gh: %w", hours, err)
		}
		cfg.Window = window
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown detection method %q: %w", p.Method, timeseries.ErrInvalidConfig)
	}
}

// PointAnomalies flags individual anomalous readings of one series
func (a *Analyzer) PointAnomalies(series timeseries.Series, p *DetectionParams) (PointAnomalyResult, error) {
	cfg, err := a.DetectionConfig(p, series)
	if err != nil {
		return PointAnomalyResult{}, err
	}

	points, err := anomaly.Detect(series, cfg)
	if err != nil {
		return PointAnomalyResult{}, err
	}

	count := anomaly.Count(points)
	metrics.AnomaliesDetected.WithLabelValues(cfg.Method()).Add(float64(count))

	return PointAnomalyResult{
		Method:       cfg.Method(),
		TotalPoints:  series.Len(),
		AnomalyCount: count,
		Points:       points,
	}, nil
}

// Correlation flags rows of pair that break the joint distribution of the
// two parameters
func (a *Analyzer) Correlation(pair timeseries.Pair, confidence *float64) (anomaly.CorrelationReport, error) {
	report, err := anomaly.DetectCorrelationAnomalies(pair, orDefault(confidence, a.defaults.Confidence))
	if err != nil {
		return anomaly.CorrelationReport{}, err
	}
	metrics.AnomaliesDetected.WithLabelValues("mahalanobis").Add(float64(report.AnomalyCount))
	return report, nil
}

// Trend tests the daily means of series for a monotonic trend
func (a *Analyzer) Trend(series timeseries.Series) (trend.Report, error) {
	return trend.AnalyzeTrend(series)
}

// Decompose splits the daily means of series into weekly components
func (a *Analyzer) Decompose(series timeseries.Series) (trend.Decomposition, error) {
	return trend.Decompose(series)
}

// FleetSummary tallies point anomalies across every series of the fleet.
// A rolling window given in hours is converted with the first series, in
// sensor and parameter order, whose sampling interval is known.
func (a *Analyzer) FleetSummary(ctx context.Context, data map[fleet.Key]timeseries.Series, p *DetectionParams) (fleet.Summary, error) {
	cfg, err := a.fleetConfig(data, p)
	if err != nil {
		return nil, err
	}

	summary, err := a.summarizer.Summarize(ctx, data, cfg)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, e := range summary {
		total += e.AnomalyCount
	}
	metrics.AnomaliesDetected.WithLabelValues(cfg.Method()).Add(float64(total))
	return summary, nil
}

func (a *Analyzer) fleetConfig(data map[fleet.Key]timeseries.Series, p *DetectionParams) (anomaly.Config, error) {
	if p == nil || p.Method != anomaly.MethodRollingZScore || p.Window != nil {
		return a.DetectionConfig(p, timeseries.Series{})
	}

	keys := make([]fleet.Key, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SensorID != keys[j].SensorID {
			return keys[i].SensorID < keys[j].SensorID
		}
		return keys[i].Parameter < keys[j].Parameter
	})

	err := fmt.Errorf("no fleet series to size the rolling window: %w", timeseries.ErrInsufficientData)
	for _, k := range keys {
		var cfg anomaly.Config
		if cfg, err = a.DetectionConfig(p, data[k]); err == nil {
			return cfg, nil
		}
	}
	return nil, err
}

// Describe summarizes each named series. With two or more series it also
// correlates them over their shared timestamps.
func (a *Analyzer) Describe(names []string, series []timeseries.Series) (DescribeResult, error) {
	if len(names) != len(series) {
		return DescribeResult{}, fmt.Errorf("%d names for %d series: %w", len(names), len(series), timeseries.ErrMisalignedInput)
	}

	result := DescribeResult{Summaries: make(map[string]stats.Summary, len(names))}
	for i, name := range names {
		summary, err := stats.Describe(series[i])
		if err != nil {
			return DescribeResult{}, fmt.Errorf("describe %s: %w", name, err)
		}
		result.Summaries[name] = summary
	}

	if len(series) >= 2 {
		matrix, err := stats.Correlations(names, timeseries.Align(series...))
		if err != nil {
			return DescribeResult{}, err
		}
		result.Correlation = &matrix
	}
	return result, nil
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
