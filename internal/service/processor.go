package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/waterquality-analytics-worker/internal/config"
	"github.com/septivank/waterquality-analytics-worker/internal/db"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/logging"
	"github.com/septivank/waterquality-analytics-worker/internal/metrics"
	"github.com/septivank/waterquality-analytics-worker/internal/mq"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"go.uber.org/zap"
)

// SeriesStore loads readings and records analysis runs
type SeriesStore interface {
	LoadSeries(ctx context.Context, sensorID, parameter string, from, to time.Time) (timeseries.Series, error)
	LoadPair(ctx context.Context, sensorID, paramX, paramY string, from, to time.Time) (timeseries.Pair, error)
	LoadFleet(ctx context.Context, sensorIDs, parameters []string, from, to time.Time) (map[fleet.Key]timeseries.Series, error)
	InsertAnalysisRun(ctx context.Context, run *db.AnalysisRun) error
}

// EventPublisher announces completed runs
type EventPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, event mq.AnalysisCompletedEvent) error
}

// AnalysisService executes analysis jobs against stored readings
type AnalysisService struct {
	store      SeriesStore
	publisher  EventPublisher
	analyzer   *Analyzer
	parameters []string
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	store SeriesStore,
	publisher EventPublisher,
	analyzer *Analyzer,
	cfg *config.Config,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		store:      store,
		publisher:  publisher,
		analyzer:   analyzer,
		parameters: cfg.Analysis.Parameters,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessMessage handles one job message. Malformed jobs are returned as
// permanent errors; infrastructure failures are returned as they are so
// the consumer can retry them.
func (s *AnalysisService) ProcessMessage(ctx context.Context, body []byte) error {
	var req AnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return mq.Permanent(fmt.Errorf("%w: %v", ErrMalformedRequest, err))
	}
	if err := req.Validate(); err != nil {
		logging.WithRequestID(s.logger, req.RequestID).Warn("rejecting analysis request", zap.Error(err))
		return mq.Permanent(err)
	}

	_, err := s.Run(ctx, &req)
	return err
}

// Run executes req, stores the run and publishes its completion. Engine
// errors produce a failed run and a nil error.
func (s *AnalysisService) Run(ctx context.Context, req *AnalysisRequest) (*db.AnalysisRun, error) {
	runID := uuid.New()
	logger := logging.WithRun(logging.WithRequestID(s.logger, req.RequestID), runID.String(), req.Kind)
	logger.Info("running analysis",
		zap.Strings("sensor_ids", req.sensorIDs()),
		zap.Time("from", req.From),
		zap.Time("to", req.To),
	)

	started := s.now()
	result, anomalies, err := s.execute(ctx, req)

	run := &db.AnalysisRun{
		ID:        runID,
		RequestID: req.RequestID,
		Kind:      req.Kind,
		Status:    db.RunStatusSucceeded,
		StartedAt: started,
	}

	if err != nil {
		if !IsAnalysisError(err) {
			logger.Error("analysis aborted", zap.Error(err))
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		logger.Warn("analysis rejected input", zap.Error(err))
		msg := err.Error()
		run.Status = db.RunStatusFailed
		run.Error = &msg
	}

	if run.Params, err = json.Marshal(req); err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	if result != nil {
		if run.Result, err = json.Marshal(result); err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	run.CompletedAt = s.now()

	if err := s.store.InsertAnalysisRun(ctx, run); err != nil {
		logger.Error("failed to store analysis run", zap.Error(err))
		return nil, fmt.Errorf("failed to store run %s: %w", runID, err)
	}

	metrics.AnalysisRunsTotal.WithLabelValues(run.Kind, run.Status, "queue").Inc()
	metrics.AnalysisDuration.WithLabelValues(run.Kind).Observe(run.CompletedAt.Sub(started).Seconds())

	event := mq.AnalysisCompletedEvent{
		RunID:        run.ID,
		RequestID:    run.RequestID,
		Kind:         run.Kind,
		Status:       run.Status,
		SensorIDs:    req.sensorIDs(),
		AnomalyCount: anomalies,
		Error:        run.Error,
		CompletedAt:  run.CompletedAt,
	}
	if err := s.publisher.PublishAnalysisCompleted(ctx, event); err != nil {
		// The run is stored; a lost event is not worth a redelivery
		metrics.EventsPublishFailed.Inc()
		logger.Error("failed to publish analysis event", zap.Error(err))
	}

	logger.Info("analysis run stored", zap.String("status", run.Status))
	return run, nil
}

// execute loads the data a request needs and runs the engine. The second
// return value is the anomaly count for kinds that flag anomalies.
func (s *AnalysisService) execute(ctx context.Context, req *AnalysisRequest) (any, *int, error) {
	switch req.Kind {
	case KindPointAnomaly:
		series, err := s.store.LoadSeries(ctx, req.SensorID, req.Parameter, req.From, req.To)
		if err != nil {
			return nil, nil, err
		}
		result, err := s.analyzer.PointAnomalies(series, req.Detection)
		if err != nil {
			return nil, nil, err
		}
		result.SensorID, result.Parameter = req.SensorID, req.Parameter
		return result, &result.AnomalyCount, nil

	case KindCorrelation:
		pair, err := s.store.LoadPair(ctx, req.SensorID, req.Parameters[0], req.Parameters[1], req.From, req.To)
		if err != nil {
			return nil, nil, err
		}
		report, err := s.analyzer.Correlation(pair, req.Confidence)
		if err != nil {
			return nil, nil, err
		}
		return report, &report.AnomalyCount, nil

	case KindTrend:
		series, err := s.store.LoadSeries(ctx, req.SensorID, req.Parameter, req.From, req.To)
		if err != nil {
			return nil, nil, err
		}
		report, err := s.analyzer.Trend(series)
		if err != nil {
			return nil, nil, err
		}
		return report, nil, nil

	case KindDecompose:
		series, err := s.store.LoadSeries(ctx, req.SensorID, req.Parameter, req.From, req.To)
		if err != nil {
			return nil, nil, err
		}
		d, err := s.analyzer.Decompose(series)
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil

	case KindFleetSummary:
		parameters := req.Parameters
		if len(parameters) == 0 {
			parameters = s.parameters
		}
		data, err := s.store.LoadFleet(ctx, req.SensorIDs, parameters, req.From, req.To)
		if err != nil {
			return nil, nil, err
		}
		summary, err := s.analyzer.FleetSummary(ctx, data, req.Detection)
		if err != nil {
			return nil, nil, err
		}
		total := 0
		for _, e := range summary {
			total += e.AnomalyCount
		}
		return summary, &total, nil

	case KindDescribe:
		names := req.describeParameters()
		series := make([]timeseries.Series, len(names))
		for i, name := range names {
			loaded, err := s.store.LoadSeries(ctx, req.SensorID, name, req.From, req.To)
			if err != nil {
				return nil, nil, err
			}
			series[i] = loaded
		}
		result, err := s.analyzer.Describe(names, series)
		if err != nil {
			return nil, nil, err
		}
		result.SensorID = req.SensorID
		return result, nil, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedRequest, req.Kind)
}
