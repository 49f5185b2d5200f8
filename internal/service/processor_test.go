package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/config"
	"github.com/septivank/waterquality-analytics-worker/internal/db"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/mq"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	from  = start
	to    = start.AddDate(0, 1, 0)
)

type fakeStore struct {
	series  map[string]timeseries.Series
	loadErr error
	runs    []*db.AnalysisRun
	fleetOf []string
}

func (f *fakeStore) LoadSeries(_ context.Context, sensorID, parameter string, _, _ time.Time) (timeseries.Series, error) {
	if f.loadErr != nil {
		return timeseries.Series{}, f.loadErr
	}
	return f.series[sensorID+"/"+parameter], nil
}

func (f *fakeStore) LoadPair(ctx context.Context, sensorID, paramX, paramY string, from, to time.Time) (timeseries.Pair, error) {
	x, err := f.LoadSeries(ctx, sensorID, paramX, from, to)
	if err != nil {
		return timeseries.Pair{}, err
	}
	y, _ := f.LoadSeries(ctx, sensorID, paramY, from, to)
	return timeseries.AlignPair(x, y), nil
}

func (f *fakeStore) LoadFleet(_ context.Context, sensorIDs, parameters []string, _, _ time.Time) (map[fleet.Key]timeseries.Series, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.fleetOf = parameters
	out := make(map[fleet.Key]timeseries.Series)
	for _, sensor := range sensorIDs {
		for _, p := range parameters {
			if s, ok := f.series[sensor+"/"+p]; ok {
				out[fleet.Key{SensorID: sensor, Parameter: p}] = s
			}
		}
	}
	return out, nil
}

func (f *fakeStore) InsertAnalysisRun(_ context.Context, run *db.AnalysisRun) error {
	f.runs = append(f.runs, run)
	return nil
}

type fakePublisher struct {
	events []mq.AnalysisCompletedEvent
	err    error
}

func (f *fakePublisher) PublishAnalysisCompleted(_ context.Context, event mq.AnalysisCompletedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			ZScoreThreshold:    3,
			IQRMultiplier:      1.5,
			RollingWindowHours: 24,
			RollingThreshold:   3,
			Confidence:         0.95,
			FleetWorkers:       2,
			Parameters:         []string{"ph", "temp"},
		},
	}
}

func newTestService(t *testing.T, store *fakeStore, pub *fakePublisher) *AnalysisService {
	cfg := testConfig()
	logger := zaptest.NewLogger(t)
	analyzer := NewAnalyzer(cfg.Analysis, fleet.NewSummarizer(cfg.Analysis.FleetWorkers, logger))
	return NewAnalysisService(store, pub, analyzer, cfg, logger)
}

// hourly builds an hourly series with a small wobble and a spike at the
// given indexes.
func hourly(t *testing.T, n int, level float64, spikes ...int) timeseries.Series {
	t.Helper()
	samples := make([]timeseries.Sample, n)
	for i := range samples {
		samples[i] = timeseries.Sample{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Value:     level + 0.1*math.Sin(float64(i)),
		}
	}
	for _, i := range spikes {
		samples[i].Value = level * 5
	}
	s, err := timeseries.New(samples)
	require.NoError(t, err)
	return s
}

func message(t *testing.T, req AnalysisRequest) []byte {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func TestProcessMessage_MalformedJSON(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, &fakePublisher{})

	err := svc.ProcessMessage(context.Background(), []byte(`{"kind":`))

	require.Error(t, err)
	assert.True(t, mq.IsPermanent(err))
	assert.ErrorIs(t, err, ErrMalformedRequest)
	assert.Empty(t, store.runs)
}

func TestProcessMessage_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  AnalysisRequest
	}{
		{"unknown kind", AnalysisRequest{Kind: "forecast", SensorID: "s1", Parameter: "ph", From: from, To: to}},
		{"inverted window", AnalysisRequest{Kind: KindTrend, SensorID: "s1", Parameter: "ph", From: to, To: from}},
		{"missing parameter", AnalysisRequest{Kind: KindPointAnomaly, SensorID: "s1", From: from, To: to}},
		{"one correlation parameter", AnalysisRequest{Kind: KindCorrelation, SensorID: "s1", Parameters: []string{"ph"}, From: from, To: to}},
		{"unknown method", AnalysisRequest{Kind: KindPointAnomaly, SensorID: "s1", Parameter: "ph", From: from, To: to, Detection: &DetectionParams{Method: "dbscan"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &fakeStore{}, &fakePublisher{})
			err := svc.ProcessMessage(context.Background(), message(t, tt.req))
			assert.True(t, mq.IsPermanent(err))
			assert.ErrorIs(t, err, ErrMalformedRequest)
		})
	}
}

func TestProcessMessage_PointAnomalySucceeded(t *testing.T) {
	store := &fakeStore{series: map[string]timeseries.Series{"s1/ph": hourly(t, 48, 7, 20)}}
	pub := &fakePublisher{}
	svc := newTestService(t, store, pub)

	err := svc.ProcessMessage(context.Background(), message(t, AnalysisRequest{
		RequestID: "req-1",
		Kind:      KindPointAnomaly,
		SensorID:  "s1",
		Parameter: "ph",
		From:      from,
		To:        to,
	}))
	require.NoError(t, err)

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, db.RunStatusSucceeded, run.Status)
	assert.Equal(t, "req-1", run.RequestID)
	assert.Nil(t, run.Error)

	var result PointAnomalyResult
	require.NoError(t, json.Unmarshal(run.Result, &result))
	assert.Equal(t, "zscore", result.Method)
	assert.Equal(t, 48, result.TotalPoints)
	assert.Equal(t, 1, result.AnomalyCount)

	require.Len(t, pub.events, 1)
	assert.Equal(t, run.ID, pub.events[0].RunID)
	require.NotNil(t, pub.events[0].AnomalyCount)
	assert.Equal(t, 1, *pub.events[0].AnomalyCount)
}

func TestProcessMessage_EngineErrorStoredAsFailedRun(t *testing.T) {
	store := &fakeStore{series: map[string]timeseries.Series{"s1/temp": hourly(t, 12, 20)}}
	pub := &fakePublisher{}
	svc := newTestService(t, store, pub)

	err := svc.ProcessMessage(context.Background(), message(t, AnalysisRequest{
		Kind:      KindTrend,
		SensorID:  "s1",
		Parameter: "temp",
		From:      from,
		To:        to,
	}))
	require.NoError(t, err)

	require.Len(t, store.runs, 1)
	assert.Equal(t, db.RunStatusFailed, store.runs[0].Status)
	require.NotNil(t, store.runs[0].Error)
	assert.Nil(t, store.runs[0].Result)
	require.Len(t, pub.events, 1)
	assert.Equal(t, db.RunStatusFailed, pub.events[0].Status)
}

func TestProcessMessage_InfrastructureErrorIsRetryable(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("connection refused")}
	pub := &fakePublisher{}
	svc := newTestService(t, store, pub)

	err := svc.ProcessMessage(context.Background(), message(t, AnalysisRequest{
		Kind:      KindPointAnomaly,
		SensorID:  "s1",
		Parameter: "ph",
		From:      from,
		To:        to,
	}))

	require.Error(t, err)
	assert.False(t, mq.IsPermanent(err))
	assert.Empty(t, store.runs)
	assert.Empty(t, pub.events)
}

func TestProcessMessage_PublishFailureKeepsRun(t *testing.T) {
	store := &fakeStore{series: map[string]timeseries.Series{"s1/ph": hourly(t, 48, 7)}}
	svc := newTestService(t, store, &fakePublisher{err: errors.New("channel closed")})

	err := svc.ProcessMessage(context.Background(), message(t, AnalysisRequest{
		Kind:      KindPointAnomaly,
		SensorID:  "s1",
		Parameter: "ph",
		From:      from,
		To:        to,
	}))

	require.NoError(t, err)
	assert.Len(t, store.runs, 1)
}

func TestRun_Correlation(t *testing.T) {
	ph := hourly(t, 100, 7)
	temp := hourly(t, 100, 20, 40)
	store := &fakeStore{series: map[string]timeseries.Series{"s1/ph": ph, "s1/temp": temp}}
	svc := newTestService(t, store, &fakePublisher{})

	run, err := svc.Run(context.Background(), &AnalysisRequest{
		Kind:       KindCorrelation,
		SensorID:   "s1",
		Parameters: []string{"ph", "temp"},
		From:       from,
		To:         to,
	})
	require.NoError(t, err)
	assert.Equal(t, db.RunStatusSucceeded, run.Status)

	var report struct {
		Confidence   float64 `json:"confidence"`
		AnomalyCount int     `json:"anomaly_count"`
	}
	require.NoError(t, json.Unmarshal(run.Result, &report))
	assert.Equal(t, 0.95, report.Confidence)
	assert.GreaterOrEqual(t, report.AnomalyCount, 1)
}

func TestRun_FleetSummaryUsesConfiguredParameters(t *testing.T) {
	store := &fakeStore{series: map[string]timeseries.Series{
		"s1/ph":   hourly(t, 48, 7, 24),
		"s1/temp": hourly(t, 48, 20),
		"s2/ph":   hourly(t, 48, 7),
	}}
	svc := newTestService(t, store, &fakePublisher{})

	run, err := svc.Run(context.Background(), &AnalysisRequest{
		Kind:      KindFleetSummary,
		SensorIDs: []string{"s1", "s2"},
		From:      from,
		To:        to,
		Detection: &DetectionParams{Method: "rolling_zscore", WindowHours: ptr(24)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ph", "temp"}, store.fleetOf)

	var summary fleet.Summary
	require.NoError(t, json.Unmarshal(run.Result, &summary))
	require.Len(t, summary, 3)
	assert.Equal(t, "s1", summary[0].SensorID)
	assert.Equal(t, "ph", summary[0].Parameter)
	assert.Greater(t, summary[0].AnomalyPercent, 0.0)
}

func TestRun_DescribeWithCorrelation(t *testing.T) {
	store := &fakeStore{series: map[string]timeseries.Series{
		"s1/ph":   hourly(t, 48, 7),
		"s1/temp": hourly(t, 48, 20),
	}}
	svc := newTestService(t, store, &fakePublisher{})

	run, err := svc.Run(context.Background(), &AnalysisRequest{
		Kind:       KindDescribe,
		SensorID:   "s1",
		Parameters: []string{"ph", "temp"},
		From:       from,
		To:         to,
	})
	require.NoError(t, err)

	var result DescribeResult
	require.NoError(t, json.Unmarshal(run.Result, &result))
	assert.Len(t, result.Summaries, 2)
	assert.Equal(t, 48, result.Summaries["ph"].Count)
	require.NotNil(t, result.Correlation)
	assert.InDelta(t, 1.0, result.Correlation.Values[0][1], 1e-9)
}
