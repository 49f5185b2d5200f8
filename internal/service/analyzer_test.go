package service

import (
	"testing"

	"github.com/septivank/waterquality-analytics-worker/internal/anomaly"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(testConfig().Analysis, fleet.NewSummarizer(1, nil))
}

func TestDetectionConfig_Defaults(t *testing.T) {
	a := newTestAnalyzer()

	cfg, err := a.DetectionConfig(nil, timeseries.Series{})
	require.NoError(t, err)
	assert.Equal(t, anomaly.ZScore{Threshold: 3}, cfg)

	cfg, err = a.DetectionConfig(&DetectionParams{Method: "iqr"}, timeseries.Series{})
	require.NoError(t, err)
	assert.Equal(t, anomaly.IQR{Multiplier: 1.5}, cfg)

	cfg, err = a.DetectionConfig(&DetectionParams{Method: "zscore", Threshold: ptr(2)}, timeseries.Series{})
	require.NoError(t, err)
	assert.Equal(t, anomaly.ZScore{Threshold: 2}, cfg)
}

func TestDetectionConfig_RollingWindowFromHours(t *testing.T) {
	a := newTestAnalyzer()
	series := hourly(t, 72, 7)

	cfg, err := a.DetectionConfig(&DetectionParams{Method: "rolling_zscore"}, series)
	require.NoError(t, err)
	assert.Equal(t, anomaly.RollingZScore{Window: 24, Threshold: 3}, cfg)

	cfg, err = a.DetectionConfig(&DetectionParams{Method: "rolling_zscore", WindowHours: ptr(6)}, series)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.(anomaly.RollingZScore).Window)

	window := 5
	cfg, err = a.DetectionConfig(&DetectionParams{Method: "rolling_zscore", Window: &window}, timeseries.Series{})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.(anomaly.RollingZScore).Window)
}

func TestDetectionConfig_RollingNeedsSamplingInterval(t *testing.T) {
	a := newTestAnalyzer()

	_, err := a.DetectionConfig(&DetectionParams{Method: "rolling_zscore"}, timeseries.Series{})
	require.Error(t, err)
	assert.True(t, IsAnalysisError(err))
}

func TestDescribe_SingleParameter(t *testing.T) {
	a := newTestAnalyzer()

	result, err := a.Describe([]string{"ph"}, []timeseries.Series{hourly(t, 24, 7)})
	require.NoError(t, err)
	assert.Nil(t, result.Correlation)
	assert.Equal(t, 24, result.Summaries["ph"].Count)
}

func TestIsAnalysisError(t *testing.T) {
	assert.True(t, IsAnalysisError(timeseries.ErrSingularCovariance))
	assert.False(t, IsAnalysisError(ErrMalformedRequest))
	assert.False(t, IsAnalysisError(nil))
}
