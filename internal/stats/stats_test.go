package stats_test

import (
	"math"
	"testing"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/stats"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(t *testing.T, values ...float64) timeseries.Series {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, len(values))
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * 15 * time.Minute)
	}
	s, err := timeseries.FromArrays(ts, values)
	require.NoError(t, err)
	return s
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.75, stats.Quantile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 2.5, stats.Quantile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 3.25, stats.Quantile(sorted, 0.75), 1e-12)
	assert.Equal(t, 1.0, stats.Quantile(sorted, 0))
	assert.Equal(t, 4.0, stats.Quantile(sorted, 1))
	assert.True(t, math.IsNaN(stats.Quantile(nil, 0.5)))
}

func TestQuartiles_UnsortedInput(t *testing.T) {
	q1, q3 := stats.Quartiles([]float64{9, 1, 5, 3, 7})
	assert.InDelta(t, 3.0, q1, 1e-12)
	assert.InDelta(t, 7.0, q3, 1e-12)
}

func TestDescribe(t *testing.T) {
	got, err := stats.Describe(series(t, 7, 7, timeseries.Missing, 7, 7, 12))
	require.NoError(t, err)

	assert.Equal(t, 5, got.Count)
	assert.InDelta(t, 8.2, got.Mean, 1e-12)
	assert.InDelta(t, 7.0, got.Median, 1e-12)
	assert.InDelta(t, math.Sqrt(5.05), got.StdDev, 1e-12)
	assert.Equal(t, 7.0, got.Min)
	assert.Equal(t, 12.0, got.Max)
	assert.Equal(t, 5.0, got.Range)
	assert.InDelta(t, 7.0, got.Q1, 1e-12)
	assert.InDelta(t, 7.0, got.Q3, 1e-12)
	assert.InDelta(t, 0.0, got.IQR, 1e-12)
}

func TestDescribe_InsufficientData(t *testing.T) {
	_, err := stats.Describe(series(t, 1))
	assert.ErrorIs(t, err, timeseries.ErrInsufficientData)
}

func TestClassifyCorrelation(t *testing.T) {
	tests := []struct {
		r         float64
		strength  stats.Strength
		direction stats.Direction
	}{
		{0.9, stats.StrengthStrong, stats.DirectionPositive},
		{-0.75, stats.StrengthStrong, stats.DirectionNegative},
		{0.7, stats.StrengthModerate, stats.DirectionPositive},
		{-0.31, stats.StrengthModerate, stats.DirectionNegative},
		{0.3, stats.StrengthWeak, stats.DirectionPositive},
		{0, stats.StrengthWeak, stats.DirectionNone},
		{math.NaN(), stats.StrengthWeak, stats.DirectionNone},
	}

	for _, tt := range tests {
		strength, direction := stats.ClassifyCorrelation(tt.r)
		assert.Equal(t, tt.strength, strength, "r=%v", tt.r)
		assert.Equal(t, tt.direction, direction, "r=%v", tt.r)
	}
}

func TestPearson_SkipsIncompleteRows(t *testing.T) {
	r, err := stats.Pearson([]float64{1, 2, timeseries.Missing, 3}, []float64{2, 4, 100, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)

	_, err = stats.Pearson([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, timeseries.ErrMisalignedInput)
}

func TestCorrelations_Matrix(t *testing.T) {
	ph := series(t, 7.0, 7.2, 7.1, 7.4, 7.3)
	temp := series(t, 20, 22, 21, 24, 23)
	turbidity := series(t, 5, 3, 4, 1, 2)

	m, err := stats.Correlations([]string{"ph", "temp", "turbidity"}, []timeseries.Series{ph, temp, turbidity})
	require.NoError(t, err)

	require.Len(t, m.Values, 3)
	assert.Equal(t, 1.0, m.Values[0][0])
	assert.InDelta(t, 1.0, m.Values[0][1], 1e-9)
	assert.InDelta(t, -1.0, m.Values[1][2], 1e-9)
	assert.Equal(t, m.Values[1][2], m.Values[2][1])
}

func TestCorrelations_Misaligned(t *testing.T) {
	_, err := stats.Correlations([]string{"a", "b"}, []timeseries.Series{series(t, 1, 2, 3), series(t, 1, 2)})
	assert.ErrorIs(t, err, timeseries.ErrMisalignedInput)
}
