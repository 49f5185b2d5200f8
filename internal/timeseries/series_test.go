package timeseries_test

import (
	"math"
	"testing"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestNew_SortsAndDeduplicates(t *testing.T) {
	s, err := timeseries.New([]timeseries.Sample{
		{Timestamp: base.Add(30 * time.Minute), Value: 3},
		{Timestamp: base, Value: 1},
		{Timestamp: base.Add(15 * time.Minute), Value: 2},
		{Timestamp: base.Add(15 * time.Minute), Value: 2.5},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2.5, 3}, s.Values())
	assert.True(t, s.At(0).Timestamp.Equal(base))
}

func TestNew_RejectsInfinity(t *testing.T) {
	_, err := timeseries.New([]timeseries.Sample{{Timestamp: base, Value: math.Inf(1)}})
	assert.Error(t, err)
}

func TestFromArrays_LengthMismatch(t *testing.T) {
	_, err := timeseries.FromArrays([]time.Time{base}, []float64{1, 2})
	assert.ErrorIs(t, err, timeseries.ErrMisalignedInput)
}

func TestValid_SkipsMissing(t *testing.T) {
	s, err := timeseries.FromArrays(
		[]time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)},
		[]float64{1, timeseries.Missing, 3},
	)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 3}, s.Valid())
	assert.Equal(t, 2, s.ValidCount())
	assert.Nil(t, timeseries.Nullable(s.At(1).Value))
}

func TestDaily_AveragesAndSkipsGaps(t *testing.T) {
	s, err := timeseries.New([]timeseries.Sample{
		{Timestamp: base.Add(1 * time.Hour), Value: 2},
		{Timestamp: base.Add(5 * time.Hour), Value: 4},
		{Timestamp: base.Add(6 * time.Hour), Value: timeseries.Missing},
		// 2024-03-02 only holds a missing value
		{Timestamp: base.Add(30 * time.Hour), Value: timeseries.Missing},
		{Timestamp: base.Add(49 * time.Hour), Value: 10},
	})
	require.NoError(t, err)

	daily := s.Daily()
	require.Equal(t, 2, daily.Len())
	assert.Equal(t, []float64{3, 10}, daily.Values())
	assert.True(t, daily.At(0).Timestamp.Equal(base))
	assert.True(t, daily.At(1).Timestamp.Equal(base.Add(48*time.Hour)))
}

func TestWindowForSpan_UsesObservedInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		span     time.Duration
		want     int
	}{
		{"15 minute sampling", 15 * time.Minute, 24 * time.Hour, 96},
		{"5 minute sampling", 5 * time.Minute, 24 * time.Hour, 288},
		{"hourly sampling", time.Hour, 6 * time.Hour, 6},
		{"span shorter than interval", time.Hour, 10 * time.Minute, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]timeseries.Sample, 20)
			for i := range samples {
				samples[i] = timeseries.Sample{Timestamp: base.Add(time.Duration(i) * tt.interval), Value: float64(i)}
			}
			s, err := timeseries.New(samples)
			require.NoError(t, err)

			got, err := s.WindowForSpan(tt.span)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowForSpan_Errors(t *testing.T) {
	one, err := timeseries.New([]timeseries.Sample{{Timestamp: base, Value: 1}})
	require.NoError(t, err)

	_, err = one.WindowForSpan(time.Hour)
	assert.ErrorIs(t, err, timeseries.ErrInsufficientData)

	_, err = one.WindowForSpan(0)
	assert.ErrorIs(t, err, timeseries.ErrInvalidConfig)
}

func TestMedianInterval_IgnoresOccasionalGap(t *testing.T) {
	var samples []timeseries.Sample
	ts := base
	for i := 0; i < 10; i++ {
		samples = append(samples, timeseries.Sample{Timestamp: ts, Value: 1})
		ts = ts.Add(10 * time.Minute)
		if i == 4 {
			ts = ts.Add(3 * time.Hour)
		}
	}
	s, err := timeseries.New(samples)
	require.NoError(t, err)

	got, err := s.MedianInterval()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, got)
}

func TestNewPair_Alignment(t *testing.T) {
	x, err := timeseries.FromArrays([]time.Time{base, base.Add(time.Minute)}, []float64{1, 2})
	require.NoError(t, err)
	y, err := timeseries.FromArrays([]time.Time{base, base.Add(2 * time.Minute)}, []float64{1, 2})
	require.NoError(t, err)
	short, err := timeseries.FromArrays([]time.Time{base}, []float64{1})
	require.NoError(t, err)

	_, err = timeseries.NewPair(x, y)
	assert.ErrorIs(t, err, timeseries.ErrMisalignedInput)

	_, err = timeseries.NewPair(x, short)
	assert.ErrorIs(t, err, timeseries.ErrMisalignedInput)

	p, err := timeseries.NewPair(x, x)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestAlignPair_InnerJoin(t *testing.T) {
	x, err := timeseries.FromArrays(
		[]time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)},
		[]float64{1, 2, 3},
	)
	require.NoError(t, err)
	y, err := timeseries.FromArrays(
		[]time.Time{base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)},
		[]float64{20, 30, 40},
	)
	require.NoError(t, err)

	p := timeseries.AlignPair(x, y)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []float64{2, 3}, p.X.Values())
	assert.Equal(t, []float64{20, 30}, p.Y.Values())
	_, err = timeseries.NewPair(p.X, p.Y)
	assert.NoError(t, err)
}

func TestAlign_ThreeSeries(t *testing.T) {
	mk := func(hours ...int) timeseries.Series {
		ts := make([]time.Time, len(hours))
		vs := make([]float64, len(hours))
		for i, h := range hours {
			ts[i] = base.Add(time.Duration(h) * time.Hour)
			vs[i] = float64(h)
		}
		s, err := timeseries.FromArrays(ts, vs)
		require.NoError(t, err)
		return s
	}

	aligned := timeseries.Align(mk(0, 1, 2, 3), mk(1, 2, 3), mk(0, 2, 3, 4))

	require.Len(t, aligned, 3)
	for _, s := range aligned {
		assert.Equal(t, []float64{2, 3}, s.Values())
	}
}
