package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Missing marks an absent value.
var Missing = math.NaN()

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Sample is a single timestamped reading
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Series is an ordered, timestamp-indexed sequence of samples. A Series is
// never mutated after construction.
type Series struct {
	samples []Sample
}

// New builds a series from samples in any order. Samples are sorted
// chronologically; when two samples share a timestamp the later one in the
// input wins. Infinite values are rejected.
func New(samples []Sample) (Series, error) {
	cp := make([]Sample, len(samples))
	copy(cp, samples)

	for i, s := range cp {
		if math.IsInf(s.Value, 0) {
			return Series{}, fmt.Errorf("sample %d at %s: value must be finite or missing", i, s.Timestamp.Format(time.RFC3339))
		}
	}

	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Timestamp.Before(cp[j].Timestamp)
	})

	out := cp[:0]
	for _, s := range cp {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(s.Timestamp) {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}

	return Series{samples: out}, nil
}

// FromArrays builds a series from parallel timestamp and value slices.
func FromArrays(timestamps []time.Time, values []float64) (Series, error) {
	if len(timestamps) != len(values) {
		return Series{}, fmt.Errorf("%d timestamps for %d values: %w", len(timestamps), len(values), ErrMisalignedInput)
	}

	samples := make([]Sample, len(values))
	for i := range values {
		samples[i] = Sample{Timestamp: timestamps[i], Value: values[i]}
	}
	return New(samples)
}

// Len returns the number of samples, missing ones included.
func (s Series) Len() int {
	return len(s.samples)
}

// At returns the i-th sample in chronological order.
func (s Series) At(i int) Sample {
	return s.samples[i]
}

// Samples returns a copy of the samples.
func (s Series) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Timestamps returns a copy of the timestamps.
func (s Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Timestamp
	}
	return out
}

// Values returns a copy of the values, missing ones as NaN.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Value
	}
	return out
}

// Valid returns the non-missing values in chronological order.
func (s Series) Valid() []float64 {
	out := make([]float64, 0, len(s.samples))
	for _, smp := range s.samples {
		if !IsMissing(smp.Value) {
			out = append(out, smp.Value)
		}
	}
	return out
}

// ValidCount returns the number of non-missing values.
func (s Series) ValidCount() int {
	n := 0
	for _, smp := range s.samples {
		if !IsMissing(smp.Value) {
			n++
		}
	}
	return n
}

// Daily resamples the series to one value per calendar day, the mean of all
// non-missing samples that fall on that day. Days are taken in the location
// of each timestamp. Days without data produce no row.
func (s Series) Daily() Series {
	var (
		out   []Sample
		day   time.Time
		sum   float64
		count int
	)

	flush := func() {
		if count > 0 {
			out = append(out, Sample{Timestamp: day, Value: sum / float64(count)})
		}
		sum, count = 0, 0
	}

	for i, smp := range s.samples {
		d := startOfDay(smp.Timestamp)
		if i == 0 || !d.Equal(day) {
			flush()
			day = d
		}
		if IsMissing(smp.Value) {
			continue
		}
		sum += smp.Value
		count++
	}
	flush()

	return Series{samples: out}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MedianInterval returns the median gap between consecutive samples.
func (s Series) MedianInterval() (time.Duration, error) {
	if len(s.samples) < 2 {
		return 0, fmt.Errorf("median interval needs 2 samples, have %d: %w", len(s.samples), ErrInsufficientData)
	}

	gaps := make([]time.Duration, 0, len(s.samples)-1)
	for i := 1; i < len(s.samples); i++ {
		gaps = append(gaps, s.samples[i].Timestamp.Sub(s.samples[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })

	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid], nil
	}
	return (gaps[mid-1] + gaps[mid]) / 2, nil
}

// WindowForSpan converts a time span into a rolling window size in samples
// using the series' own median sampling interval. The result is at least 1.
func (s Series) WindowForSpan(span time.Duration) (int, error) {
	if span <= 0 {
		return 0, fmt.Errorf("window span %s must be positive: %w", span, ErrInvalidConfig)
	}

	interval, err := s.MedianInterval()
	if err != nil {
		return 0, err
	}
	if interval <= 0 {
		return 0, fmt.Errorf("median sampling interval is zero: %w", ErrDegenerateVariance)
	}

	window := int(span / interval)
	if window < 1 {
		window = 1
	}
	return window, nil
}

// Nullable returns nil for a missing value and a pointer to v otherwise.
func Nullable(v float64) *float64 {
	if IsMissing(v) {
		return nil
	}
	return &v
}
