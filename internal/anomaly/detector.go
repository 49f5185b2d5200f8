package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/stats"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"gonum.org/v1/gonum/stat"
)

// relativeZeroSpread is the spread, relative to the data scale, below which
// a standard deviation counts as zero.
const relativeZeroSpread = 1e-12

// PointResult is the per-sample outcome of point anomaly detection. Score is
// nil where it is undefined; such points are never anomalous. Bounds are
// set by IQR detection only.
type PointResult struct {
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Score      *float64  `json:"score"`
	IsAnomaly  bool      `json:"is_anomaly"`
	LowerBound *float64  `json:"lower_bound,omitempty"`
	UpperBound *float64  `json:"upper_bound,omitempty"`
}

// Detect flags point anomalies in series with the configured method.
func Detect(series timeseries.Series, cfg Config) ([]PointResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("detection config is nil: %w", timeseries.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case ZScore:
		return detectZScore(series, c)
	case IQR:
		return detectIQR(series, c)
	case RollingZScore:
		return detectRolling(series, c)
	default:
		return nil, fmt.Errorf("unsupported detection method %q: %w", cfg.Method(), timeseries.ErrInvalidConfig)
	}
}

// Count returns the number of anomalous points.
func Count(results []PointResult) int {
	n := 0
	for _, r := range results {
		if r.IsAnomaly {
			n++
		}
	}
	return n
}

func detectZScore(series timeseries.Series, c ZScore) ([]PointResult, error) {
	valid := series.Valid()
	if len(valid) < 2 {
		return nil, fmt.Errorf("zscore needs 2 values, have %d: %w", len(valid), timeseries.ErrInsufficientData)
	}

	mean, std := stat.MeanStdDev(valid, nil)
	degenerate := isZeroSpread(std, mean)

	results := newResults(series)
	for i := range results {
		v := results[i].Value
		if degenerate || timeseries.IsMissing(v) {
			continue
		}
		score := math.Abs(v-mean) / std
		results[i].Score = &score
		results[i].IsAnomaly = score > c.Threshold
	}
	return results, nil
}

func detectIQR(series timeseries.Series, c IQR) ([]PointResult, error) {
	valid := series.Valid()
	if len(valid) < 2 {
		return nil, fmt.Errorf("iqr needs 2 values, have %d: %w", len(valid), timeseries.ErrInsufficientData)
	}

	q1, q3 := stats.Quartiles(valid)
	iqr := q3 - q1
	lower := q1 - c.Multiplier*iqr
	upper := q3 + c.Multiplier*iqr

	results := newResults(series)
	for i := range results {
		lo, hi := lower, upper
		results[i].LowerBound = &lo
		results[i].UpperBound = &hi

		v := results[i].Value
		if timeseries.IsMissing(v) {
			continue
		}
		results[i].IsAnomaly = v < lower || v > upper
	}
	return results, nil
}

func detectRolling(series timeseries.Series, c RollingZScore) ([]PointResult, error) {
	if n := series.ValidCount(); n < c.Window {
		return nil, fmt.Errorf("rolling zscore with window %d needs %d values, have %d: %w", c.Window, c.Window, n, timeseries.ErrInsufficientData)
	}

	values := series.Values()
	means, stds := centeredRollingStats(values, c.Window)

	results := newResults(series)
	for i := range results {
		v := results[i].Value
		if timeseries.IsMissing(v) || math.IsNaN(means[i]) || math.IsNaN(stds[i]) {
			continue
		}
		if isZeroSpread(stds[i], means[i]) {
			continue
		}
		score := math.Abs(v-means[i]) / stds[i]
		results[i].Score = &score
		results[i].IsAnomaly = score > c.Threshold
	}
	return results, nil
}

func newResults(series timeseries.Series) []PointResult {
	results := make([]PointResult, series.Len())
	for i := range results {
		s := series.At(i)
		results[i] = PointResult{Timestamp: s.Timestamp, Value: s.Value}
	}
	return results
}

func isZeroSpread(std, mean float64) bool {
	if math.IsNaN(std) || std <= 0 {
		return true
	}
	return std <= relativeZeroSpread*math.Max(1, math.Abs(mean))
}

// MarshalJSON encodes a missing value as null.
func (r PointResult) MarshalJSON() ([]byte, error) {
	type alias PointResult
	return json.Marshal(struct {
		alias
		Value *float64 `json:"value"`
	}{
		alias: alias(r),
		Value: timeseries.Nullable(r.Value),
	})
}
