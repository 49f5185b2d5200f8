package stats

import (
	"fmt"
	"math"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"gonum.org/v1/gonum/stat"
)

// Strength classifies the magnitude of a correlation coefficient.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
)

// Direction is the sign of a correlation coefficient.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNone     Direction = "none"
)

// ClassifyCorrelation buckets r: |r| > 0.7 strong, > 0.3 moderate, else weak.
func ClassifyCorrelation(r float64) (Strength, Direction) {
	if math.IsNaN(r) {
		return StrengthWeak, DirectionNone
	}

	strength := StrengthWeak
	switch a := math.Abs(r); {
	case a > 0.7:
		strength = StrengthStrong
	case a > 0.3:
		strength = StrengthModerate
	}

	direction := DirectionNone
	switch {
	case r > 0:
		direction = DirectionPositive
	case r < 0:
		direction = DirectionNegative
	}
	return strength, direction
}

// Pearson returns the correlation of the rows where both x and y are
// present. It needs at least two complete rows.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("pearson inputs of length %d and %d: %w", len(x), len(y), timeseries.ErrMisalignedInput)
	}

	xs, ys := CompleteRows(x, y)
	if len(xs) < 2 {
		return 0, fmt.Errorf("pearson needs 2 complete rows, have %d: %w", len(xs), timeseries.ErrInsufficientData)
	}
	return stat.Correlation(xs, ys, nil), nil
}

// CompleteRows drops the rows where either value is missing.
func CompleteRows(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if timeseries.IsMissing(x[i]) || timeseries.IsMissing(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

// CorrelationMatrix is a symmetric Pearson matrix across named parameters.
type CorrelationMatrix struct {
	Names  []string    `json:"names"`
	Values [][]float64 `json:"values"`
}

// Correlations computes pairwise Pearson coefficients between the series
// of one sensor. All series must share timestamps. Pairs without enough
// complete rows or with zero spread are reported as 0.
func Correlations(names []string, series []timeseries.Series) (CorrelationMatrix, error) {
	if len(names) != len(series) {
		return CorrelationMatrix{}, fmt.Errorf("%d names for %d series: %w", len(names), len(series), timeseries.ErrMisalignedInput)
	}

	values := make([][]float64, len(series))
	for i := range series {
		if i > 0 {
			if _, err := timeseries.NewPair(series[0], series[i]); err != nil {
				return CorrelationMatrix{}, fmt.Errorf("series %q: %w", names[i], err)
			}
		}
		values[i] = series[i].Values()
	}

	m := make([][]float64, len(series))
	for i := range m {
		m[i] = make([]float64, len(series))
		m[i][i] = 1
	}
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			r, err := Pearson(values[i], values[j])
			if err != nil || math.IsNaN(r) {
				r = 0
			}
			m[i][j], m[j][i] = r, r
		}
	}

	out := make([]string, len(names))
	copy(out, names)
	return CorrelationMatrix{Names: out, Values: m}, nil
}
