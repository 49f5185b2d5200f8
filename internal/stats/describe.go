package stats

import (
	"fmt"
	"sort"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary is the descriptive summary of a series.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Range  float64 `json:"range"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	IQR    float64 `json:"iqr"`
}

// Describe summarizes the non-missing values of a series. The standard
// deviation is the sample (n-1) estimate.
func Describe(series timeseries.Series) (Summary, error) {
	values := series.Valid()
	if len(values) < 2 {
		return Summary{}, fmt.Errorf("describe needs 2 values, have %d: %w", len(values), timeseries.ErrInsufficientData)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(values, nil)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	lo, hi := floats.Min(sorted), floats.Max(sorted)

	return Summary{
		Count:  len(values),
		Mean:   mean,
		Median: Quantile(sorted, 0.5),
		StdDev: std,
		Min:    lo,
		Max:    hi,
		Range:  hi - lo,
		Q1:     q1,
		Q3:     q3,
		IQR:    q3 - q1,
	}, nil
}
