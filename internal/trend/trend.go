// Package trend detects monotonic trends and weekly seasonality in daily
// resampled sensor series.
package trend

import (
	"fmt"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"gonum.org/v1/gonum/stat"
)

// Significance is the p-value below which a trend is reported.
const Significance = 0.05

// Direction of a significant trend.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	NoTrend    Direction = "none"
)

// Report is the outcome of AnalyzeTrend. Slope is in value units per day.
type Report struct {
	SeriesLength int       `json:"series_length"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Tau          float64   `json:"tau"`
	PValue       float64   `json:"p_value"`
	Slope        float64   `json:"slope"`
	Intercept    float64   `json:"intercept"`
	Direction    Direction `json:"direction"`
	Significant  bool      `json:"significant"`
}

// AnalyzeTrend resamples series to daily means and runs a Kendall rank
// correlation test of the daily values against their day index, together
// with an ordinary least-squares fit for the trend line.
func AnalyzeTrend(series timeseries.Series) (Report, error) {
	daily := series.Daily()
	n := daily.Len()
	if n < 2 {
		return Report{}, fmt.Errorf("trend needs 2 daily points, have %d: %w", n, timeseries.ErrInsufficientData)
	}

	x := dayIndex(n)
	y := daily.Values()

	tau, p := kendall(x, y)
	intercept, slope := stat.LinearRegression(x, y, nil, false)

	report := Report{
		SeriesLength: n,
		Start:        daily.At(0).Timestamp,
		End:          daily.At(n - 1).Timestamp,
		Tau:          tau,
		PValue:       p,
		Slope:        slope,
		Intercept:    intercept,
		Direction:    NoTrend,
		Significant:  p < Significance,
	}
	if report.Significant {
		switch {
		case tau > 0:
			report.Direction = Increasing
		case tau < 0:
			report.Direction = Decreasing
		}
	}
	return report, nil
}

func dayIndex(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}
