package trend

import (
	"fmt"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
)

const (
	// Period is the seasonal period in days.
	Period = 7

	// MinDecomposeDays is the shortest daily series Decompose accepts.
	MinDecomposeDays = 2 * Period
)

// Decomposition splits a daily series into trend, seasonal and residual
// parts with Observed = Trend + Seasonal + Residual wherever Trend is
// defined. Trend and Residual are nil at the edges, where the centered
// moving average has no full window.
type Decomposition struct {
	Period          int         `json:"period"`
	Timestamps      []time.Time `json:"timestamps"`
	Observed        []float64   `json:"observed"`
	Trend           []*float64  `json:"trend"`
	Seasonal        []float64   `json:"seasonal"`
	Residual        []*float64  `json:"residual"`
	SeasonalFactors []float64   `json:"seasonal_factors"`
}

// Decompose resamples series to daily means and performs an additive
// seasonal decomposition with a weekly period.
func Decompose(series timeseries.Series) (Decomposition, error) {
	daily := series.Daily()
	if n := daily.Len(); n < MinDecomposeDays {
		return Decomposition{}, fmt.Errorf("decomposition needs %d daily points, have %d: %w", MinDecomposeDays, n, timeseries.ErrInsufficientData)
	}
	return decompose(daily.Timestamps(), daily.Values(), Period), nil
}

func decompose(timestamps []time.Time, observed []float64, period int) Decomposition {
	n := len(observed)
	trend := movingAverage(observed, period)

	sums := make([]float64, period)
	counts := make([]int, period)
	for i, t := range trend {
		if t == nil {
			continue
		}
		sums[i%period] += observed[i] - *t
		counts[i%period]++
	}

	factors := make([]float64, period)
	var mean float64
	for k := range factors {
		if counts[k] > 0 {
			factors[k] = sums[k] / float64(counts[k])
		}
		mean += factors[k]
	}
	mean /= float64(period)
	for k := range factors {
		factors[k] -= mean
	}

	seasonal := make([]float64, n)
	residual := make([]*float64, n)
	for i := range seasonal {
		seasonal[i] = factors[i%period]
		if trend[i] != nil {
			r := observed[i] - *trend[i] - seasonal[i]
			residual[i] = &r
		}
	}

	return Decomposition{
		Period:          period,
		Timestamps:      timestamps,
		Observed:        observed,
		Trend:           trend,
		Seasonal:        seasonal,
		Residual:        residual,
		SeasonalFactors: factors,
	}
}

// movingAverage is the centered moving average of span period, or the
// 2 x period average with half weights at both ends when period is even.
func movingAverage(values []float64, period int) []*float64 {
	weights := make([]float64, 0, period+1)
	if period%2 == 0 {
		weights = append(weights, 0.5/float64(period))
		for i := 1; i < period; i++ {
			weights = append(weights, 1/float64(period))
		}
		weights = append(weights, 0.5/float64(period))
	} else {
		for i := 0; i < period; i++ {
			weights = append(weights, 1/float64(period))
		}
	}

	half := len(weights) / 2
	out := make([]*float64, len(values))
	for i := half; i < len(values)-half; i++ {
		var sum float64
		for k, w := range weights {
			sum += w * values[i-half+k]
		}
		out[i] = &sum
	}
	return out
}
