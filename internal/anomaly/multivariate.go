package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/stats"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence is the chi-square confidence used for the Mahalanobis
// threshold when the caller does not choose one.
const DefaultConfidence = 0.95

// minSingularDet is the covariance determinant below which the matrix is
// treated as singular. Standardized inputs put the diagonal at 1, so the
// determinant is 1 - r^2.
const minSingularDet = 1e-10

// MahalanobisResult is the per-sample outcome of correlation anomaly
// detection. Distance is nil for rows with a missing coordinate.
type MahalanobisResult struct {
	Timestamp time.Time `json:"timestamp"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Distance  *float64  `json:"distance"`
	IsAnomaly bool      `json:"is_anomaly"`
}

// MarshalJSON encodes missing coordinates as null.
func (r MahalanobisResult) MarshalJSON() ([]byte, error) {
	type alias MahalanobisResult
	return json.Marshal(struct {
		alias
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}{
		alias: alias(r),
		X:     timeseries.Nullable(r.X),
		Y:     timeseries.Nullable(r.Y),
	})
}

// CorrelationReport is the outcome of DetectCorrelationAnomalies.
type CorrelationReport struct {
	Results      []MahalanobisResult `json:"results"`
	Confidence   float64             `json:"confidence"`
	Threshold    float64             `json:"threshold"`
	Correlation  float64             `json:"correlation"`
	Strength     stats.Strength      `json:"strength"`
	Direction    stats.Direction     `json:"direction"`
	AnomalyCount int                 `json:"anomaly_count"`
}

// DetectCorrelationAnomalies flags rows of pair whose Mahalanobis distance
// in standardized space exceeds the chi-square (2 degrees of freedom)
// quantile at the given confidence.
func DetectCorrelationAnomalies(pair timeseries.Pair, confidence float64) (CorrelationReport, error) {
	if !(confidence > 0 && confidence < 1) {
		return CorrelationReport{}, fmt.Errorf("confidence %v must be in (0, 1): %w", confidence, timeseries.ErrInvalidConfig)
	}
	if _, err := timeseries.NewPair(pair.X, pair.Y); err != nil {
		return CorrelationReport{}, err
	}

	x, y := pair.X.Values(), pair.Y.Values()
	xs, ys := stats.CompleteRows(x, y)
	n := len(xs)
	if n < 3 {
		return CorrelationReport{}, fmt.Errorf("mahalanobis needs 3 complete rows, have %d: %w", n, timeseries.ErrDegenerateVariance)
	}

	meanX, stdX := stat.MeanStdDev(xs, nil)
	meanY, stdY := stat.MeanStdDev(ys, nil)
	if isZeroSpread(stdX, meanX) || isZeroSpread(stdY, meanY) {
		return CorrelationReport{}, fmt.Errorf("zero spread in pair (std %v, %v): %w", stdX, stdY, timeseries.ErrDegenerateVariance)
	}

	standardized := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		standardized.Set(i, 0, (xs[i]-meanX)/stdX)
		standardized.Set(i, 1, (ys[i]-meanY)/stdY)
	}

	cov := mat.NewSymDense(2, nil)
	stat.CovarianceMatrix(cov, standardized, nil)
	if det := mat.Det(cov); math.Abs(det) < minSingularDet {
		return CorrelationReport{}, fmt.Errorf("covariance determinant %g: %w", det, timeseries.ErrSingularCovariance)
	}

	var inv mat.Dense
	if err := inv.Inverse(cov); err != nil {
		return CorrelationReport{}, fmt.Errorf("invert covariance: %v: %w", err, timeseries.ErrSingularCovariance)
	}
	a, b, c, d := inv.At(0, 0), inv.At(0, 1), inv.At(1, 0), inv.At(1, 1)

	threshold := math.Sqrt(distuv.ChiSquared{K: 2}.Quantile(confidence))
	r := stat.Correlation(xs, ys, nil)
	strength, direction := stats.ClassifyCorrelation(r)

	report := CorrelationReport{
		Results:     make([]MahalanobisResult, pair.Len()),
		Confidence:  confidence,
		Threshold:   threshold,
		Correlation: r,
		Strength:    strength,
		Direction:   direction,
	}

	for i := range report.Results {
		res := MahalanobisResult{
			Timestamp: pair.X.At(i).Timestamp,
			X:         x[i],
			Y:         y[i],
		}
		if !timeseries.IsMissing(x[i]) && !timeseries.IsMissing(y[i]) {
			u := (x[i] - meanX) / stdX
			v := (y[i] - meanY) / stdY
			sq := u*(a*u+b*v) + v*(c*u+d*v)
			if sq < 0 {
				sq = 0
			}
			dist := math.Sqrt(sq)
			res.Distance = &dist
			res.IsAnomaly = dist > threshold
			if res.IsAnomaly {
				report.AnomalyCount++
			}
		}
		report.Results[i] = res
	}

	return report, nil
}
