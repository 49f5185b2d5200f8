package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/anomaly"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
)

// Analysis kinds
const (
	KindPointAnomaly = "point_anomaly"
	KindCorrelation  = "correlation"
	KindTrend        = "trend"
	KindDecompose    = "decompose"
	KindFleetSummary = "fleet_summary"
	KindDescribe     = "describe"
)

// ErrMalformedRequest marks a request that can never succeed as sent
var ErrMalformedRequest = errors.New("malformed analysis request")

// AnalysisRequest is the job message consumed from the queue
type AnalysisRequest struct {
	RequestID  string           `json:"request_id"`
	Kind       string           `json:"kind"`
	SensorID   string           `json:"sensor_id,omitempty"`
	SensorIDs  []string         `json:"sensor_ids,omitempty"`
	Parameter  string           `json:"parameter,omitempty"`
	Parameters []string         `json:"parameters,omitempty"`
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	Detection  *DetectionParams `json:"detection,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
}

// DetectionParams selects a point detection method. Unset tunables fall
// back to configured defaults.
type DetectionParams struct {
	Method      string   `json:"method"`
	Threshold   *float64 `json:"threshold,omitempty"`
	Multiplier  *float64 `json:"multiplier,omitempty"`
	Window      *int     `json:"window,omitempty"`
	WindowHours *float64 `json:"window_hours,omitempty"`
}

// Validate checks the fields each kind needs
func (r *AnalysisRequest) Validate() error {
	if r.From.IsZero() || r.To.IsZero() || !r.From.Before(r.To) {
		return fmt.Errorf("%w: from must be before to", ErrMalformedRequest)
	}

	switch r.Kind {
	case KindPointAnomaly, KindTrend, KindDecompose:
		if r.SensorID == "" || r.Parameter == "" {
			return fmt.Errorf("%w: %s needs sensor_id and parameter", ErrMalformedRequest, r.Kind)
		}
	case KindCorrelation:
		if r.SensorID == "" || len(r.Parameters) != 2 {
			return fmt.Errorf("%w: correlation needs sensor_id and exactly two parameters", ErrMalformedRequest)
		}
		if r.Parameters[0] == r.Parameters[1] {
			return fmt.Errorf("%w: correlation parameters must differ", ErrMalformedRequest)
		}
	case KindDescribe:
		if r.SensorID == "" || (r.Parameter == "" && len(r.Parameters) == 0) {
			return fmt.Errorf("%w: describe needs sensor_id and parameters", ErrMalformedRequest)
		}
	case KindFleetSummary:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedRequest, r.Kind)
	}

	if r.Detection != nil {
		switch r.Detection.Method {
		case "", anomaly.MethodZScore, anomaly.MethodIQR, anomaly.MethodRollingZScore:
		default:
			return fmt.Errorf("%w: unknown detection method %q", ErrMalformedRequest, r.Detection.Method)
		}
	}
	return nil
}

// describeParameters returns the parameters a describe request names
func (r *AnalysisRequest) describeParameters() []string {
	if len(r.Parameters) > 0 {
		return r.Parameters
	}
	return []string{r.Parameter}
}

// sensorIDs returns every sensor the request touches
func (r *AnalysisRequest) sensorIDs() []string {
	if r.SensorID != "" {
		return []string{r.SensorID}
	}
	return r.SensorIDs
}

// IsAnalysisError reports whether err came from the analysis engine
// rejecting its input, as opposed to infrastructure failing.
func IsAnalysisError(err error) bool {
	return errors.Is(err, timeseries.ErrInsufficientData) ||
		errors.Is(err, timeseries.ErrDegenerateVariance) ||
		errors.Is(err, timeseries.ErrSingularCovariance) ||
		errors.Is(err, timeseries.ErrMisalignedInput) ||
		errors.Is(err, timeseries.ErrInvalidConfig)
}
