package timeseries

import "errors"

// Analysis error taxonomy. All conditions are local and recoverable; callers
// match them with errors.Is.
var (
	// ErrInsufficientData is returned when a series has too few points for
	// the requested method or window.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateVariance is returned when zero spread prevents
	// standardization.
	ErrDegenerateVariance = errors.New("degenerate variance")

	// ErrSingularCovariance is returned when a covariance matrix cannot be
	// inverted.
	ErrSingularCovariance = errors.New("singular covariance matrix")

	// ErrMisalignedInput is returned when paired series do not share
	// timestamps.
	ErrMisalignedInput = errors.New("misaligned input")

	// ErrInvalidConfig is returned for out-of-range tunables.
	ErrInvalidConfig = errors.New("invalid configuration")
)
