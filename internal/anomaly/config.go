package anomaly

import (
	"fmt"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
)

// Method names used on the wire and in metrics.
const (
	MethodZScore        = "zscore"
	MethodIQR           = "iqr"
	MethodRollingZScore = "rolling_zscore"
)

// Config selects a point detection method and carries its parameters. The
// set of implementations is closed: only ZScore, IQR and RollingZScore
// satisfy it.
type Config interface {
	// Method returns the wire name of the method.
	Method() string
	// Validate checks the parameters.
	Validate() error

	detectionConfig()
}

// ZScore flags points whose distance from the series mean exceeds
// Threshold sample standard deviations.
type ZScore struct {
	Threshold float64 `json:"threshold"`
}

// IQR flags points outside [Q1 - Multiplier*IQR, Q3 + Multiplier*IQR].
type IQR struct {
	Multiplier float64 `json:"multiplier"`
}

// RollingZScore flags points whose distance from a centered rolling mean
// exceeds Threshold rolling standard deviations. Window is a sample count.
type RollingZScore struct {
	Window    int     `json:"window"`
	Threshold float64 `json:"threshold"`
}

func (ZScore) detectionConfig()        {}
func (IQR) detectionConfig()           {}
func (RollingZScore) detectionConfig() {}

func (ZScore) Method() string        { return MethodZScore }
func (IQR) Method() string           { return MethodIQR }
func (RollingZScore) Method() string { return MethodRollingZScore }

func (c ZScore) Validate() error {
	if !(c.Threshold > 0) {
		return fmt.Errorf("zscore threshold %v must be positive: %w", c.Threshold, timeseries.ErrInvalidConfig)
	}
	return nil
}

func (c IQR) Validate() error {
	if !(c.Multiplier > 0) {
		return fmt.Errorf("iqr multiplier %v must be positive: %w", c.Multiplier, timeseries.ErrInvalidConfig)
	}
	return nil
}

func (c RollingZScore) Validate() error {
	if c.Window < 1 {
		return fmt.Errorf("rolling window %d must be at least 1: %w", c.Window, timeseries.ErrInvalidConfig)
	}
	if !(c.Threshold > 0) {
		return fmt.Errorf("rolling threshold %v must be positive: %w", c.Threshold, timeseries.ErrInvalidConfig)
	}
	return nil
}
