package validator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/septivank/waterquality-analytics-worker/tools/timeparser"
)

// futureTolerance is how far ahead of the local clock a reading may be
// stamped before it is treated as a device clock fault.
const futureTolerance = 10 * time.Minute

// ErrUnknownParameter is returned for a parameter without a known range
var ErrUnknownParameter = errors.New("unknown parameter")

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// RawSample is a reading as received from a collaborator. A nil Value is a
// missing reading.
type RawSample struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
}

// Rejection records why a raw sample was dropped
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Range is the physically plausible interval of a parameter
type Range struct {
	Min float64
	Max float64
}

// ParameterRanges lists the plausible ranges of the monitored parameters
var ParameterRanges = map[string]Range{
	"ph":               {Min: 0, Max: 14},
	"temp":             {Min: -5, Max: 50},
	"conductivity":     {Min: 0, Max: math.Inf(1)},
	"dissolved_oxygen": {Min: 0, Max: math.Inf(1)},
	"turbidity":        {Min: 0, Max: math.Inf(1)},
}

// Validator checks raw readings before they become a series
type Validator struct {
	enforceRanges bool
	now           func() time.Time
}

// NewValidator creates a new validator
func NewValidator(enforceRanges bool) *Validator {
	return &Validator{
		enforceRanges: enforceRanges,
		now:           time.Now,
	}
}

// ValidateSample validates a single raw reading of parameter
func (v *Validator) ValidateSample(parameter string, raw RawSample) (timeseries.Sample, ValidationResult) {
	result := ValidationResult{IsValid: true}

	r, known := ParameterRanges[parameter]
	if !known {
		result.IsValid = false
		result.Reason = fmt.Sprintf("unknown parameter %q", parameter)
		return timeseries.Sample{}, result
	}

	ts, err := timeparser.ParseSensorTimestamp(raw.Timestamp)
	if err != nil {
		result.IsValid = false
		result.Reason = fmt.Sprintf("invalid timestamp format: %v", err)
		return timeseries.Sample{}, result
	}

	if ts.After(v.now()) && !timeparser.IsWithinTolerance(ts, v.now(), futureTolerance) {
		result.IsValid = false
		result.Reason = fmt.Sprintf("timestamp %s is in the future", ts.Format(time.RFC3339))
		return timeseries.Sample{Timestamp: ts}, result
	}

	if raw.Value == nil {
		return timeseries.Sample{Timestamp: ts, Value: timeseries.Missing}, result
	}

	value := *raw.Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		result.IsValid = false
		result.Reason = "non-finite value"
		return timeseries.Sample{Timestamp: ts}, result
	}

	if v.enforceRanges && (value < r.Min || value > r.Max) {
		result.IsValid = false
		result.Reason = fmt.Sprintf("%s value %g outside plausible range [%g, %g]", parameter, value, r.Min, r.Max)
		return timeseries.Sample{Timestamp: ts, Value: value}, result
	}

	return timeseries.Sample{Timestamp: ts, Value: value}, result
}

// BuildSeries validates raw readings of parameter and builds a series from
// the valid ones. Invalid readings are dropped and reported.
func (v *Validator) BuildSeries(parameter string, raw []RawSample) (timeseries.Series, []Rejection, error) {
	if _, known := ParameterRanges[parameter]; !known {
		return timeseries.Series{}, nil, fmt.Errorf("%w: %q", ErrUnknownParameter, parameter)
	}

	samples := make([]timeseries.Sample, 0, len(raw))
	var rejected []Rejection

	for i, r := range raw {
		sample, res := v.ValidateSample(parameter, r)
		if !res.IsValid {
			rejected = append(rejected, Rejection{Index: i, Reason: res.Reason})
			continue
		}
		samples = append(samples, sample)
	}

	series, err := timeseries.New(samples)
	if err != nil {
		return timeseries.Series{}, rejected, fmt.Errorf("build %s series: %w", parameter, err)
	}
	return series, rejected, nil
}
