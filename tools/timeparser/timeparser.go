package timeparser

import (
	"fmt"
	"time"
)

// ParseSensorTimestamp attempts to parse a sensor timestamp with the formats
// produced by the CSV export, the field devices and the cloud bridge.
// Timestamps without a zone are taken as UTC.
func ParseSensorTimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,          // Cloud bridge
		"2006-01-02 15:04:05",     // CSV export
		"2006-01-02T15:04:05",     // CSV export, ISO without zone
		"02/01/2006 15:04:05",     // Device clock DD/MM/YYYY HH:mm:ss
		"2006-01-02 15:04:05.999", // CSV export with milliseconds
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of a reference time
func IsWithinTolerance(readingTime, referenceTime time.Time, tolerance time.Duration) bool {
	diff := readingTime.Sub(referenceTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
