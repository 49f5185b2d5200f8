package timeparser

import (
	"testing"
	"time"
)

func TestParseSensorTimestamp_Formats(t *testing.T) {
	expected := time.Date(2025, 3, 29, 10, 30, 45, 0, time.UTC)

	for _, in := range []string{
		"2025-03-29 10:30:45",
		"2025-03-29T10:30:45",
		"2025-03-29T10:30:45Z",
		"29/03/2025 10:30:45",
	} {
		result, err := ParseSensorTimestamp(in)
		if err != nil {
			t.Fatalf("Failed to parse timestamp %q: %v", in, err)
		}
		if !result.Equal(expected) {
			t.Errorf("Parsing %q: expected %v, got %v", in, expected, result)
		}
	}
}

func TestParseSensorTimestamp_Zone(t *testing.T) {
	result, err := ParseSensorTimestamp("2025-03-29T12:30:45+02:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2025, 3, 29, 10, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseSensorTimestamp_Invalid(t *testing.T) {
	if _, err := ParseSensorTimestamp("invalid-date-string"); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestIsWithinTolerance(t *testing.T) {
	reference := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		reading time.Time
		want    bool
	}{
		{"within range", reference.Add(3 * time.Minute), true},
		{"outside range", reference.Add(6 * time.Minute), false},
		{"negative difference", reference.Add(-3 * time.Minute), true},
		{"exact boundary", reference.Add(5 * time.Minute), true},
	}

	for _, tt := range tests {
		if got := IsWithinTolerance(tt.reading, reference, 5*time.Minute); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
