package db

import (
	"time"

	"github.com/google/uuid"
)

// Analysis run statuses
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// SensorReading represents one stored reading of a sensor parameter. A NULL
// value is a missing reading.
type SensorReading struct {
	SensorID         string
	Parameter        string
	ReadingTimestamp time.Time
	Value            *float64
}

// AnalysisRun represents an executed analysis request in the database
type AnalysisRun struct {
	ID          uuid.UUID
	RequestID   string
	Kind        string
	Status      string
	Params      []byte
	Result      []byte
	Error       *string
	StartedAt   time.Time
	CompletedAt time.Time
}
