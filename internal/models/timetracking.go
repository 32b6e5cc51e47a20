package models

import "time"

// TimeTrackingRecord is an immutable clock/break event. Corrections soft
// delete and append; rows are never hard-deleted.
type TimeTrackingRecord struct {
	RecordID           string     `json:"record_id"`
	AssignmentID       string     `json:"assignment_id"`
	EventType          string     `json:"event_type"`
	RecordedAt         time.Time  `json:"recorded_at"`
	VerificationMethod string     `json:"verification_method,omitempty"`
	Confidence         float64    `json:"confidence"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	DeviceID           string     `json:"device_id,omitempty"`
	SystemAdjusted     bool       `json:"system_adjusted"`
	Flagged            bool       `json:"flagged"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

const (
	EventClockIn    = "clock_in"
	EventClockOut   = "clock_out"
	EventBreakStart = "break_start"
	EventBreakEnd   = "break_end"
)
