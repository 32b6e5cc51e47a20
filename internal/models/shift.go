package models

import "time"

type Shift struct {
	ShiftID         string    `json:"shift_id"`
	RequestID       string    `json:"request_id,omitempty"`
	TenantID        string    `json:"tenant_id,omitempty"`
	BusinessID      string    `json:"business_id,omitempty"`
	Title           string    `json:"title"`
	Location        string    `json:"location,omitempty"`
	Status          string    `json:"status"`
	RequiredWorkers int       `json:"required_workers"`
	FilledWorkers   int       `json:"filled_workers"`
	HourlyRateMinor int64     `json:"hourly_rate_minor"`
	Currency        string    `json:"currency"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	AgencyAllowed   bool      `json:"agency_allowed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

const (
	ShiftDraft     = "draft"
	ShiftOpen      = "open"
	ShiftFilled    = "filled"
	ShiftCancelled = "cancelled"
	ShiftCompleted = "completed"
)
