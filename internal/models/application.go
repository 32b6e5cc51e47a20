package models

import "time"

type ShiftApplication struct {
	ApplicationID string    `json:"application_id"`
	RequestID     string    `json:"request_id,omitempty"`
	ShiftID       string    `json:"shift_id"`
	WorkerID      string    `json:"worker_id"`
	AgencyID      *string   `json:"agency_id,omitempty"`
	Status        string    `json:"status"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	ApplicationPending   = "pending"
	ApplicationAccepted  = "accepted"
	ApplicationRejected  = "rejected"
	ApplicationWithdrawn = "withdrawn"
)
