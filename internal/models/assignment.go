package models

import "time"

// Assignment is a reserved worker slot on a shift. It occupies one unit of
// the shift's capacity from creation until it reaches no_show or cancelled.
type Assignment struct {
	AssignmentID         string     `json:"assignment_id"`
	RequestID            string     `json:"request_id,omitempty"`
	ShiftID              string     `json:"shift_id"`
	WorkerID             string     `json:"worker_id"`
	AgencyID             *string    `json:"agency_id,omitempty"`
	PlatformFeeRate      string     `json:"platform_fee_rate"`
	AgencyCommissionRate string     `json:"agency_commission_rate"`
	TaxRate              string     `json:"tax_rate"`
	Status               string     `json:"status"`
	CheckInTime          *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime         *time.Time `json:"check_out_time,omitempty"`
	HoursWorkedMinutes   *int       `json:"hours_worked_minutes,omitempty"`
	Flagged              bool       `json:"flagged"`
	AnomalyNote          string     `json:"anomaly_note,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

const (
	AssignmentAssigned   = "assigned"
	AssignmentCheckedIn  = "checked_in"
	AssignmentCheckedOut = "checked_out"
	AssignmentCompleted  = "completed"
	AssignmentNoShow     = "no_show"
	AssignmentCancelled  = "cancelled"
)

// TerminalAssignmentStatus reports whether a status releases the slot's
// claim on shift capacity (for completed the capacity stays consumed, but
// no further transitions are possible).
func TerminalAssignmentStatus(status string) bool {
	switch status {
	case AssignmentCompleted, AssignmentNoShow, AssignmentCancelled:
		return true
	default:
		return false
	}
}
