package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/settlement"
)

type CreateShiftInput struct {
	RequestID       string
	TenantID        string
	BusinessID      string
	Title           string
	Location        string
	RequiredWorkers int
	HourlyRateMinor int64
	Currency        string
	StartTime       time.Time
	EndTime         time.Time
	AgencyAllowed   bool
	Publish         bool
	CreatedAt       time.Time
}

type ShiftActionInput struct {
	RequestID  string
	TenantID   string
	ShiftID    string
	Reason     string
	OccurredAt time.Time
}

// ClaimInput reserves one slot on a shift for a worker. Rates are resolved
// by the caller before the claim and snapshotted on the assignment.
type ClaimInput struct {
	RequestID string
	TenantID  string
	ShiftID   string
	WorkerID  string
	AgencyID  string
	Rates     settlement.RateResolution
	ClaimedAt time.Time
}

type ApplyInput struct {
	RequestID string
	TenantID  string
	ShiftID   string
	WorkerID  string
	AgencyID  string
	Note      string
	AppliedAt time.Time
}

type ApplicationActionInput struct {
	RequestID     string
	TenantID      string
	ApplicationID string
	Rates         settlement.RateResolution
	OccurredAt    time.Time
}

// Verification accompanies every worker-submitted time event.
type Verification struct {
	Method     string   `json:"method"`
	Confidence float64  `json:"confidence"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	DeviceID   string   `json:"device_id,omitempty"`
}

type AssignmentActionInput struct {
	RequestID    string
	TenantID     string
	AssignmentID string
	Reason       string
	OccurredAt   time.Time
	Verification Verification
}

// CorrectRecordInput soft-deletes one time record and appends a replacement
// in its place. The whole event sequence is revalidated and the assignment's
// derived columns recomputed from the surviving records.
type CorrectRecordInput struct {
	RequestID    string
	TenantID     string
	AssignmentID string
	RecordID     string
	OccurredAt   time.Time
	Verification Verification
	Reason       string
}

type WebhookInput struct {
	ProviderEventID string
	Payload         json.RawMessage
	ReceivedAt      time.Time
}

type WithdrawalInput struct {
	RequestKey  string
	TenantID    string
	WorkerID    string
	AmountMinor int64
	Currency    string
	Payload     json.RawMessage
	RequestedAt time.Time
}

// ShiftStore is the persistence contract for the lifecycle and settlement
// engine. Mutating calls are idempotent on their request ID: the bool result
// reports whether this call performed the transition (false on replay).
type ShiftStore interface {
	CreateShift(ctx context.Context, input CreateShiftInput) (models.Shift, bool, error)
	GetShift(ctx context.Context, tenantID, shiftID string) (models.Shift, bool, error)
	ListShifts(ctx context.Context, tenantID, status string) ([]models.Shift, error)
	PublishShift(ctx context.Context, input ShiftActionInput) (models.Shift, bool, error)
	CancelShift(ctx context.Context, input ShiftActionInput) (models.Shift, bool, error)
	CompleteShift(ctx context.Context, input ShiftActionInput) (models.Shift, bool, error)

	ClaimShift(ctx context.Context, input ClaimInput) (models.Assignment, bool, error)
	ApplyToShift(ctx context.Context, input ApplyInput) (models.ShiftApplication, bool, error)
	AcceptApplication(ctx context.Context, input ApplicationActionInput) (models.Assignment, bool, error)
	RejectApplication(ctx context.Context, input ApplicationActionInput) (models.ShiftApplication, bool, error)
	WithdrawApplication(ctx context.Context, input ApplicationActionInput) (models.ShiftApplication, bool, error)

	GetAssignment(ctx context.Context, tenantID, assignmentID string) (models.Assignment, bool, error)
	CheckIn(ctx context.Context, input AssignmentActionInput) (models.Assignment, bool, error)
	CheckOut(ctx context.Context, input AssignmentActionInput) (models.Assignment, bool, error)
	StartBreak(ctx context.Context, input AssignmentActionInput) (models.TimeTrackingRecord, bool, error)
	EndBreak(ctx context.Context, input AssignmentActionInput) (models.TimeTrackingRecord, bool, error)
	CancelAssignment(ctx context.Context, input AssignmentActionInput) (models.Assignment, bool, error)
	NoShowAssignment(ctx context.Context, input AssignmentActionInput) (models.Assignment, bool, error)
	CompleteAssignment(ctx context.Context, input AssignmentActionInput) (models.Assignment, bool, error)
	AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error)

	CorrectTimeRecord(ctx context.Context, input CorrectRecordInput) (models.TimeTrackingRecord, bool, error)
	ListTimeRecords(ctx context.Context, tenantID, assignmentID string) ([]models.TimeTrackingRecord, error)
	ListAssignmentEvents(ctx context.Context, tenantID, assignmentID string) ([]AssignmentEvent, error)
	GetSettlement(ctx context.Context, tenantID, assignmentID string) (models.Settlement, bool, error)

	RecordPaymentWebhook(ctx context.Context, input WebhookInput) (models.LedgerEntry, bool, error)
	RequestWithdrawal(ctx context.Context, input WithdrawalInput) (models.LedgerEntry, bool, error)

	ListOutboxEvents(ctx context.Context, tenantID string, afterSeq int64, limit int) ([]OutboxEvent, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	UserID    string
	TenantID  string
	Role      string
	ExpiresAt time.Time
}

// OutboxEvent is one relayable event. Seq is assigned by the database and is
// the only safe paging cursor; created_at collides for events written in the
// same transaction.
type OutboxEvent struct {
	Seq       int64           `json:"seq"`
	EventID   string          `json:"event_id"`
	TenantID  string          `json:"tenant_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RateOrZero parses a stored rate column, treating empty as zero.
func RateOrZero(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
