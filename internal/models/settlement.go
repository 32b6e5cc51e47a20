package models

import "time"

// Settlement is derived exactly once per completed assignment. All amounts
// are minor currency units and always satisfy
// worker + platform fee + agency commission + tax == gross.
type Settlement struct {
	SettlementID          string    `json:"settlement_id"`
	AssignmentID          string    `json:"assignment_id"`
	GrossAmountMinor      int64     `json:"gross_amount_minor"`
	PlatformFeeMinor      int64     `json:"platform_fee_minor"`
	AgencyCommissionMinor int64     `json:"agency_commission_minor"`
	TaxWithheldMinor      int64     `json:"tax_withheld_minor"`
	WorkerAmountMinor     int64     `json:"worker_amount_minor"`
	Currency              string    `json:"currency"`
	CreatedAt             time.Time `json:"created_at"`
}

// LedgerEntry records one side-effecting money operation keyed by a caller
// or provider supplied idempotency key.
type LedgerEntry struct {
	EntryID        string    `json:"entry_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	Payload        []byte    `json:"payload,omitempty"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	LedgerKindSettlement = "settlement"
	LedgerKindWebhook    = "webhook"
	LedgerKindWithdrawal = "withdrawal"

	LedgerPending    = "pending"
	LedgerProcessing = "processing"
	LedgerCompleted  = "completed"
	LedgerFailed     = "failed"
)
