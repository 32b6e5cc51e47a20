package postgres

import (
	"context"
	"errors"
	"log"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/settlement"
	"shiftwork/shift-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `entry_id, idempotency_key, kind, status, reference_id,
	payload, attempts, last_error, created_at, updated_at`

func scanLedgerEntry(row pgx.Row) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := row.Scan(&entry.EntryID, &entry.IdempotencyKey, &entry.Kind, &entry.Status,
		&entry.ReferenceID, &entry.Payload, &entry.Attempts, &entry.LastError,
		&entry.CreatedAt, &entry.UpdatedAt)
	return entry, err
}

// postSettlement derives the split from the assignment's rate snapshot and
// records it behind a ledger entry keyed per assignment. Runs inside the
// complete transition's transaction, so the entry, settlement row, and
// status change land or roll back together.
func (s *Store) postSettlement(ctx context.Context, tx pgx.Tx, assignment models.Assignment, shift shiftRow) (models.Settlement, error) {
	minutes := 0
	if assignment.HoursWorkedMinutes != nil {
		minutes = *assignment.HoursWorkedMinutes
	}
	gross := settlement.GrossFromRate(shift.HourlyRateMinor, minutes)
	split := settlement.Compute(gross, settlement.RateResolution{
		PlatformFeeRate:      store.RateOrZero(assignment.PlatformFeeRate),
		AgencyCommissionRate: store.RateOrZero(assignment.AgencyCommissionRate),
		TaxRate:              store.RateOrZero(assignment.TaxRate),
	})

	key := "settlement:" + assignment.AssignmentID
	var entryID, entryStatus string
	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (entry_id, idempotency_key, kind, status, payload, attempts)
		VALUES ($1, $2, 'settlement', 'processing', $3, 1)
		ON CONFLICT (idempotency_key) DO UPDATE
			SET status = 'processing', last_error = '',
				attempts = ledger_entries.attempts + 1, updated_at = now()
		RETURNING entry_id, status
	`, uuid.NewString(), key, assignmentPayload(assignment))
	if err := row.Scan(&entryID, &entryStatus); err != nil {
		return models.Settlement{}, err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO settlements (
			settlement_id, assignment_id, gross_amount_minor, platform_fee_minor,
			agency_commission_minor, tax_withheld_minor, worker_amount_minor,
			currency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (assignment_id) DO NOTHING
	`, uuid.NewString(), assignment.AssignmentID, split.GrossMinor, split.PlatformFeeMinor,
		split.AgencyCommissionMinor, split.TaxWithheldMinor, split.WorkerAmountMinor,
		shift.Currency)
	if err != nil {
		return models.Settlement{}, err
	}

	var posted models.Settlement
	row = tx.QueryRow(ctx, `
		SELECT settlement_id, assignment_id, gross_amount_minor, platform_fee_minor,
			agency_commission_minor, tax_withheld_minor, worker_amount_minor,
			currency, created_at
		FROM settlements
		WHERE assignment_id = $1
	`, assignment.AssignmentID)
	if err := row.Scan(&posted.SettlementID, &posted.AssignmentID, &posted.GrossAmountMinor,
		&posted.PlatformFeeMinor, &posted.AgencyCommissionMinor, &posted.TaxWithheldMinor,
		&posted.WorkerAmountMinor, &posted.Currency, &posted.CreatedAt); err != nil {
		return models.Settlement{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE ledger_entries
		SET status = 'completed', reference_id = $2, updated_at = now()
		WHERE entry_id = $1
	`, entryID, posted.SettlementID); err != nil {
		return models.Settlement{}, err
	}
	return posted, nil
}

// markSettlementFailed runs on the pool after the complete transition rolled
// back, so the failed entry with its payload survives for reconciliation. A
// later successful retry moves the same entry to completed.
func (s *Store) markSettlementFailed(ctx context.Context, assignment models.Assignment, cause error) {
	key := "settlement:" + assignment.AssignmentID
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (entry_id, idempotency_key, kind, status, payload, attempts, last_error)
		VALUES ($1, $2, 'settlement', 'failed', $3, 1, $4)
		ON CONFLICT (idempotency_key) DO UPDATE
			SET status = 'failed', last_error = EXCLUDED.last_error,
				attempts = ledger_entries.attempts + 1, updated_at = now()
			WHERE ledger_entries.status <> 'completed'
	`, uuid.NewString(), key, assignmentPayload(assignment), cause.Error())
	if err != nil {
		log.Printf("settlement failure ledger write error: %v", err)
	}
}

func (s *Store) GetSettlement(ctx context.Context, tenantID, assignmentID string) (models.Settlement, bool, error) {
	var posted models.Settlement
	row := s.pool.QueryRow(ctx, `
		SELECT st.settlement_id, st.assignment_id, st.gross_amount_minor, st.platform_fee_minor,
			st.agency_commission_minor, st.tax_withheld_minor, st.worker_amount_minor,
			st.currency, st.created_at
		FROM settlements st
		JOIN shift_assignments a ON a.assignment_id = st.assignment_id
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE st.assignment_id = $1 AND sh.tenant_id = $2
	`, assignmentID, tenantID)
	if err := row.Scan(&posted.SettlementID, &posted.AssignmentID, &posted.GrossAmountMinor,
		&posted.PlatformFeeMinor, &posted.AgencyCommissionMinor, &posted.TaxWithheldMinor,
		&posted.WorkerAmountMinor, &posted.Currency, &posted.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Settlement{}, false, store.ErrSettlementNotFound
		}
		return models.Settlement{}, false, err
	}
	return posted, true, nil
}

// RecordPaymentWebhook stores a provider callback at most once, keyed by the
// provider's event ID. Replays return the original entry untouched.
func (s *Store) RecordPaymentWebhook(ctx context.Context, input store.WebhookInput) (models.LedgerEntry, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.LedgerEntry{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	key := "webhook:" + input.ProviderEventID
	existing, found, err := findLedgerEntry(ctx, tx, key)
	if err != nil {
		return models.LedgerEntry{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.LedgerEntry{}, false, err
		}
		return existing, false, nil
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (entry_id, idempotency_key, kind, status, reference_id, payload, attempts)
		VALUES ($1, $2, 'webhook', 'completed', $3, $4, 1)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+ledgerColumns+`
	`, uuid.NewString(), key, input.ProviderEventID, input.Payload)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// lost the insert race inside another transaction
			entry, _, err = findLedgerEntry(ctx, tx, key)
			if err != nil {
				return models.LedgerEntry{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.LedgerEntry{}, false, err
			}
			return entry, false, nil
		}
		return models.LedgerEntry{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "", "webhook.received", input.Payload); err != nil {
		return models.LedgerEntry{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

// RequestWithdrawal enqueues a worker payout request. The entry stays
// pending until the payment provider's webhook settles it out of band.
func (s *Store) RequestWithdrawal(ctx context.Context, input store.WithdrawalInput) (models.LedgerEntry, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.LedgerEntry{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	key := "withdrawal:" + input.RequestKey
	existing, found, err := findLedgerEntry(ctx, tx, key)
	if err != nil {
		return models.LedgerEntry{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.LedgerEntry{}, false, err
		}
		return existing, false, nil
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (entry_id, idempotency_key, kind, status, reference_id, payload, attempts)
		VALUES ($1, $2, 'withdrawal', 'pending', $3, $4, 1)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+ledgerColumns+`
	`, uuid.NewString(), key, input.WorkerID, input.Payload)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			entry, _, err = findLedgerEntry(ctx, tx, key)
			if err != nil {
				return models.LedgerEntry{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.LedgerEntry{}, false, err
			}
			return entry, false, nil
		}
		return models.LedgerEntry{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, input.TenantID, "withdrawal.requested", input.Payload); err != nil {
		return models.LedgerEntry{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

func findLedgerEntry(ctx context.Context, tx pgx.Tx, key string) (models.LedgerEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE idempotency_key = $1
	`, key)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LedgerEntry{}, false, nil
		}
		return models.LedgerEntry{}, false, err
	}
	return entry, true, nil
}
