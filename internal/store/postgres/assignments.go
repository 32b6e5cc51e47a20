package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/store"

	"github.com/jackc/pgx/v5"
)

type shiftRow struct {
	TenantID        string
	Status          string
	StartTime       time.Time
	EndTime         time.Time
	HourlyRateMinor int64
	Currency        string
}

// lockAssignment loads the assignment and its shift row, locking the
// assignment for the rest of the transaction.
func lockAssignment(ctx context.Context, tx pgx.Tx, tenantID, assignmentID string) (models.Assignment, shiftRow, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+assignmentColumnsQualified+`,
			sh.tenant_id, sh.status, sh.start_time, sh.end_time, sh.hourly_rate_minor, sh.currency
		FROM shift_assignments a
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE a.assignment_id = $1 AND sh.tenant_id = $2
		FOR UPDATE OF a
	`, assignmentID, tenantID)

	var assignment models.Assignment
	var shift shiftRow
	var agencyID sql.NullString
	var checkIn, checkOut sql.NullTime
	var minutes sql.NullInt64
	err := row.Scan(&assignment.AssignmentID, &assignment.RequestID, &assignment.ShiftID,
		&assignment.WorkerID, &agencyID, &assignment.PlatformFeeRate,
		&assignment.AgencyCommissionRate, &assignment.TaxRate, &assignment.Status,
		&checkIn, &checkOut, &minutes, &assignment.Flagged, &assignment.AnomalyNote,
		&assignment.CreatedAt, &assignment.UpdatedAt,
		&shift.TenantID, &shift.Status, &shift.StartTime, &shift.EndTime,
		&shift.HourlyRateMinor, &shift.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, shiftRow{}, store.ErrAssignmentNotFound
		}
		return models.Assignment{}, shiftRow{}, err
	}
	assignment.AgencyID = nullStringPtr(agencyID)
	assignment.CheckInTime = nullTimePtr(checkIn)
	assignment.CheckOutTime = nullTimePtr(checkOut)
	if minutes.Valid {
		m := int(minutes.Int64)
		assignment.HoursWorkedMinutes = &m
	}
	return assignment, shift, nil
}

func (s *Store) GetAssignment(ctx context.Context, tenantID, assignmentID string) (models.Assignment, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+assignmentColumnsQualified+`
		FROM shift_assignments a
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE a.assignment_id = $1 AND sh.tenant_id = $2
	`, assignmentID, tenantID)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, false, store.ErrAssignmentNotFound
		}
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

// CheckIn transitions assigned → checked_in inside the configured window
// around the shift start and records the clock_in event.
func (s *Store) CheckIn(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Assignment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "assignment_check_in", input.RequestID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if found {
		return s.replayAssignment(ctx, tx, input.TenantID, reference)
	}

	assignment, shift, err := lockAssignment(ctx, tx, input.TenantID, input.AssignmentID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if assignment.Status != models.AssignmentAssigned {
		err = store.ErrInvalidState
		return models.Assignment{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	if occurredAt.Before(shift.StartTime.Add(-s.checkInEarly)) || occurredAt.After(shift.StartTime.Add(s.checkInLate)) {
		err = store.ErrCheckInWindow
		return models.Assignment{}, false, err
	}

	record, err := insertTimeRecord(ctx, tx, assignment.AssignmentID, models.EventClockIn, occurredAt, input.Verification, false, s.minConfidence)
	if err != nil {
		return models.Assignment{}, false, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE shift_assignments
		SET status = 'checked_in', check_in_time = $2, flagged = flagged OR $3, updated_at = now()
		WHERE assignment_id = $1 AND status = 'assigned'
		RETURNING `+assignmentColumns+`
	`, assignment.AssignmentID, occurredAt, record.Flagged)
	assignment, err = scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
		}
		return models.Assignment{}, false, err
	}

	if err = s.finishAssignmentAction(ctx, tx, "assignment_check_in", input.RequestID, shift.TenantID, assignment, "assignment.checked_in"); err != nil {
		return models.Assignment{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

// CheckOut closes any open break with a system-adjusted record, computes
// worked minutes, and transitions checked_in → checked_out. Durations above
// the configured maximum are noted, never rejected.
func (s *Store) CheckOut(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Assignment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "assignment_check_out", input.RequestID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if found {
		return s.replayAssignment(ctx, tx, input.TenantID, reference)
	}

	assignment, shift, err := lockAssignment(ctx, tx, input.TenantID, input.AssignmentID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if assignment.Status != models.AssignmentCheckedIn {
		err = store.ErrInvalidState
		return models.Assignment{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	records, err := listLiveRecords(ctx, tx, assignment.AssignmentID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	lastEvent := store.LastLiveEventType(records)
	if !store.ValidTimeEvent(lastEvent, models.EventClockOut) {
		err = store.ErrInvalidEventOrder
		return models.Assignment{}, false, err
	}

	adjusted := false
	if lastEvent == models.EventBreakStart {
		if _, err = insertSystemRecord(ctx, tx, assignment.AssignmentID, models.EventBreakEnd, occurredAt); err != nil {
			return models.Assignment{}, false, err
		}
		adjusted = true
	}

	record, err := insertTimeRecord(ctx, tx, assignment.AssignmentID, models.EventClockOut, occurredAt, input.Verification, false, s.minConfidence)
	if err != nil {
		return models.Assignment{}, false, err
	}

	minutes := store.WorkedMinutes(records, occurredAt)
	anomalyNote := assignment.AnomalyNote
	if minutes > s.maxShiftMinutes {
		anomalyNote = fmt.Sprintf("worked %d minutes, above limit of %d", minutes, s.maxShiftMinutes)
	}
	flagged := assignment.Flagged || record.Flagged || adjusted

	row := tx.QueryRow(ctx, `
		UPDATE shift_assignments
		SET status = 'checked_out', check_out_time = $2, hours_worked_minutes = $3,
			flagged = $4, anomaly_note = $5, updated_at = now()
		WHERE assignment_id = $1 AND status = 'checked_in'
		RETURNING `+assignmentColumns+`
	`, assignment.AssignmentID, occurredAt, minutes, flagged, anomalyNote)
	assignment, err = scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
		}
		return models.Assignment{}, false, err
	}

	if err = s.finishAssignmentAction(ctx, tx, "assignment_check_out", input.RequestID, shift.TenantID, assignment, "assignment.checked_out"); err != nil {
		return models.Assignment{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

func (s *Store) StartBreak(ctx context.Context, input store.AssignmentActionInput) (models.TimeTrackingRecord, bool, error) {
	return s.appendBreakEvent(ctx, input, models.EventBreakStart, "assignment_break_start")
}

func (s *Store) EndBreak(ctx context.Context, input store.AssignmentActionInput) (models.TimeTrackingRecord, bool, error) {
	return s.appendBreakEvent(ctx, input, models.EventBreakEnd, "assignment_break_end")
}

func (s *Store) appendBreakEvent(ctx context.Context, input store.AssignmentActionInput, eventType, action string) (models.TimeTrackingRecord, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if found {
		var record models.TimeTrackingRecord
		record, err = loadTimeRecord(ctx, tx, reference)
		if err != nil {
			return models.TimeTrackingRecord{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.TimeTrackingRecord{}, false, err
		}
		return record, false, nil
	}

	assignment, shift, err := lockAssignment(ctx, tx, input.TenantID, input.AssignmentID)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if assignment.Status != models.AssignmentCheckedIn {
		err = store.ErrInvalidState
		return models.TimeTrackingRecord{}, false, err
	}

	records, err := listLiveRecords(ctx, tx, assignment.AssignmentID)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if !store.ValidTimeEvent(store.LastLiveEventType(records), eventType) {
		err = store.ErrInvalidEventOrder
		return models.TimeTrackingRecord{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	record, err := insertTimeRecord(ctx, tx, assignment.AssignmentID, eventType, occurredAt, input.Verification, false, s.minConfidence)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if record.Flagged && !assignment.Flagged {
		if _, err = tx.Exec(ctx, `
			UPDATE shift_assignments SET flagged = TRUE, updated_at = now() WHERE assignment_id = $1
		`, assignment.AssignmentID); err != nil {
			return models.TimeTrackingRecord{}, false, err
		}
	}

	if err = insertActionRequest(ctx, tx, action, input.RequestID, shift.TenantID, record.RecordID); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	return record, true, nil
}

func (s *Store) CancelAssignment(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	return s.terminateAssignment(ctx, input, "cancel", models.AssignmentCancelled, "assignment.cancelled")
}

func (s *Store) NoShowAssignment(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	return s.terminateAssignment(ctx, input, "no_show", models.AssignmentNoShow, "assignment.no_show")
}

// terminateAssignment moves the assignment to a slot-releasing terminal
// status. The capacity release fires only on the first successful
// transition; replays and losers of the race never decrement twice.
func (s *Store) terminateAssignment(ctx context.Context, input store.AssignmentActionInput, action, toStatus, eventType string) (models.Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Assignment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "assignment_"+action, input.RequestID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if found {
		return s.replayAssignment(ctx, tx, input.TenantID, reference)
	}

	assignment, shift, err := lockAssignment(ctx, tx, input.TenantID, input.AssignmentID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if !store.ValidAssignmentTransition(action, assignment.Status) {
		err = store.ErrInvalidState
		return models.Assignment{}, false, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE shift_assignments
		SET status = $2, updated_at = now()
		WHERE assignment_id = $1 AND status = $3
		RETURNING `+assignmentColumns+`
	`, assignment.AssignmentID, toStatus, assignment.Status)
	assignment, err = scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
		}
		return models.Assignment{}, false, err
	}

	if err = releaseSlot(ctx, tx, assignment.ShiftID); err != nil {
		return models.Assignment{}, false, err
	}
	if err = s.finishAssignmentAction(ctx, tx, "assignment_"+action, input.RequestID, shift.TenantID, assignment, eventType); err != nil {
		return models.Assignment{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

// CompleteAssignment transitions checked_out → completed and posts the
// settlement exactly once, all in one transaction. Flagged assignments wait
// for review first.
func (s *Store) CompleteAssignment(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Assignment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "assignment_complete", input.RequestID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if found {
		return s.replayAssignment(ctx, tx, input.TenantID, reference)
	}

	assignment, shift, err := lockAssignment(ctx, tx, input.TenantID, input.AssignmentID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if assignment.Status != models.AssignmentCheckedOut {
		err = store.ErrInvalidState
		return models.Assignment{}, false, err
	}
	if assignment.Flagged {
		err = store.ErrReviewPending
		return models.Assignment{}, false, err
	}

	settlementRow, err := s.postSettlement(ctx, tx, assignment, shift)
	if err != nil {
		// the transition rolls back; the failure itself must survive it
		_ = tx.Rollback(ctx)
		s.markSettlementFailed(ctx, assignment, err)
		return models.Assignment{}, false, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE shift_assignments
		SET status = 'completed', updated_at = now()
		WHERE assignment_id = $1 AND status = 'checked_out'
		RETURNING `+assignmentColumns+`
	`, assignment.AssignmentID)
	assignment, err = scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
		}
		return models.Assignment{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, shift.TenantID, "settlement.posted", settlementPayload(settlementRow)); err != nil {
		return models.Assignment{}, false, err
	}
	if err = s.finishAssignmentAction(ctx, tx, "assignment_complete", input.RequestID, shift.TenantID, assignment, "assignment.completed"); err != nil {
		return models.Assignment{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

// AutoNoShow sweeps assignments still assigned past start_time + grace,
// skipping rows another sweeper holds. Returns the number transitioned.
func (s *Store) AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	cutoff := time.Now().UTC().Add(-grace)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT a.assignment_id, a.shift_id, sh.tenant_id
		FROM shift_assignments a
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE a.status = 'assigned' AND sh.start_time <= $1
		ORDER BY sh.start_time ASC
		LIMIT $2
		FOR UPDATE OF a SKIP LOCKED
	`, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	type sweepTarget struct {
		AssignmentID string
		ShiftID      string
		TenantID     string
	}
	var targets []sweepTarget
	for rows.Next() {
		var t sweepTarget
		if err = rows.Scan(&t.AssignmentID, &t.ShiftID, &t.TenantID); err != nil {
			rows.Close()
			return 0, err
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, target := range targets {
		row := tx.QueryRow(ctx, `
			UPDATE shift_assignments
			SET status = 'no_show', updated_at = now()
			WHERE assignment_id = $1 AND status = 'assigned'
			RETURNING `+assignmentColumns+`
		`, target.AssignmentID)
		var assignment models.Assignment
		assignment, err = scanAssignment(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = nil
				continue
			}
			return 0, err
		}
		if err = releaseSlot(ctx, tx, target.ShiftID); err != nil {
			return 0, err
		}
		if err = insertAssignmentEvent(ctx, tx, assignment, "assignment.no_show"); err != nil {
			return 0, err
		}
		if err = insertOutboxEvent(ctx, tx, target.TenantID, "assignment.no_show", assignmentPayload(assignment)); err != nil {
			return 0, err
		}
		count++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) finishAssignmentAction(ctx context.Context, tx pgx.Tx, action, requestID, tenantID string, assignment models.Assignment, eventType string) error {
	if err := insertActionRequest(ctx, tx, action, requestID, tenantID, assignment.AssignmentID); err != nil {
		return err
	}
	if err := insertAssignmentEvent(ctx, tx, assignment, eventType); err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, tenantID, eventType, assignmentPayload(assignment))
}

func (s *Store) replayAssignment(ctx context.Context, tx pgx.Tx, tenantID, assignmentID string) (models.Assignment, bool, error) {
	assignment, err := loadAssignment(ctx, tx, tenantID, assignmentID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return models.Assignment{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, false, nil
}
