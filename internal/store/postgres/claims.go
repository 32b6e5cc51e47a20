package postgres

import (
	"context"
	"database/sql"
	"errors"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/settlement"
	"shiftwork/shift-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const assignmentColumns = `assignment_id, request_id, shift_id, worker_id, agency_id,
	platform_fee_rate::text, agency_commission_rate::text, tax_rate::text, status,
	check_in_time, check_out_time, hours_worked_minutes, flagged, anomaly_note,
	created_at, updated_at`

const assignmentColumnsQualified = `a.assignment_id, a.request_id, a.shift_id, a.worker_id, a.agency_id,
	a.platform_fee_rate::text, a.agency_commission_rate::text, a.tax_rate::text, a.status,
	a.check_in_time, a.check_out_time, a.hours_worked_minutes, a.flagged, a.anomaly_note,
	a.created_at, a.updated_at`

func scanAssignment(row pgx.Row) (models.Assignment, error) {
	var assignment models.Assignment
	var agencyID sql.NullString
	var checkIn, checkOut sql.NullTime
	var minutes sql.NullInt64
	err := row.Scan(&assignment.AssignmentID, &assignment.RequestID, &assignment.ShiftID,
		&assignment.WorkerID, &agencyID, &assignment.PlatformFeeRate,
		&assignment.AgencyCommissionRate, &assignment.TaxRate, &assignment.Status,
		&checkIn, &checkOut, &minutes, &assignment.Flagged, &assignment.AnomalyNote,
		&assignment.CreatedAt, &assignment.UpdatedAt)
	if err != nil {
		return models.Assignment{}, err
	}
	assignment.AgencyID = nullStringPtr(agencyID)
	assignment.CheckInTime = nullTimePtr(checkIn)
	assignment.CheckOutTime = nullTimePtr(checkOut)
	if minutes.Valid {
		m := int(minutes.Int64)
		assignment.HoursWorkedMinutes = &m
	}
	return assignment, nil
}

type claimParams struct {
	RequestID string
	TenantID  string
	ShiftID   string
	WorkerID  string
	AgencyID  string
	Rates     settlement.RateResolution
}

// ClaimShift reserves one capacity unit and creates the assignment, all in
// one transaction. Losers of the capacity race see ErrShiftFull immediately.
func (s *Store) ClaimShift(ctx context.Context, input store.ClaimInput) (models.Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Assignment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findAssignmentByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Assignment{}, false, err
		}
		return existing, false, nil
	}

	assignment, err := claimSlot(ctx, tx, claimParams{
		RequestID: input.RequestID,
		TenantID:  input.TenantID,
		ShiftID:   input.ShiftID,
		WorkerID:  input.WorkerID,
		AgencyID:  input.AgencyID,
		Rates:     input.Rates,
	})
	if err != nil {
		// Two in-flight claims can share one request_id; the loser conflicts
		// on the request_id unique or the (shift, worker) constraint after
		// the winner commits. Drop the duplicate reservation and surface the
		// winner's assignment as a replay.
		if errors.Is(err, store.ErrAlreadyAssigned) || isUniqueViolation(err) {
			_ = tx.Rollback(ctx)
			row := s.pool.QueryRow(ctx, `
				SELECT `+assignmentColumns+`
				FROM shift_assignments
				WHERE request_id = $1
			`, input.RequestID)
			if winner, scanErr := scanAssignment(row); scanErr == nil {
				return winner, false, nil
			}
			err = store.ErrAlreadyAssigned
		}
		return models.Assignment{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// claimSlot runs inside the caller's transaction: conditional capacity
// increment, assignment insert, audit event, outbox row. Any error rolls the
// reservation back with the transaction.
func claimSlot(ctx context.Context, tx pgx.Tx, params claimParams) (models.Assignment, error) {
	var agencyAllowed bool
	row := tx.QueryRow(ctx, `
		UPDATE shifts
		SET filled_workers = filled_workers + 1,
			status = CASE WHEN filled_workers + 1 >= required_workers THEN 'filled' ELSE status END,
			updated_at = now()
		WHERE shift_id = $1 AND tenant_id = $2 AND status = 'open' AND filled_workers < required_workers
		RETURNING agency_allowed
	`, params.ShiftID, params.TenantID)
	if err := row.Scan(&agencyAllowed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, classifyClaimFailure(ctx, tx, params.TenantID, params.ShiftID)
		}
		return models.Assignment{}, err
	}
	if params.AgencyID != "" && !agencyAllowed {
		return models.Assignment{}, store.ErrAgencyNotAllowed
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO shift_assignments (
			assignment_id, request_id, shift_id, worker_id, agency_id,
			platform_fee_rate, agency_commission_rate, tax_rate, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, 'assigned', now(), now())
		ON CONFLICT ON CONSTRAINT ux_assignment_shift_worker DO NOTHING
		RETURNING `+assignmentColumns+`
	`, uuid.NewString(), params.RequestID, params.ShiftID, params.WorkerID,
		nullIfEmpty(params.AgencyID), params.Rates.PlatformFeeRate.String(),
		params.Rates.AgencyCommissionRate.String(), params.Rates.TaxRate.String())
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, store.ErrAlreadyAssigned
		}
		return models.Assignment{}, err
	}

	if err := insertAssignmentEvent(ctx, tx, assignment, "assignment.claimed"); err != nil {
		return models.Assignment{}, err
	}
	if err := insertOutboxEvent(ctx, tx, params.TenantID, "assignment.claimed", assignmentPayload(assignment)); err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func classifyClaimFailure(ctx context.Context, tx pgx.Tx, tenantID, shiftID string) error {
	var status string
	var filled, required int
	row := tx.QueryRow(ctx, `
		SELECT status, filled_workers, required_workers
		FROM shifts
		WHERE shift_id = $1 AND tenant_id = $2
	`, shiftID, tenantID)
	if err := row.Scan(&status, &filled, &required); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrShiftNotFound
		}
		return err
	}
	if status != models.ShiftOpen {
		return store.ErrShiftNotClaimable
	}
	return store.ErrShiftFull
}

// releaseSlot returns one capacity unit, floored at zero, reopening a filled
// shift. Callers invoke it only inside the first successful terminal
// transition, which keeps the release idempotent.
func releaseSlot(ctx context.Context, tx pgx.Tx, shiftID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE shifts
		SET filled_workers = filled_workers - 1,
			status = CASE WHEN status = 'filled' THEN 'open' ELSE status END,
			updated_at = now()
		WHERE shift_id = $1 AND filled_workers > 0
	`, shiftID)
	return err
}

func findAssignmentByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Assignment, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM shift_assignments
		WHERE request_id = $1
	`, requestID)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, false, nil
		}
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

const applicationColumns = `application_id, request_id, shift_id, worker_id, agency_id,
	status, note, created_at, updated_at`

func scanApplication(row pgx.Row) (models.ShiftApplication, error) {
	var application models.ShiftApplication
	var agencyID sql.NullString
	err := row.Scan(&application.ApplicationID, &application.RequestID, &application.ShiftID,
		&application.WorkerID, &agencyID, &application.Status, &application.Note,
		&application.CreatedAt, &application.UpdatedAt)
	if err != nil {
		return models.ShiftApplication{}, err
	}
	application.AgencyID = nullStringPtr(agencyID)
	return application, nil
}

func (s *Store) ApplyToShift(ctx context.Context, input store.ApplyInput) (models.ShiftApplication, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ShiftApplication{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findApplicationByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.ShiftApplication{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.ShiftApplication{}, false, err
		}
		return existing, false, nil
	}

	var status string
	var agencyAllowed bool
	row := tx.QueryRow(ctx, `
		SELECT status, agency_allowed FROM shifts WHERE shift_id = $1 AND tenant_id = $2
	`, input.ShiftID, input.TenantID)
	if err = row.Scan(&status, &agencyAllowed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrShiftNotFound
		}
		return models.ShiftApplication{}, false, err
	}
	if status != models.ShiftOpen {
		err = store.ErrShiftNotClaimable
		return models.ShiftApplication{}, false, err
	}
	if input.AgencyID != "" && !agencyAllowed {
		err = store.ErrAgencyNotAllowed
		return models.ShiftApplication{}, false, err
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO shift_applications (
			application_id, request_id, shift_id, worker_id, agency_id, status, note,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, now(), now())
		ON CONFLICT (shift_id, worker_id) WHERE status <> 'withdrawn' DO NOTHING
		RETURNING `+applicationColumns+`
	`, uuid.NewString(), input.RequestID, input.ShiftID, input.WorkerID,
		nullIfEmpty(input.AgencyID), input.Note)
	application, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			// same-request_id race or a live duplicate for this worker
			_ = tx.Rollback(ctx)
			replayRow := s.pool.QueryRow(ctx, `
				SELECT `+applicationColumns+`
				FROM shift_applications
				WHERE request_id = $1
			`, input.RequestID)
			if winner, scanErr := scanApplication(replayRow); scanErr == nil {
				return winner, false, nil
			}
			err = store.ErrDuplicateApplication
		}
		return models.ShiftApplication{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, input.TenantID, "application.submitted", applicationPayload(application)); err != nil {
		return models.ShiftApplication{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.ShiftApplication{}, false, err
	}
	return application, true, nil
}

// AcceptApplication claims the slot and marks the application accepted in
// the same transaction. A full shift fails the whole accept.
func (s *Store) AcceptApplication(ctx context.Context, input store.ApplicationActionInput) (models.Assignment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Assignment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "application_accept", input.RequestID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if found {
		var assignment models.Assignment
		assignment, err = loadAssignment(ctx, tx, input.TenantID, reference)
		if err != nil {
			return models.Assignment{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Assignment{}, false, err
		}
		return assignment, false, nil
	}

	application, tenantID, err := lockApplication(ctx, tx, input.TenantID, input.ApplicationID)
	if err != nil {
		return models.Assignment{}, false, err
	}
	if application.Status != models.ApplicationPending {
		err = store.ErrInvalidState
		return models.Assignment{}, false, err
	}

	agencyID := ""
	if application.AgencyID != nil {
		agencyID = *application.AgencyID
	}
	assignment, err := claimSlot(ctx, tx, claimParams{
		RequestID: input.RequestID,
		TenantID:  tenantID,
		ShiftID:   application.ShiftID,
		WorkerID:  application.WorkerID,
		AgencyID:  agencyID,
		Rates:     input.Rates,
	})
	if err != nil {
		return models.Assignment{}, false, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE shift_applications
		SET status = 'accepted', updated_at = now()
		WHERE application_id = $1 AND status = 'pending'
		RETURNING `+applicationColumns+`
	`, application.ApplicationID)
	application, err = scanApplication(row)
	if err != nil {
		return models.Assignment{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "application_accept", input.RequestID, tenantID, assignment.AssignmentID); err != nil {
		return models.Assignment{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, tenantID, "application.accepted", applicationPayload(application)); err != nil {
		return models.Assignment{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

func (s *Store) RejectApplication(ctx context.Context, input store.ApplicationActionInput) (models.ShiftApplication, bool, error) {
	return s.applyApplicationTransition(ctx, input, "reject", models.ApplicationRejected, "application.rejected")
}

func (s *Store) WithdrawApplication(ctx context.Context, input store.ApplicationActionInput) (models.ShiftApplication, bool, error) {
	return s.applyApplicationTransition(ctx, input, "withdraw", models.ApplicationWithdrawn, "application.withdrawn")
}

func (s *Store) applyApplicationTransition(ctx context.Context, input store.ApplicationActionInput, action, toStatus, eventType string) (models.ShiftApplication, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ShiftApplication{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "application_"+action, input.RequestID)
	if err != nil {
		return models.ShiftApplication{}, false, err
	}
	if found {
		var application models.ShiftApplication
		application, _, err = lockApplicationRead(ctx, tx, input.TenantID, reference)
		if err != nil {
			return models.ShiftApplication{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.ShiftApplication{}, false, err
		}
		return application, false, nil
	}

	row := tx.QueryRow(ctx, `
		UPDATE shift_applications ap
		SET status = $1, updated_at = now()
		FROM shifts sh
		WHERE ap.application_id = $2 AND sh.shift_id = ap.shift_id AND sh.tenant_id = $3
			AND ap.status = 'pending'
		RETURNING ap.application_id, ap.request_id, ap.shift_id, ap.worker_id, ap.agency_id,
			ap.status, ap.note, ap.created_at, ap.updated_at
	`, toStatus, input.ApplicationID, input.TenantID)
	application, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, _, err = lockApplicationRead(ctx, tx, input.TenantID, input.ApplicationID)
			if err == nil {
				err = store.ErrInvalidState
			}
			return models.ShiftApplication{}, false, err
		}
		return models.ShiftApplication{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "application_"+action, input.RequestID, input.TenantID, application.ApplicationID); err != nil {
		return models.ShiftApplication{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, input.TenantID, eventType, applicationPayload(application)); err != nil {
		return models.ShiftApplication{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.ShiftApplication{}, false, err
	}
	return application, true, nil
}

func lockApplication(ctx context.Context, tx pgx.Tx, tenantID, applicationID string) (models.ShiftApplication, string, error) {
	row := tx.QueryRow(ctx, `
		SELECT ap.application_id, ap.request_id, ap.shift_id, ap.worker_id, ap.agency_id,
			ap.status, ap.note, ap.created_at, ap.updated_at, sh.tenant_id
		FROM shift_applications ap
		JOIN shifts sh ON sh.shift_id = ap.shift_id
		WHERE ap.application_id = $1 AND sh.tenant_id = $2
		FOR UPDATE OF ap
	`, applicationID, tenantID)
	var application models.ShiftApplication
	var agencyID sql.NullString
	var tenant string
	err := row.Scan(&application.ApplicationID, &application.RequestID, &application.ShiftID,
		&application.WorkerID, &agencyID, &application.Status, &application.Note,
		&application.CreatedAt, &application.UpdatedAt, &tenant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ShiftApplication{}, "", store.ErrApplicationNotFound
		}
		return models.ShiftApplication{}, "", err
	}
	application.AgencyID = nullStringPtr(agencyID)
	return application, tenant, nil
}

func lockApplicationRead(ctx context.Context, tx pgx.Tx, tenantID, applicationID string) (models.ShiftApplication, string, error) {
	row := tx.QueryRow(ctx, `
		SELECT ap.application_id, ap.request_id, ap.shift_id, ap.worker_id, ap.agency_id,
			ap.status, ap.note, ap.created_at, ap.updated_at, sh.tenant_id
		FROM shift_applications ap
		JOIN shifts sh ON sh.shift_id = ap.shift_id
		WHERE ap.application_id = $1 AND sh.tenant_id = $2
	`, applicationID, tenantID)
	var application models.ShiftApplication
	var agencyID sql.NullString
	var tenant string
	err := row.Scan(&application.ApplicationID, &application.RequestID, &application.ShiftID,
		&application.WorkerID, &agencyID, &application.Status, &application.Note,
		&application.CreatedAt, &application.UpdatedAt, &tenant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ShiftApplication{}, "", store.ErrApplicationNotFound
		}
		return models.ShiftApplication{}, "", err
	}
	application.AgencyID = nullStringPtr(agencyID)
	return application, tenant, nil
}

func findApplicationByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.ShiftApplication, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+applicationColumns+`
		FROM shift_applications
		WHERE request_id = $1
	`, requestID)
	application, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ShiftApplication{}, false, nil
		}
		return models.ShiftApplication{}, false, err
	}
	return application, true, nil
}

func loadAssignment(ctx context.Context, tx pgx.Tx, tenantID, assignmentID string) (models.Assignment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+assignmentColumnsQualified+`
		FROM shift_assignments a
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE a.assignment_id = $1 AND sh.tenant_id = $2
	`, assignmentID, tenantID)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, store.ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}
