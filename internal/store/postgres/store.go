package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ store.ShiftStore = (*Store)(nil)

type Store struct {
	pool            *pgxpool.Pool
	checkInEarly    time.Duration
	checkInLate     time.Duration
	maxShiftMinutes int
	minConfidence   float64
}

type Options struct {
	CheckInEarly    time.Duration
	CheckInLate     time.Duration
	MaxShiftMinutes int
	MinConfidence   float64
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	early := options.CheckInEarly
	if early <= 0 {
		early = 30 * time.Minute
	}
	late := options.CheckInLate
	if late <= 0 {
		late = 2 * time.Hour
	}
	maxMinutes := options.MaxShiftMinutes
	if maxMinutes <= 0 {
		maxMinutes = 16 * 60
	}
	return &Store{
		pool:            pool,
		checkInEarly:    early,
		checkInLate:     late,
		maxShiftMinutes: maxMinutes,
		minConfidence:   options.MinConfidence,
	}
}

const shiftColumns = `shift_id, request_id, tenant_id, business_id, title, location, status,
	required_workers, filled_workers, hourly_rate_minor, currency, start_time, end_time,
	agency_allowed, created_at, updated_at`

func scanShift(row pgx.Row) (models.Shift, error) {
	var shift models.Shift
	err := row.Scan(&shift.ShiftID, &shift.RequestID, &shift.TenantID, &shift.BusinessID,
		&shift.Title, &shift.Location, &shift.Status, &shift.RequiredWorkers,
		&shift.FilledWorkers, &shift.HourlyRateMinor, &shift.Currency, &shift.StartTime,
		&shift.EndTime, &shift.AgencyAllowed, &shift.CreatedAt, &shift.UpdatedAt)
	return shift, err
}

func (s *Store) CreateShift(ctx context.Context, input store.CreateShiftInput) (models.Shift, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findShiftByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Shift{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Shift{}, false, err
		}
		return existing, false, nil
	}

	status := models.ShiftDraft
	if input.Publish {
		status = models.ShiftOpen
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	shiftID := uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO shifts (
			shift_id, request_id, tenant_id, business_id, title, location, status,
			required_workers, filled_workers, hourly_rate_minor, currency,
			start_time, end_time, agency_allowed, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10,$11,$12,$13,$14,$14)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING `+shiftColumns+`
	`, shiftID, input.RequestID, input.TenantID, input.BusinessID, input.Title,
		input.Location, status, input.RequiredWorkers, input.HourlyRateMinor,
		currency, input.StartTime, input.EndTime, input.AgencyAllowed, createdAt)

	shift, err := scanShift(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Shift{}, false, err
		}
		// lost a same-request_id insert race; the winner's row is committed
		existing, found, err = findShiftByRequestID(ctx, tx, input.RequestID)
		if err != nil {
			return models.Shift{}, false, err
		}
		if !found {
			err = pgx.ErrNoRows
			return models.Shift{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Shift{}, false, err
		}
		return existing, false, nil
	}

	if err = insertOutboxEvent(ctx, tx, shift.TenantID, "shift.created", shiftPayload(shift)); err != nil {
		return models.Shift{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, false, err
	}
	return shift, true, nil
}

func (s *Store) GetShift(ctx context.Context, tenantID, shiftID string) (models.Shift, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE shift_id = $1 AND tenant_id = $2
	`, shiftID, tenantID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Shift{}, false, store.ErrShiftNotFound
		}
		return models.Shift{}, false, err
	}
	return shift, true, nil
}

func (s *Store) ListShifts(ctx context.Context, tenantID, status string) ([]models.Shift, error) {
	query := `
		SELECT ` + shiftColumns + `
		FROM shifts
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) PublishShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, bool, error) {
	return s.applyShiftTransition(ctx, input, "publish", models.ShiftOpen, "shift.published")
}

func (s *Store) CompleteShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "shift_complete", input.RequestID)
	if err != nil {
		return models.Shift{}, false, err
	}
	if found {
		return s.replayShift(ctx, tx, input.TenantID, reference)
	}

	row := tx.QueryRow(ctx, `
		UPDATE shifts
		SET status = 'completed', updated_at = now()
		WHERE shift_id = $1 AND tenant_id = $2 AND status IN ('open','filled')
			AND NOT EXISTS (
				SELECT 1 FROM shift_assignments
				WHERE shift_id = $1 AND status IN ('assigned','checked_in','checked_out')
			)
		RETURNING `+shiftColumns+`
	`, input.ShiftID, input.TenantID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyShiftFailure(ctx, tx, input.TenantID, input.ShiftID)
			return models.Shift{}, false, err
		}
		return models.Shift{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "shift_complete", input.RequestID, input.TenantID, shift.ShiftID); err != nil {
		return models.Shift{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, shift.TenantID, "shift.completed", shiftPayload(shift)); err != nil {
		return models.Shift{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, false, err
	}
	return shift, true, nil
}

// CancelShift cancels the posting and every cancellable assignment in one
// transaction, releasing one capacity unit per cancelled assignment. A
// checked_out assignment keeps its slot until it settles.
func (s *Store) CancelShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "shift_cancel", input.RequestID)
	if err != nil {
		return models.Shift{}, false, err
	}
	if found {
		return s.replayShift(ctx, tx, input.TenantID, reference)
	}

	row := tx.QueryRow(ctx, `
		UPDATE shifts
		SET status = 'cancelled', updated_at = now()
		WHERE shift_id = $1 AND tenant_id = $2 AND status IN ('draft','open','filled')
		RETURNING `+shiftColumns+`
	`, input.ShiftID, input.TenantID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyShiftFailure(ctx, tx, input.TenantID, input.ShiftID)
			return models.Shift{}, false, err
		}
		return models.Shift{}, false, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE shift_assignments
		SET status = 'cancelled', updated_at = now()
		WHERE shift_id = $1 AND status IN ('assigned','checked_in')
		RETURNING `+assignmentColumns+`
	`, shift.ShiftID)
	if err != nil {
		return models.Shift{}, false, err
	}
	var cancelled []models.Assignment
	for rows.Next() {
		assignment, scanErr := scanAssignment(rows)
		if scanErr != nil {
			rows.Close()
			err = scanErr
			return models.Shift{}, false, err
		}
		cancelled = append(cancelled, assignment)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return models.Shift{}, false, err
	}

	for _, assignment := range cancelled {
		if err = insertAssignmentEvent(ctx, tx, assignment, "assignment.cancelled"); err != nil {
			return models.Shift{}, false, err
		}
		if err = insertOutboxEvent(ctx, tx, shift.TenantID, "assignment.cancelled", assignmentPayload(assignment)); err != nil {
			return models.Shift{}, false, err
		}
	}

	if len(cancelled) > 0 {
		row = tx.QueryRow(ctx, `
			UPDATE shifts
			SET filled_workers = GREATEST(filled_workers - $2, 0), updated_at = now()
			WHERE shift_id = $1
			RETURNING `+shiftColumns+`
		`, shift.ShiftID, len(cancelled))
		if shift, err = scanShift(row); err != nil {
			return models.Shift{}, false, err
		}
	}

	if err = insertActionRequest(ctx, tx, "shift_cancel", input.RequestID, input.TenantID, shift.ShiftID); err != nil {
		return models.Shift{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, shift.TenantID, "shift.cancelled", shiftPayload(shift)); err != nil {
		return models.Shift{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, false, err
	}
	return shift, true, nil
}

func (s *Store) applyShiftTransition(ctx context.Context, input store.ShiftActionInput, action, toStatus, eventType string) (models.Shift, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "shift_"+action, input.RequestID)
	if err != nil {
		return models.Shift{}, false, err
	}
	if found {
		return s.replayShift(ctx, tx, input.TenantID, reference)
	}

	allowed := allowedShiftStatuses(action)
	row := tx.QueryRow(ctx, `
		UPDATE shifts
		SET status = $1, updated_at = now()
		WHERE shift_id = $2 AND tenant_id = $3 AND status = ANY($4)
		RETURNING `+shiftColumns+`
	`, toStatus, input.ShiftID, input.TenantID, allowed)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyShiftFailure(ctx, tx, input.TenantID, input.ShiftID)
			return models.Shift{}, false, err
		}
		return models.Shift{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "shift_"+action, input.RequestID, input.TenantID, shift.ShiftID); err != nil {
		return models.Shift{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, shift.TenantID, eventType, shiftPayload(shift)); err != nil {
		return models.Shift{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, false, err
	}
	return shift, true, nil
}

func allowedShiftStatuses(action string) []string {
	switch action {
	case "publish":
		return []string{models.ShiftDraft}
	case "cancel":
		return []string{models.ShiftDraft, models.ShiftOpen, models.ShiftFilled}
	case "complete":
		return []string{models.ShiftOpen, models.ShiftFilled}
	default:
		return nil
	}
}

func (s *Store) replayShift(ctx context.Context, tx pgx.Tx, tenantID, shiftID string) (models.Shift, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE shift_id = $1 AND tenant_id = $2
	`, shiftID, tenantID)
	shift, err := scanShift(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Shift{}, false, store.ErrShiftNotFound
		}
		return models.Shift{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Shift{}, false, err
	}
	return shift, false, nil
}

func (s *Store) classifyShiftFailure(ctx context.Context, tx pgx.Tx, tenantID, shiftID string) error {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status FROM shifts WHERE shift_id = $1 AND tenant_id = $2
	`, shiftID, tenantID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrShiftNotFound
		}
		return err
	}
	return store.ErrInvalidState
}

// ListOutboxEvents pages by seq; created_at is not unique across events
// written in one transaction.
func (s *Store) ListOutboxEvents(ctx context.Context, tenantID string, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, tenant_id, type, payload_json, created_at
		FROM outbox_events
		WHERE tenant_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, tenantID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.Seq, &event.EventID, &event.TenantID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, tenant_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > now()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.TenantID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func findShiftByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Shift, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE request_id = $1
	`, requestID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Shift{}, false, nil
		}
		return models.Shift{}, false, err
	}
	return shift, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (string, bool, error) {
	var reference string
	row := tx.QueryRow(ctx, `
		SELECT reference_id FROM action_requests WHERE action = $1 AND request_id = $2
	`, action, requestID)
	if err := row.Scan(&reference); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return reference, true, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, tenantID, referenceID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, tenant_id, reference_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (action, request_id) DO NOTHING
	`, action, requestID, tenantID, referenceID)
	return err
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
