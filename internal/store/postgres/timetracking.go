package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const timeRecordColumns = `record_id, assignment_id, event_type, recorded_at,
	verification_method, confidence::float8, latitude, longitude, device_id,
	system_adjusted, flagged, deleted_at, created_at`

func scanTimeRecord(row pgx.Row) (models.TimeTrackingRecord, error) {
	var record models.TimeTrackingRecord
	var latitude, longitude sql.NullFloat64
	var deletedAt sql.NullTime
	err := row.Scan(&record.RecordID, &record.AssignmentID, &record.EventType,
		&record.RecordedAt, &record.VerificationMethod, &record.Confidence,
		&latitude, &longitude, &record.DeviceID, &record.SystemAdjusted,
		&record.Flagged, &deletedAt, &record.CreatedAt)
	if err != nil {
		return models.TimeTrackingRecord{}, err
	}
	if latitude.Valid {
		v := latitude.Float64
		record.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		record.Longitude = &v
	}
	record.DeletedAt = nullTimePtr(deletedAt)
	return record, nil
}

// insertTimeRecord appends one worker-submitted event. Confidence below the
// threshold flags the record; the request still succeeds.
func insertTimeRecord(ctx context.Context, tx pgx.Tx, assignmentID, eventType string, recordedAt time.Time, verification store.Verification, systemAdjusted bool, minConfidence float64) (models.TimeTrackingRecord, error) {
	flagged := verification.Confidence < minConfidence && !systemAdjusted
	row := tx.QueryRow(ctx, `
		INSERT INTO time_tracking_records (
			record_id, assignment_id, event_type, recorded_at, verification_method,
			confidence, latitude, longitude, device_id, system_adjusted, flagged, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		RETURNING `+timeRecordColumns+`
	`, uuid.NewString(), assignmentID, eventType, recordedAt, verification.Method,
		verification.Confidence, verification.Latitude, verification.Longitude,
		verification.DeviceID, systemAdjusted, flagged)
	return scanTimeRecord(row)
}

// insertSystemRecord appends a record produced by the service itself, such
// as the break_end that closes an open break at clock-out. Always flagged
// for audit.
func insertSystemRecord(ctx context.Context, tx pgx.Tx, assignmentID, eventType string, recordedAt time.Time) (models.TimeTrackingRecord, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO time_tracking_records (
			record_id, assignment_id, event_type, recorded_at, verification_method,
			confidence, system_adjusted, flagged, created_at
		) VALUES ($1, $2, $3, $4, 'system', 1, TRUE, TRUE, now())
		RETURNING `+timeRecordColumns+`
	`, uuid.NewString(), assignmentID, eventType, recordedAt)
	return scanTimeRecord(row)
}

func listLiveRecords(ctx context.Context, tx pgx.Tx, assignmentID string) ([]models.TimeTrackingRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+timeRecordColumns+`
		FROM time_tracking_records
		WHERE assignment_id = $1 AND deleted_at IS NULL
		ORDER BY recorded_at ASC, created_at ASC
	`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TimeTrackingRecord
	for rows.Next() {
		record, err := scanTimeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func loadTimeRecord(ctx context.Context, tx pgx.Tx, recordID string) (models.TimeTrackingRecord, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+timeRecordColumns+`
		FROM time_tracking_records
		WHERE record_id = $1
	`, recordID)
	record, err := scanTimeRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TimeTrackingRecord{}, store.ErrRecordNotFound
		}
		return models.TimeTrackingRecord{}, err
	}
	return record, nil
}

// CorrectTimeRecord retires one record with a deleted_at marker and appends
// a replacement carrying the corrected time and verification. The live
// sequence is revalidated as a whole and the assignment's check-in/out
// times, worked minutes, and flag are recomputed from what survives, so a
// correction can clear a review hold.
func (s *Store) CorrectTimeRecord(ctx context.Context, input store.CorrectRecordInput) (models.TimeTrackingRecord, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reference, found, err := findActionRequest(ctx, tx, "record_correct", input.RequestID)
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
	if assignment.Status != models.AssignmentCheckedIn && assignment.Status != models.AssignmentCheckedOut {
		err = store.ErrInvalidState
		return models.TimeTrackingRecord{}, false, err
	}

	original, err := loadTimeRecord(ctx, tx, input.RecordID)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if original.AssignmentID != assignment.AssignmentID || original.DeletedAt != nil {
		err = store.ErrRecordNotFound
		return models.TimeTrackingRecord{}, false, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE time_tracking_records
		SET deleted_at = now()
		WHERE record_id = $1 AND deleted_at IS NULL
	`, original.RecordID); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = original.RecordedAt
	}
	replacement, err := insertTimeRecord(ctx, tx, assignment.AssignmentID, original.EventType, occurredAt, input.Verification, false, s.minConfidence)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}

	records, err := listLiveRecords(ctx, tx, assignment.AssignmentID)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	lastEvent := ""
	for _, record := range records {
		if !store.ValidTimeEvent(lastEvent, record.EventType) {
			err = store.ErrInvalidEventOrder
			return models.TimeTrackingRecord{}, false, err
		}
		lastEvent = record.EventType
	}

	var checkIn, checkOut *time.Time
	flagged := false
	for _, record := range records {
		flagged = flagged || record.Flagged
		switch record.EventType {
		case models.EventClockIn:
			if checkIn == nil {
				at := record.RecordedAt
				checkIn = &at
			}
		case models.EventClockOut:
			at := record.RecordedAt
			checkOut = &at
		}
	}
	var minutes interface{}
	anomalyNote := ""
	if checkOut != nil {
		worked := store.WorkedMinutes(records, *checkOut)
		if worked > s.maxShiftMinutes {
			anomalyNote = fmt.Sprintf("worked %d minutes, above limit of %d", worked, s.maxShiftMinutes)
		}
		minutes = worked
	}

	row := tx.QueryRow(ctx, `
		UPDATE shift_assignments
		SET check_in_time = $2, check_out_time = $3, hours_worked_minutes = $4,
			flagged = $5, anomaly_note = $6, updated_at = now()
		WHERE assignment_id = $1
		RETURNING `+assignmentColumns+`
	`, assignment.AssignmentID, checkIn, checkOut, minutes, flagged, anomalyNote)
	assignment, err = scanAssignment(row)
	if err != nil {
		return models.TimeTrackingRecord{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "record_correct", input.RequestID, shift.TenantID, replacement.RecordID); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if err = insertAssignmentEvent(ctx, tx, assignment, "record.corrected"); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, shift.TenantID, "record.corrected", recordPayload(replacement)); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.TimeTrackingRecord{}, false, err
	}
	return replacement, true, nil
}

// ListTimeRecords returns every record including soft-deleted ones; callers
// see corrections with their deleted_at marker.
func (s *Store) ListTimeRecords(ctx context.Context, tenantID, assignmentID string) ([]models.TimeTrackingRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.record_id, r.assignment_id, r.event_type, r.recorded_at,
			r.verification_method, r.confidence::float8, r.latitude, r.longitude,
			r.device_id, r.system_adjusted, r.flagged, r.deleted_at, r.created_at
		FROM time_tracking_records r
		JOIN shift_assignments a ON a.assignment_id = r.assignment_id
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE r.assignment_id = $1 AND sh.tenant_id = $2
		ORDER BY r.recorded_at ASC, r.created_at ASC
	`, assignmentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TimeTrackingRecord
	for rows.Next() {
		record, err := scanTimeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
