package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, tenantID, eventType string, payload json.RawMessage) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, tenant_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, uuid.NewString(), tenantID, eventType, payload)
	return err
}

// insertAssignmentEvent appends one link to the assignment's hash chain. The
// caller holds the assignment row FOR UPDATE, which serializes seq per chain.
func insertAssignmentEvent(ctx context.Context, tx pgx.Tx, assignment models.Assignment, eventType string) error {
	var lastSeq int
	var prevHash string
	row := tx.QueryRow(ctx, `
		SELECT seq, hash FROM assignment_events
		WHERE assignment_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, assignment.AssignmentID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	payload := assignmentPayload(assignment)
	createdAt := time.Now().UTC()
	seq := lastSeq + 1
	hash := store.ComputeAssignmentEventHash(prevHash, assignment.AssignmentID, eventType, payload, createdAt, seq)

	_, err := tx.Exec(ctx, `
		INSERT INTO assignment_events (assignment_id, seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, assignment.AssignmentID, seq, eventType, payload, createdAt, prevHash, hash)
	return err
}

func (s *Store) ListAssignmentEvents(ctx context.Context, tenantID, assignmentID string) ([]store.AssignmentEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.assignment_id, e.seq, e.type, e.payload, e.created_at, e.prev_hash, e.hash
		FROM assignment_events e
		JOIN shift_assignments a ON a.assignment_id = e.assignment_id
		JOIN shifts sh ON sh.shift_id = a.shift_id
		WHERE e.assignment_id = $1 AND sh.tenant_id = $2
		ORDER BY e.seq ASC
	`, assignmentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.AssignmentEvent
	for rows.Next() {
		var event store.AssignmentEvent
		if err := rows.Scan(&event.AssignmentID, &event.Seq, &event.Type, &event.Payload,
			&event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Relay support. These are not part of the ShiftStore contract; the outbox
// relay worker consumes them directly.

func (s *Store) ListAllOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, tenant_id, type, payload_json, created_at
		FROM outbox_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
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

func (s *Store) GetRelayOffset(ctx context.Context, relay string) (int64, error) {
	var last int64
	row := s.pool.QueryRow(ctx, `SELECT last_seq FROM relay_offsets WHERE relay = $1`, relay)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return last, nil
}

func (s *Store) SetRelayOffset(ctx context.Context, relay string, last int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_offsets (relay, last_seq)
		VALUES ($1, $2)
		ON CONFLICT (relay) DO UPDATE SET last_seq = EXCLUDED.last_seq
	`, relay, last)
	return err
}

func shiftPayload(shift models.Shift) json.RawMessage {
	raw, err := json.Marshal(shift)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func assignmentPayload(assignment models.Assignment) json.RawMessage {
	raw, err := json.Marshal(assignment)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func applicationPayload(application models.ShiftApplication) json.RawMessage {
	raw, err := json.Marshal(application)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func recordPayload(record models.TimeTrackingRecord) json.RawMessage {
	raw, err := json.Marshal(record)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func settlementPayload(settlement models.Settlement) json.RawMessage {
	raw, err := json.Marshal(settlement)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
