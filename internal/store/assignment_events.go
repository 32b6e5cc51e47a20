package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"shiftwork/shift-service/internal/models"
)

// AssignmentEvent is one link in the per-assignment audit chain. Each hash
// covers the previous hash, so tampering with history is detectable offline.
type AssignmentEvent struct {
	AssignmentID string          `json:"assignment_id"`
	Seq          int             `json:"seq"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	PrevHash     string          `json:"prev_hash"`
	Hash         string          `json:"hash"`
}

type assignmentEventPayload struct {
	AssignmentID       string     `json:"assignment_id"`
	ShiftID            string     `json:"shift_id"`
	WorkerID           string     `json:"worker_id"`
	Status             string     `json:"status"`
	CheckInTime        *time.Time `json:"check_in_time"`
	CheckOutTime       *time.Time `json:"check_out_time"`
	HoursWorkedMinutes *int       `json:"hours_worked_minutes"`
	Flagged            *bool      `json:"flagged"`
	AnomalyNote        string     `json:"anomaly_note"`
}

func ComputeAssignmentEventHash(prevHash, assignmentID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, assignmentID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyAssignmentChain recomputes every hash in sequence order and reports
// the first broken link, if any.
func VerifyAssignmentChain(events []AssignmentEvent) (int, bool) {
	prev := ""
	for i, event := range events {
		want := ComputeAssignmentEventHash(prev, event.AssignmentID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != want || event.PrevHash != prev {
			return i, false
		}
		prev = event.Hash
	}
	return -1, true
}

// RehydrateAssignment folds an event chain into the assignment's latest
// state, for reconciliation against the row projection.
func RehydrateAssignment(events []AssignmentEvent) (models.Assignment, error) {
	var assignment models.Assignment
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload assignmentEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Assignment{}, err
		}
		if payload.AssignmentID != "" {
			assignment.AssignmentID = payload.AssignmentID
		}
		if payload.ShiftID != "" {
			assignment.ShiftID = payload.ShiftID
		}
		if payload.WorkerID != "" {
			assignment.WorkerID = payload.WorkerID
		}
		if payload.Status != "" {
			assignment.Status = payload.Status
		}
		if payload.CheckInTime != nil {
			assignment.CheckInTime = payload.CheckInTime
		}
		if payload.CheckOutTime != nil {
			assignment.CheckOutTime = payload.CheckOutTime
		}
		if payload.HoursWorkedMinutes != nil {
			assignment.HoursWorkedMinutes = payload.HoursWorkedMinutes
		}
		if payload.Flagged != nil {
			assignment.Flagged = *payload.Flagged
		}
		if payload.AnomalyNote != "" {
			assignment.AnomalyNote = payload.AnomalyNote
		}
	}
	return assignment, nil
}
