package store

import (
	"encoding/json"
	"testing"
	"time"

	"shiftwork/shift-service/internal/models"
)

func chainEvent(t *testing.T, prev string, seq int, eventType string, payload any, at time.Time) AssignmentEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return AssignmentEvent{
		AssignmentID: "a-1",
		Seq:          seq,
		Type:         eventType,
		Payload:      raw,
		CreatedAt:    at,
		PrevHash:     prev,
		Hash:         ComputeAssignmentEventHash(prev, "a-1", eventType, raw, at, seq),
	}
}

func TestVerifyAssignmentChain(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	first := chainEvent(t, "", 1, "assignment.claimed", map[string]string{"status": "assigned"}, base)
	second := chainEvent(t, first.Hash, 2, "assignment.checked_in", map[string]string{"status": "checked_in"}, base.Add(time.Minute))

	if idx, ok := VerifyAssignmentChain([]AssignmentEvent{first, second}); !ok {
		t.Fatalf("valid chain rejected at %d", idx)
	}

	tampered := second
	tampered.Payload = json.RawMessage(`{"status":"completed"}`)
	if idx, ok := VerifyAssignmentChain([]AssignmentEvent{first, tampered}); ok || idx != 1 {
		t.Fatalf("tampered chain accepted (idx=%d ok=%v)", idx, ok)
	}
}

func TestRehydrateAssignment(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	checkIn := base.Add(5 * time.Minute)
	minutes := 450

	first := chainEvent(t, "", 1, "assignment.claimed", assignmentEventPayload{
		AssignmentID: "a-1",
		ShiftID:      "s-1",
		WorkerID:     "w-1",
		Status:       models.AssignmentAssigned,
	}, base)
	second := chainEvent(t, first.Hash, 2, "assignment.checked_in", assignmentEventPayload{
		AssignmentID: "a-1",
		Status:       models.AssignmentCheckedIn,
		CheckInTime:  &checkIn,
	}, checkIn)
	third := chainEvent(t, second.Hash, 3, "assignment.checked_out", assignmentEventPayload{
		AssignmentID:       "a-1",
		Status:             models.AssignmentCheckedOut,
		HoursWorkedMinutes: &minutes,
	}, base.Add(8*time.Hour))

	assignment, err := RehydrateAssignment([]AssignmentEvent{first, second, third})
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if assignment.Status != models.AssignmentCheckedOut {
		t.Fatalf("status = %q, want checked_out", assignment.Status)
	}
	if assignment.ShiftID != "s-1" || assignment.WorkerID != "w-1" {
		t.Fatalf("identity lost: %+v", assignment)
	}
	if assignment.CheckInTime == nil || !assignment.CheckInTime.Equal(checkIn) {
		t.Fatalf("check-in time lost: %+v", assignment.CheckInTime)
	}
	if assignment.HoursWorkedMinutes == nil || *assignment.HoursWorkedMinutes != 450 {
		t.Fatalf("hours lost: %+v", assignment.HoursWorkedMinutes)
	}
}
