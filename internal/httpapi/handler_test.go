package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shiftwork/shift-service/internal/models"
	"shiftwork/shift-service/internal/store"
)

const (
	testShiftID      = "0b54f3f1-6a3e-4a6e-9a6b-2f1d1c3b4a5d"
	testAssignmentID = "9c8e7d6f-5a4b-4c3d-8e2f-1a0b9c8d7e6f"
	testWorkerID     = "3d2c1b0a-9f8e-4d7c-a6b5-4c3d2e1f0a9b"
	testBusinessID   = "7e6f5d4c-3b2a-4190-8f7e-6d5c4b3a2918"
	testAgencyID     = "1a2b3c4d-5e6f-4708-9a0b-1c2d3e4f5a6b"
	testRequestID    = "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e5f"
	testRecordID     = "5f4e3d2c-1b0a-4f9e-8d7c-6b5a4c3d2e1f"
)

var errNotWired = errors.New("fake method not wired")

var _ store.ShiftStore = (*fakeStore)(nil)

type fakeStore struct {
	createShiftFn   func(ctx context.Context, input store.CreateShiftInput) (models.Shift, bool, error)
	getShiftFn      func(ctx context.Context, tenantID, shiftID string) (models.Shift, bool, error)
	listShiftsFn    func(ctx context.Context, tenantID, status string) ([]models.Shift, error)
	claimShiftFn    func(ctx context.Context, input store.ClaimInput) (models.Assignment, bool, error)
	checkInFn       func(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error)
	cancelFn        func(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error)
	completeFn      func(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error)
	correctRecordFn func(ctx context.Context, input store.CorrectRecordInput) (models.TimeTrackingRecord, bool, error)
	listEventsFn    func(ctx context.Context, tenantID string, afterSeq int64, limit int) ([]store.OutboxEvent, error)
	webhookFn       func(ctx context.Context, input store.WebhookInput) (models.LedgerEntry, bool, error)
	withdrawalFn    func(ctx context.Context, input store.WithdrawalInput) (models.LedgerEntry, bool, error)
	getSettlementFn func(ctx context.Context, tenantID, assignmentID string) (models.Settlement, bool, error)
	getSessionFn    func(ctx context.Context, sessionID string) (store.Session, error)
}

func (f *fakeStore) CreateShift(ctx context.Context, input store.CreateShiftInput) (models.Shift, bool, error) {
	if f.createShiftFn == nil {
		return models.Shift{}, false, errNotWired
	}
	return f.createShiftFn(ctx, input)
}

func (f *fakeStore) GetShift(ctx context.Context, tenantID, shiftID string) (models.Shift, bool, error) {
	if f.getShiftFn == nil {
		return models.Shift{}, false, errNotWired
	}
	return f.getShiftFn(ctx, tenantID, shiftID)
}

func (f *fakeStore) ListShifts(ctx context.Context, tenantID, status string) ([]models.Shift, error) {
	if f.listShiftsFn == nil {
		return nil, errNotWired
	}
	return f.listShiftsFn(ctx, tenantID, status)
}

func (f *fakeStore) PublishShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, bool, error) {
	return models.Shift{}, false, errNotWired
}

func (f *fakeStore) CancelShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, bool, error) {
	return models.Shift{}, false, errNotWired
}

func (f *fakeStore) CompleteShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, bool, error) {
	return models.Shift{}, false, errNotWired
}

func (f *fakeStore) ClaimShift(ctx context.Context, input store.ClaimInput) (models.Assignment, bool, error) {
	if f.claimShiftFn == nil {
		return models.Assignment{}, false, errNotWired
	}
	return f.claimShiftFn(ctx, input)
}

func (f *fakeStore) ApplyToShift(ctx context.Context, input store.ApplyInput) (models.ShiftApplication, bool, error) {
	return models.ShiftApplication{}, false, errNotWired
}

func (f *fakeStore) AcceptApplication(ctx context.Context, input store.ApplicationActionInput) (models.Assignment, bool, error) {
	return models.Assignment{}, false, errNotWired
}

func (f *fakeStore) RejectApplication(ctx context.Context, input store.ApplicationActionInput) (models.ShiftApplication, bool, error) {
	return models.ShiftApplication{}, false, errNotWired
}

func (f *fakeStore) WithdrawApplication(ctx context.Context, input store.ApplicationActionInput) (models.ShiftApplication, bool, error) {
	return models.ShiftApplication{}, false, errNotWired
}

func (f *fakeStore) GetAssignment(ctx context.Context, tenantID, assignmentID string) (models.Assignment, bool, error) {
	return models.Assignment{}, false, errNotWired
}

func (f *fakeStore) CheckIn(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	if f.checkInFn == nil {
		return models.Assignment{}, false, errNotWired
	}
	return f.checkInFn(ctx, input)
}

func (f *fakeStore) CheckOut(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	return models.Assignment{}, false, errNotWired
}

func (f *fakeStore) StartBreak(ctx context.Context, input store.AssignmentActionInput) (models.TimeTrackingRecord, bool, error) {
	return models.TimeTrackingRecord{}, false, errNotWired
}

func (f *fakeStore) EndBreak(ctx context.Context, input store.AssignmentActionInput) (models.TimeTrackingRecord, bool, error) {
	return models.TimeTrackingRecord{}, false, errNotWired
}

func (f *fakeStore) CancelAssignment(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	if f.cancelFn == nil {
		return models.Assignment{}, false, errNotWired
	}
	return f.cancelFn(ctx, input)
}

func (f *fakeStore) NoShowAssignment(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	return models.Assignment{}, false, errNotWired
}

func (f *fakeStore) CompleteAssignment(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
	if f.completeFn == nil {
		return models.Assignment{}, false, errNotWired
	}
	return f.completeFn(ctx, input)
}

func (f *fakeStore) AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	return 0, errNotWired
}

func (f *fakeStore) CorrectTimeRecord(ctx context.Context, input store.CorrectRecordInput) (models.TimeTrackingRecord, bool, error) {
	if f.correctRecordFn == nil {
		return models.TimeTrackingRecord{}, false, errNotWired
	}
	return f.correctRecordFn(ctx, input)
}

func (f *fakeStore) ListTimeRecords(ctx context.Context, tenantID, assignmentID string) ([]models.TimeTrackingRecord, error) {
	return nil, errNotWired
}

func (f *fakeStore) ListAssignmentEvents(ctx context.Context, tenantID, assignmentID string) ([]store.AssignmentEvent, error) {
	return nil, errNotWired
}

func (f *fakeStore) GetSettlement(ctx context.Context, tenantID, assignmentID string) (models.Settlement, bool, error) {
	if f.getSettlementFn == nil {
		return models.Settlement{}, false, errNotWired
	}
	return f.getSettlementFn(ctx, tenantID, assignmentID)
}

func (f *fakeStore) RecordPaymentWebhook(ctx context.Context, input store.WebhookInput) (models.LedgerEntry, bool, error) {
	if f.webhookFn == nil {
		return models.LedgerEntry{}, false, errNotWired
	}
	return f.webhookFn(ctx, input)
}

func (f *fakeStore) RequestWithdrawal(ctx context.Context, input store.WithdrawalInput) (models.LedgerEntry, bool, error) {
	if f.withdrawalFn == nil {
		return models.LedgerEntry{}, false, errNotWired
	}
	return f.withdrawalFn(ctx, input)
}

func (f *fakeStore) ListOutboxEvents(ctx context.Context, tenantID string, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if f.listEventsFn == nil {
		return nil, errNotWired
	}
	return f.listEventsFn(ctx, tenantID, afterSeq, limit)
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.getSessionFn == nil {
		return store.Session{}, store.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, sessionID)
}

func newTestHandler(fake *fakeStore) http.Handler {
	h := NewHandler(fake, HandlerOptions{
		DefaultPlatformFeeRate:  decimal.RequireFromString("0.20"),
		DefaultTaxRate:          decimal.Zero,
		DefaultAgencyCommission: decimal.RequireFromString("0.10"),
	})
	return h.Routes()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) responseError {
	t.Helper()
	var parsed errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return parsed.Error
}

func TestClaimShiftFullConflict(t *testing.T) {
	fake := &fakeStore{
		claimShiftFn: func(ctx context.Context, input store.ClaimInput) (models.Assignment, bool, error) {
			return models.Assignment{}, false, store.ErrShiftFull
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/shifts/"+testShiftID+"/claims?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`","worker_id":"`+testWorkerID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "shift_full" {
		t.Fatalf("code = %q, want shift_full", body.Code)
	}
}

func TestClaimCreatedUsesDefaultRates(t *testing.T) {
	var captured store.ClaimInput
	fake := &fakeStore{
		claimShiftFn: func(ctx context.Context, input store.ClaimInput) (models.Assignment, bool, error) {
			captured = input
			return models.Assignment{AssignmentID: testAssignmentID, Status: models.AssignmentAssigned}, true, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/shifts/"+testShiftID+"/claims?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`","worker_id":"`+testWorkerID+`","agency_id":"`+testAgencyID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if captured.ShiftID != testShiftID || captured.TenantID != "t-1" {
		t.Fatalf("claim input = %+v", captured)
	}
	if got := captured.Rates.PlatformFeeRate.String(); got != "0.2" {
		t.Fatalf("platform fee rate = %s, want 0.2", got)
	}
	if got := captured.Rates.AgencyCommissionRate.String(); got != "0.1" {
		t.Fatalf("agency commission rate = %s, want 0.1", got)
	}
}

func TestClaimReplayReturnsOK(t *testing.T) {
	fake := &fakeStore{
		claimShiftFn: func(ctx context.Context, input store.ClaimInput) (models.Assignment, bool, error) {
			return models.Assignment{AssignmentID: testAssignmentID}, false, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/shifts/"+testShiftID+"/claims?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`","worker_id":"`+testWorkerID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on replay", rec.Code)
	}
}

func TestClaimRejectsMalformedIDs(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	t.Run("shift id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/shifts/not-a-uuid/claims?tenant_id=t-1",
			strings.NewReader(`{"request_id":"`+testRequestID+`","worker_id":"`+testWorkerID+`"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if body := decodeError(t, rec); body.Code != "invalid_request" {
			t.Fatalf("code = %q, want invalid_request", body.Code)
		}
	})

	t.Run("worker id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/shifts/"+testShiftID+"/claims?tenant_id=t-1",
			strings.NewReader(`{"request_id":"`+testRequestID+`","worker_id":"w-1"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestCheckInRaceMapsToConflict(t *testing.T) {
	fake := &fakeStore{
		checkInFn: func(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
			return models.Assignment{}, false, store.ErrInvalidState
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/assignments/"+testAssignmentID+"/actions/check-in?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "invalid_state" {
		t.Fatalf("code = %q, want invalid_state", body.Code)
	}
}

func TestActionDefaultsOccurredAt(t *testing.T) {
	var captured store.AssignmentActionInput
	fake := &fakeStore{
		checkInFn: func(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
			captured = input
			return models.Assignment{AssignmentID: testAssignmentID}, true, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/assignments/"+testAssignmentID+"/actions/check-in?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.OccurredAt.IsZero() {
		t.Fatal("occurred_at should default to the server clock")
	}
}

func TestCompleteFlaggedMapsToReviewPending(t *testing.T) {
	fake := &fakeStore{
		completeFn: func(ctx context.Context, input store.AssignmentActionInput) (models.Assignment, bool, error) {
			return models.Assignment{}, false, store.ErrReviewPending
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/assignments/"+testAssignmentID+"/actions/complete?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "review_pending" {
		t.Fatalf("code = %q, want review_pending", body.Code)
	}
}

func TestCorrectRecordRoute(t *testing.T) {
	var captured store.CorrectRecordInput
	fake := &fakeStore{
		correctRecordFn: func(ctx context.Context, input store.CorrectRecordInput) (models.TimeTrackingRecord, bool, error) {
			captured = input
			return models.TimeTrackingRecord{RecordID: testRecordID, AssignmentID: testAssignmentID}, true, nil
		},
	}
	body := `{"request_id":"` + testRequestID + `","occurred_at":"2026-09-01T09:05:00Z","verification":{"method":"gps","confidence":0.95},"reason":"clock skew"}`
	req := httptest.NewRequest(http.MethodPost,
		"/api/assignments/"+testAssignmentID+"/records/"+testRecordID+"/correct?tenant_id=t-1",
		strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestHandler(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.RecordID != testRecordID || captured.AssignmentID != testAssignmentID {
		t.Fatalf("correct input = %+v", captured)
	}
	if captured.Verification.Confidence != 0.95 {
		t.Fatalf("confidence = %v, want 0.95", captured.Verification.Confidence)
	}
}

func TestCorrectRecordRejectsMalformedRecordID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost,
		"/api/assignments/"+testAssignmentID+"/records/not-a-uuid/correct?tenant_id=t-1",
		strings.NewReader(`{"request_id":"`+testRequestID+`"}`))
	rec := httptest.NewRecorder()
	newTestHandler(&fakeStore{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEventsCursorIsSequence(t *testing.T) {
	var capturedAfter int64 = -1
	fake := &fakeStore{
		listEventsFn: func(ctx context.Context, tenantID string, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
			capturedAfter = afterSeq
			return []store.OutboxEvent{{Seq: 43, EventID: testRequestID, Type: "shift.created"}}, nil
		},
	}
	handler := newTestHandler(fake)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?tenant_id=t-1&after=42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if capturedAfter != 42 {
		t.Fatalf("after = %d, want 42", capturedAfter)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?tenant_id=t-1&after=2026-05-01T10:00:00Z", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric cursor status = %d, want 400", rec.Code)
	}
}

func TestWebhookReplayReturnsOriginalEntry(t *testing.T) {
	original := models.LedgerEntry{EntryID: "e-1", IdempotencyKey: "webhook:evt-1", Status: models.LedgerCompleted}
	calls := 0
	fake := &fakeStore{
		webhookFn: func(ctx context.Context, input store.WebhookInput) (models.LedgerEntry, bool, error) {
			calls++
			return original, calls == 1, nil
		},
	}
	handler := newTestHandler(fake)
	body := `{"provider_event_id":"evt-1","payload":{"amount":100}}`

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", strings.NewReader(body)))
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", strings.NewReader(body)))
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", second.Code)
	}
	var replayed models.LedgerEntry
	if err := json.Unmarshal(second.Body.Bytes(), &replayed); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replayed.EntryID != original.EntryID {
		t.Fatalf("replay entry = %q, want %q", replayed.EntryID, original.EntryID)
	}
}

func TestCreateShiftValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing request_id", `{"business_id":"` + testBusinessID + `","title":"t","required_workers":1,"hourly_rate_minor":2000,"start_time":"2026-09-01T09:00:00Z","end_time":"2026-09-01T17:00:00Z"}`},
		{"request_id not a uuid", `{"request_id":"r","business_id":"` + testBusinessID + `","title":"t","required_workers":1,"hourly_rate_minor":2000,"start_time":"2026-09-01T09:00:00Z","end_time":"2026-09-01T17:00:00Z"}`},
		{"zero workers", `{"request_id":"` + testRequestID + `","business_id":"` + testBusinessID + `","title":"t","required_workers":0,"hourly_rate_minor":2000,"start_time":"2026-09-01T09:00:00Z","end_time":"2026-09-01T17:00:00Z"}`},
		{"end before start", `{"request_id":"` + testRequestID + `","business_id":"` + testBusinessID + `","title":"t","required_workers":1,"hourly_rate_minor":2000,"start_time":"2026-09-01T17:00:00Z","end_time":"2026-09-01T09:00:00Z"}`},
		{"malformed json", `{`},
	}
	handler := newTestHandler(&fakeStore{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/shifts?tenant_id=t-1", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestShiftsMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/shifts", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	fake := &fakeStore{
		getSessionFn: func(ctx context.Context, sessionID string) (store.Session, error) {
			if sessionID == "good" {
				return store.Session{SessionID: "good", TenantID: "t-1"}, nil
			}
			return store.Session{}, store.ErrSessionNotFound
		},
		getShiftFn: func(ctx context.Context, tenantID, shiftID string) (models.Shift, bool, error) {
			if tenantID != "t-1" {
				t.Fatalf("tenant = %q, want session tenant", tenantID)
			}
			return models.Shift{ShiftID: shiftID}, true, nil
		},
		listShiftsFn: func(ctx context.Context, tenantID, status string) ([]models.Shift, error) {
			return nil, nil
		},
	}
	handler := AuthMiddleware(fake, newTestHandler(fake))

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shifts/"+testShiftID, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/shifts/"+testShiftID, nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("session tenant wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/shifts/"+testShiftID+"?tenant_id=other", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("public listing skips auth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shifts?tenant_id=t-1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/shifts?tenant_id=t-1", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", codes[2])
	}
}
