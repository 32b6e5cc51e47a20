package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shiftwork/shift-service/internal/settlement"
	"shiftwork/shift-service/internal/store"
)

type Handler struct {
	store                   store.ShiftStore
	defaultPlatformFeeRate  decimal.Decimal
	defaultTaxRate          decimal.Decimal
	defaultAgencyCommission decimal.Decimal
}

type HandlerOptions struct {
	DefaultPlatformFeeRate  decimal.Decimal
	DefaultTaxRate          decimal.Decimal
	DefaultAgencyCommission decimal.Decimal
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.ShiftStore, options HandlerOptions) *Handler {
	return &Handler{
		store:                   store,
		defaultPlatformFeeRate:  options.DefaultPlatformFeeRate,
		defaultTaxRate:          options.DefaultTaxRate,
		defaultAgencyCommission: options.DefaultAgencyCommission,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/shifts", h.handleShifts)
	mux.HandleFunc("/api/shifts/", h.handleShiftSubroutes)
	mux.HandleFunc("/api/applications/", h.handleApplicationActions)
	mux.HandleFunc("/api/assignments/", h.handleAssignmentSubroutes)
	mux.HandleFunc("/api/webhooks/payments", h.handlePaymentWebhook)
	mux.HandleFunc("/api/withdrawals", h.handleWithdrawals)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createShiftRequest struct {
	RequestID       string    `json:"request_id"`
	BusinessID      string    `json:"business_id"`
	Title           string    `json:"title"`
	Location        string    `json:"location"`
	RequiredWorkers int       `json:"required_workers"`
	HourlyRateMinor int64     `json:"hourly_rate_minor"`
	Currency        string    `json:"currency"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	AgencyAllowed   *bool     `json:"agency_allowed"`
	Publish         bool      `json:"publish"`
}

func (h *Handler) handleShifts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateShift(w, r)
	case http.MethodGet:
		h.handleListShifts(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateShift(w http.ResponseWriter, r *http.Request) {
	var req createShiftRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Currency = strings.TrimSpace(req.Currency)

	if req.RequestID == "" || req.BusinessID == "" || req.Title == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, business_id, and title are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.BusinessID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and business_id must be UUIDs")
		return
	}
	if req.RequiredWorkers <= 0 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "required_workers must be positive")
		return
	}
	if req.HourlyRateMinor <= 0 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "hourly_rate_minor must be positive")
		return
	}
	if req.StartTime.IsZero() || !req.EndTime.After(req.StartTime) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "end_time must be after start_time")
		return
	}

	agencyAllowed := true
	if req.AgencyAllowed != nil {
		agencyAllowed = *req.AgencyAllowed
	}

	shift, created, err := h.store.CreateShift(r.Context(), store.CreateShiftInput{
		RequestID:       req.RequestID,
		TenantID:        tenantFrom(r),
		BusinessID:      req.BusinessID,
		Title:           req.Title,
		Location:        req.Location,
		RequiredWorkers: req.RequiredWorkers,
		HourlyRateMinor: req.HourlyRateMinor,
		Currency:        req.Currency,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		AgencyAllowed:   agencyAllowed,
		Publish:         req.Publish,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, shift)
}

func (h *Handler) handleListShifts(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	shifts, err := h.store.ListShifts(r.Context(), tenantID, strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shifts": shifts})
}

func (h *Handler) handleShiftSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/shifts/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	shiftID := parts[0]
	if !isValidUUID(shiftID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "shift_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetShift(w, r, shiftID)
	case len(parts) == 2 && parts[1] == "claims":
		h.handleClaim(w, r, shiftID)
	case len(parts) == 2 && parts[1] == "applications":
		h.handleApply(w, r, shiftID)
	case len(parts) == 3 && parts[1] == "actions":
		h.handleShiftAction(w, r, shiftID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetShift(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	shift, _, err := h.store.GetShift(r.Context(), tenantFrom(r), shiftID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

type actionRequest struct {
	RequestID    string             `json:"request_id"`
	Reason       string             `json:"reason"`
	OccurredAt   time.Time          `json:"occurred_at"`
	Verification store.Verification `json:"verification"`
}

func decodeAction(w http.ResponseWriter, r *http.Request) (actionRequest, bool) {
	var req actionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return actionRequest{}, false
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return actionRequest{}, false
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return actionRequest{}, false
	}
	if req.OccurredAt.IsZero() {
		req.OccurredAt = time.Now().UTC()
	}
	return req, true
}

func (h *Handler) handleShiftAction(w http.ResponseWriter, r *http.Request, shiftID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	input := store.ShiftActionInput{
		RequestID:  req.RequestID,
		TenantID:   tenantFrom(r),
		ShiftID:    shiftID,
		Reason:     req.Reason,
		OccurredAt: req.OccurredAt,
	}

	var result interface{}
	var err error
	switch action {
	case "publish":
		result, _, err = h.store.PublishShift(r.Context(), input)
	case "cancel":
		result, _, err = h.store.CancelShift(r.Context(), input)
	case "complete":
		result, _, err = h.store.CompleteShift(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type claimRequest struct {
	RequestID            string `json:"request_id"`
	WorkerID             string `json:"worker_id"`
	AgencyID             string `json:"agency_id"`
	PlatformFeeRate      string `json:"platform_fee_rate"`
	AgencyCommissionRate string `json:"agency_commission_rate"`
	TaxRate              string `json:"tax_rate"`
}

// resolveRates snapshots the split rates at claim time. Explicit rates in the
// request win; otherwise platform defaults apply, and the agency commission
// defaults to zero unless an agency is involved.
func (h *Handler) resolveRates(req claimRequest) (settlement.RateResolution, error) {
	rates := settlement.RateResolution{
		PlatformFeeRate:      h.defaultPlatformFeeRate,
		AgencyCommissionRate: decimal.Zero,
		TaxRate:              h.defaultTaxRate,
	}
	if req.AgencyID != "" {
		rates.AgencyCommissionRate = h.defaultAgencyCommission
	}
	var err error
	if req.PlatformFeeRate != "" {
		if rates.PlatformFeeRate, err = decimal.NewFromString(req.PlatformFeeRate); err != nil {
			return settlement.RateResolution{}, err
		}
	}
	if req.AgencyCommissionRate != "" {
		if rates.AgencyCommissionRate, err = decimal.NewFromString(req.AgencyCommissionRate); err != nil {
			return settlement.RateResolution{}, err
		}
	}
	if req.TaxRate != "" {
		if rates.TaxRate, err = decimal.NewFromString(req.TaxRate); err != nil {
			return settlement.RateResolution{}, err
		}
	}
	return rates, nil
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req claimRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	req.AgencyID = strings.TrimSpace(req.AgencyID)

	if req.RequestID == "" || req.WorkerID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and worker_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.WorkerID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and worker_id must be UUIDs")
		return
	}
	if req.AgencyID != "" && !isValidUUID(req.AgencyID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "agency_id must be a UUID")
		return
	}
	rates, err := h.resolveRates(req)
	if err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "rates must be decimal strings")
		return
	}

	assignment, created, err := h.store.ClaimShift(r.Context(), store.ClaimInput{
		RequestID: req.RequestID,
		TenantID:  tenantFrom(r),
		ShiftID:   shiftID,
		WorkerID:  req.WorkerID,
		AgencyID:  req.AgencyID,
		Rates:     rates,
		ClaimedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, assignment)
}

type applyRequest struct {
	RequestID string `json:"request_id"`
	WorkerID  string `json:"worker_id"`
	AgencyID  string `json:"agency_id"`
	Note      string `json:"note"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req applyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	req.AgencyID = strings.TrimSpace(req.AgencyID)
	req.Note = strings.TrimSpace(req.Note)

	if req.RequestID == "" || req.WorkerID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and worker_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.WorkerID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and worker_id must be UUIDs")
		return
	}
	if req.AgencyID != "" && !isValidUUID(req.AgencyID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "agency_id must be a UUID")
		return
	}

	application, created, err := h.store.ApplyToShift(r.Context(), store.ApplyInput{
		RequestID: req.RequestID,
		TenantID:  tenantFrom(r),
		ShiftID:   shiftID,
		WorkerID:  req.WorkerID,
		AgencyID:  req.AgencyID,
		Note:      req.Note,
		AppliedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, application)
}

type applicationActionRequest struct {
	RequestID            string `json:"request_id"`
	PlatformFeeRate      string `json:"platform_fee_rate"`
	AgencyCommissionRate string `json:"agency_commission_rate"`
	TaxRate              string `json:"tax_rate"`
}

func (h *Handler) handleApplicationActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/applications/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	applicationID := parts[0]
	action := parts[2]
	if !isValidUUID(applicationID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "application_id must be a UUID")
		return
	}

	var req applicationActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	rates, err := h.resolveRates(claimRequest{
		PlatformFeeRate:      req.PlatformFeeRate,
		AgencyCommissionRate: req.AgencyCommissionRate,
		TaxRate:              req.TaxRate,
	})
	if err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "rates must be decimal strings")
		return
	}
	input := store.ApplicationActionInput{
		RequestID:     req.RequestID,
		TenantID:      tenantFrom(r),
		ApplicationID: applicationID,
		Rates:         rates,
		OccurredAt:    time.Now().UTC(),
	}

	var result interface{}
	switch action {
	case "accept":
		result, _, err = h.store.AcceptApplication(r.Context(), input)
	case "reject":
		result, _, err = h.store.RejectApplication(r.Context(), input)
	case "withdraw":
		result, _, err = h.store.WithdrawApplication(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAssignmentSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/assignments/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	assignmentID := parts[0]
	if !isValidUUID(assignmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "assignment_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetAssignment(w, r, assignmentID)
	case len(parts) == 2 && parts[1] == "records":
		h.handleListRecords(w, r, assignmentID)
	case len(parts) == 4 && parts[1] == "records" && parts[3] == "correct":
		h.handleCorrectRecord(w, r, assignmentID, parts[2])
	case len(parts) == 2 && parts[1] == "events":
		h.handleAssignmentEvents(w, r, assignmentID)
	case len(parts) == 2 && parts[1] == "settlement":
		h.handleGetSettlement(w, r, assignmentID)
	case len(parts) == 3 && parts[1] == "actions":
		h.handleAssignmentAction(w, r, assignmentID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetAssignment(w http.ResponseWriter, r *http.Request, assignmentID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	assignment, _, err := h.store.GetAssignment(r.Context(), tenantFrom(r), assignmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (h *Handler) handleAssignmentAction(w http.ResponseWriter, r *http.Request, assignmentID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	input := store.AssignmentActionInput{
		RequestID:    req.RequestID,
		TenantID:     tenantFrom(r),
		AssignmentID: assignmentID,
		Reason:       req.Reason,
		OccurredAt:   req.OccurredAt,
		Verification: req.Verification,
	}

	var result interface{}
	var err error
	switch action {
	case "check-in":
		result, _, err = h.store.CheckIn(r.Context(), input)
	case "check-out":
		result, _, err = h.store.CheckOut(r.Context(), input)
	case "break-start":
		result, _, err = h.store.StartBreak(r.Context(), input)
	case "break-end":
		result, _, err = h.store.EndBreak(r.Context(), input)
	case "cancel":
		result, _, err = h.store.CancelAssignment(r.Context(), input)
	case "no-show":
		result, _, err = h.store.NoShowAssignment(r.Context(), input)
	case "complete":
		result, _, err = h.store.CompleteAssignment(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type correctRecordRequest struct {
	RequestID    string             `json:"request_id"`
	OccurredAt   time.Time          `json:"occurred_at"`
	Verification store.Verification `json:"verification"`
	Reason       string             `json:"reason"`
}

func (h *Handler) handleCorrectRecord(w http.ResponseWriter, r *http.Request, assignmentID, recordID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(recordID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "record_id must be a UUID")
		return
	}

	var req correctRecordRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	record, _, err := h.store.CorrectTimeRecord(r.Context(), store.CorrectRecordInput{
		RequestID:    req.RequestID,
		TenantID:     tenantFrom(r),
		AssignmentID: assignmentID,
		RecordID:     recordID,
		OccurredAt:   req.OccurredAt,
		Verification: req.Verification,
		Reason:       req.Reason,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request, assignmentID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	records, err := h.store.ListTimeRecords(r.Context(), tenantFrom(r), assignmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (h *Handler) handleAssignmentEvents(w http.ResponseWriter, r *http.Request, assignmentID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	events, err := h.store.ListAssignmentEvents(r.Context(), tenantFrom(r), assignmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) handleGetSettlement(w http.ResponseWriter, r *http.Request, assignmentID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	posted, _, err := h.store.GetSettlement(r.Context(), tenantFrom(r), assignmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, posted)
}

type webhookRequest struct {
	ProviderEventID string          `json:"provider_event_id"`
	Payload         json.RawMessage `json:"payload"`
}

func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req webhookRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ProviderEventID = strings.TrimSpace(req.ProviderEventID)
	if req.ProviderEventID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "provider_event_id is required")
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	entry, recorded, err := h.store.RecordPaymentWebhook(r.Context(), store.WebhookInput{
		ProviderEventID: req.ProviderEventID,
		Payload:         req.Payload,
		ReceivedAt:      time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	status := http.StatusOK
	if recorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, entry)
}

type withdrawalRequest struct {
	RequestKey  string `json:"request_key"`
	WorkerID    string `json:"worker_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

func (h *Handler) handleWithdrawals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req withdrawalRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestKey = strings.TrimSpace(req.RequestKey)
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	req.Currency = strings.TrimSpace(req.Currency)

	if req.RequestKey == "" || req.WorkerID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "request_key and worker_id are required")
		return
	}
	if !isValidUUID(req.WorkerID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "worker_id must be a UUID")
		return
	}
	if req.AmountMinor <= 0 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "amount_minor must be positive")
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "invalid request payload")
		return
	}
	entry, recorded, err := h.store.RequestWithdrawal(r.Context(), store.WithdrawalInput{
		RequestKey:  req.RequestKey,
		TenantID:    tenantFrom(r),
		WorkerID:    req.WorkerID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Payload:     payload,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	status := http.StatusOK
	if recorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, entry)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after int64
	if afterRaw != "" {
		parsed, err := strconv.ParseInt(afterRaw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be a non-negative event sequence number")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), tenantID, after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrShiftNotFound):
		return http.StatusNotFound, "shift_not_found", "shift not found"
	case errors.Is(err, store.ErrAssignmentNotFound):
		return http.StatusNotFound, "assignment_not_found", "assignment not found"
	case errors.Is(err, store.ErrApplicationNotFound):
		return http.StatusNotFound, "application_not_found", "application not found"
	case errors.Is(err, store.ErrSettlementNotFound):
		return http.StatusNotFound, "settlement_not_found", "settlement not posted"
	case errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound, "record_not_found", "time record not found"
	case errors.Is(err, store.ErrShiftFull):
		return http.StatusConflict, "shift_full", "shift has no open slots"
	case errors.Is(err, store.ErrAlreadyAssigned):
		return http.StatusConflict, "already_assigned", "worker already holds this shift"
	case errors.Is(err, store.ErrShiftNotClaimable):
		return http.StatusConflict, "shift_not_claimable", "shift is not open for claims"
	case errors.Is(err, store.ErrDuplicateApplication):
		return http.StatusConflict, "duplicate_application", "worker already applied to this shift"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "current state does not allow this action"
	case errors.Is(err, store.ErrInvalidEventOrder):
		return http.StatusConflict, "invalid_event_order", "time event out of order"
	case errors.Is(err, store.ErrCheckInWindow):
		return http.StatusConflict, "checkin_window", "check-in outside the allowed window"
	case errors.Is(err, store.ErrReviewPending):
		return http.StatusConflict, "review_pending", "flagged records require review before settlement"
	case errors.Is(err, store.ErrAgencyNotAllowed):
		return http.StatusForbidden, "agency_not_allowed", "shift does not accept agency workers"
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
