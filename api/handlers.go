/*
handlers.go - HTTP API handlers for the recovery-day conversion engine

PURPOSE:
  Exposes the conversion engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET  /api/employees/{id}/recovery-balance  Spendable overtime balance
    GET  /api/employees/{id}/recovery-days     Grant history
    GET  /api/employees/{id}/recovery-summary  Day counts per status
    GET  /api/employees/{id}/blocked-dates     Dates covered by grants

  Recovery days:
    POST  /api/recovery-days/convert       Convert overtime to a grant
    POST  /api/recovery-days               Create a grant manually
    GET   /api/recovery-days               List grants (filter + paginate)
    GET   /api/recovery-days/{id}          Grant with its ledger entries
    PATCH /api/recovery-days/{id}          Amend a pending grant
    POST  /api/recovery-days/{id}/approve  PENDING -> APPROVED
    POST  /api/recovery-days/{id}/cancel   Reverse a grant

TENANCY:
  The tenant comes from the X-Tenant-ID header, defaulting to "default".
  The approver identity comes from X-User-ID.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient balance
  - 404: Resource not found
  - 409: Calendar conflict, illegal lifecycle transition
  - 500: Storage failure (rolled back, retryable)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/recovery-engine/recovery"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Svc *recovery.Service
}

// NewHandler creates a new handler around the engine service.
func NewHandler(svc *recovery.Service) *Handler {
	return &Handler{Svc: svc}
}

func tenantID(r *http.Request) string {
	if t := r.Header.Get("X-Tenant-ID"); t != "" {
		return t
	}
	return "default"
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// GetBalance returns the employee's spendable overtime balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	balance, err := h.Svc.Balance(r.Context(), tenantID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetEmployeeGrants returns the employee's grant history, optionally
// windowed by from/to query parameters.
func (h *Handler) GetEmployeeGrants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from, ok := parseOptionalDate(w, r.URL.Query().Get("from"))
	if !ok {
		return
	}
	to, ok := parseOptionalDate(w, r.URL.Query().Get("to"))
	if !ok {
		return
	}

	grants, err := h.Svc.EmployeeGrants(r.Context(), tenantID(r), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]GrantDTO, len(grants))
	for i := range grants {
		dtos[i] = toGrantDTO(&grants[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary returns the employee's day counts per grant status.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sum, err := h.Svc.Summary(r.Context(), tenantID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		EmployeeID:    sum.EmployeeID,
		TotalDays:     round2(sum.TotalDays),
		PendingDays:   round2(sum.PendingDays),
		ApprovedDays:  round2(sum.ApprovedDays),
		UsedDays:      round2(sum.UsedDays),
		AvailableDays: round2(sum.AvailableDays),
	})
}

// GetBlockedDates returns every date in [from, to] covered by a pending or
// approved grant. Both query parameters are required.
func (h *Handler) GetBlockedDates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from, err := recovery.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid or missing 'from' date", err)
		return
	}
	to, err := recovery.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid or missing 'to' date", err)
		return
	}

	dates, err := h.Svc.BlockedDates(r.Context(), tenantID(r), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	strs := make([]string, len(dates))
	for i, d := range dates {
		strs[i] = d.String()
	}
	writeJSON(w, http.StatusOK, BlockedDatesDTO{EmployeeID: id, Dates: strs})
}

// =============================================================================
// CONVERSION
// =============================================================================

// Convert turns overtime hours into a recovery grant.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "employee_id is required", nil)
		return
	}

	start, err := recovery.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid start_date", err)
		return
	}
	end, err := recovery.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid end_date", err)
		return
	}

	result, err := h.Svc.Convert(r.Context(), recovery.ConvertInput{
		TenantID:   tenantID(r),
		EmployeeID: req.EmployeeID,
		DayCount:   decimal.NewFromFloat(req.DayCount),
		StartDate:  start,
		EndDate:    end,
		Notes:      req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, GrantDetailDTO{
		GrantDTO: toGrantDTO(result.Grant),
		Entries:  toEntryDTOs(result.Entries),
	})
}

// =============================================================================
// GRANT CRUD
// =============================================================================

// CreateGrant creates a grant without spending any overtime.
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req CreateGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "employee_id is required", nil)
		return
	}

	start, err := recovery.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid start_date", err)
		return
	}
	end, err := recovery.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid end_date", err)
		return
	}

	grant, err := h.Svc.Create(r.Context(), recovery.CreateInput{
		TenantID:       tenantID(r),
		EmployeeID:     req.EmployeeID,
		DayCount:       decimal.NewFromFloat(req.DayCount),
		StartDate:      start,
		EndDate:        end,
		SourceHours:    decimal.NewFromFloat(req.SourceHours),
		ConversionRate: decimal.NewFromFloat(req.ConversionRate),
		Notes:          req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGrantDTO(grant))
}

// ListGrants returns a filtered page of grants.
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, ok := parseOptionalDate(w, q.Get("from"))
	if !ok {
		return
	}
	to, ok := parseOptionalDate(w, q.Get("to"))
	if !ok {
		return
	}

	filter := recovery.GrantFilter{
		TenantID:   tenantID(r),
		EmployeeID: q.Get("employee_id"),
		Status:     recovery.GrantStatus(q.Get("status")),
		From:       from,
		To:         to,
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	grants, total, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]GrantDTO, len(grants))
	for i := range grants {
		dtos[i] = toGrantDTO(&grants[i])
	}
	writeJSON(w, http.StatusOK, GrantListDTO{
		Items: dtos,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// GetGrant returns one grant with its ledger entries.
func (h *Handler) GetGrant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	grant, entries, err := h.Svc.Get(r.Context(), tenantID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GrantDetailDTO{
		GrantDTO: toGrantDTO(grant),
		Entries:  toEntryDTOs(entries),
	})
}

// UpdateGrant amends a pending grant.
func (h *Handler) UpdateGrant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid request body", err)
		return
	}

	in := recovery.UpdateInput{
		TenantID: tenantID(r),
		GrantID:  id,
		Notes:    req.Notes,
	}
	if req.StartDate != nil {
		d, err := recovery.ParseDate(*req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid start_date", err)
			return
		}
		in.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := recovery.ParseDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid end_date", err)
			return
		}
		in.EndDate = &d
	}
	if req.DayCount != nil {
		d := decimal.NewFromFloat(*req.DayCount)
		in.DayCount = &d
	}

	grant, err := h.Svc.Update(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(grant))
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

// ApproveGrant moves a pending grant to APPROVED.
func (h *Handler) ApproveGrant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	approver := r.Header.Get("X-User-ID")

	grant, err := h.Svc.Approve(r.Context(), tenantID(r), id, approver)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(grant))
}

// CancelGrant reverses a grant and returns its hours to their sources.
func (h *Handler) CancelGrant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	grant, err := h.Svc.Cancel(r.Context(), tenantID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(grant))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseOptionalDate(w http.ResponseWriter, value string) (*recovery.Date, bool) {
	if value == "" {
		return nil, true
	}
	d, err := recovery.ParseDate(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid date: "+value, err)
		return nil, false
	}
	return &d, true
}

// writeDomainError maps engine failures to HTTP status and stable codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case recovery.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", err)
	case errors.Is(err, recovery.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "Insufficient balance", err)
	case errors.Is(err, recovery.ErrInvalidRange), errors.Is(err, recovery.ErrInvalidDayCount):
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Invalid request", err)
	case errors.Is(err, recovery.ErrInvalidTransition), errors.Is(err, recovery.ErrDayCountFixed):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", "Invalid transition", err)
	case recovery.IsConflict(err):
		writeError(w, http.StatusConflict, "CONFLICT", "Date conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "STORAGE_FAILURE", "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	dto := ErrorDTO{Error: message, Code: code}
	if err != nil {
		dto.Details = err.Error()
	}
	writeJSON(w, status, dto)
}
