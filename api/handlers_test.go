package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recovery-engine/api"
	"github.com/warp/recovery-engine/recovery"
	memstore "github.com/warp/recovery-engine/recovery/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *memstore.Memory) {
	t.Helper()
	mem := memstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveEmployee(ctx, recovery.Employee{
		ID: "emp-1", TenantID: "default", Name: "Nora",
	}))
	mem.SetConversionPolicy("default", recovery.ConversionPolicy{
		DailyWorkingHours: decimal.NewFromInt(8),
		ConversionRate:    decimal.NewFromInt(1),
	})
	require.NoError(t, mem.SaveOvertime(ctx, recovery.OvertimeTransaction{
		ID: "ot-1", TenantID: "default", EmployeeID: "emp-1",
		Date:     recovery.NewDate(2026, time.March, 1),
		RawHours: decimal.NewFromInt(20),
		Status:   recovery.OvertimeApproved,
	}))

	handler := api.NewHandler(recovery.NewService(mem))
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "mgr-7")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func convertBody(days float64, start, end string) map[string]any {
	return map[string]any{
		"employee_id": "emp-1",
		"day_count":   days,
		"start_date":  start,
		"end_date":    end,
	}
}

// =============================================================================
// BALANCE
// =============================================================================

func TestAPI_GetBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/employees/emp-1/recovery-balance", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "emp-1", body["employee_id"])
	assert.Equal(t, 20.0, body["cumulative_hours"])
	assert.Equal(t, 2.5, body["possible_days"])
	assert.Len(t, body["sources"], 1)
}

func TestAPI_GetBalance_UnknownEmployee(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/employees/ghost/recovery-balance", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

// =============================================================================
// CONVERSION
// =============================================================================

func TestAPI_Convert(t *testing.T) {
	srv, mem := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, "2026-03-10", "2026-03-10"))

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, 8.0, body["source_hours"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, 8.0, entries[0].(map[string]any)["hours_used"])

	src, err := mem.GetOvertime(context.Background(), "default", "ot-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(8).Equal(src.SpentGrantHours))
}

func TestAPI_Convert_InsufficientBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(10, "2026-03-10", "2026-03-19"))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body["code"])
	assert.Contains(t, body["details"], "available 20h, required 80h")
}

func TestAPI_Convert_Conflict(t *testing.T) {
	srv, mem := newTestServer(t)
	require.NoError(t, mem.SaveLeave(context.Background(), recovery.Leave{
		ID: "leave-1", TenantID: "default", EmployeeID: "emp-1",
		StartDate: recovery.NewDate(2026, time.March, 10),
		EndDate:   recovery.NewDate(2026, time.March, 12),
		Status:    recovery.LeaveApproved,
	}))

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, "2026-03-11", "2026-03-11"))

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body["code"])
	assert.Contains(t, body["details"], "2026-03-10 - 2026-03-12")
}

func TestAPI_Convert_BadDates(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, "next tuesday", "2026-03-10"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RANGE", body["code"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, "2026-03-12", "2026-03-10"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RANGE", body["code"])
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAPI_ApproveAndCancelFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, "2026-03-10", "2026-03-10"))
	id := created["id"].(string)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "APPROVED", body["status"])
	assert.Equal(t, "mgr-7", body["approved_by"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/"+id+"/approve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])

	// Balance is back to the full 20h after the reversal.
	resp, balance := doJSON(t, http.MethodGet, srv.URL+"/api/employees/emp-1/recovery-balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 20.0, balance["cumulative_hours"])
}

func TestAPI_Update_PendingOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, "2026-03-10", "2026-03-10"))
	id := created["id"].(string)

	resp, body := doJSON(t, http.MethodPatch, srv.URL+"/api/recovery-days/"+id,
		map[string]any{"start_date": "2026-03-11", "end_date": "2026-03-11", "notes": "moved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2026-03-11", body["start_date"])
	assert.Equal(t, "moved", body["notes"])

	doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/"+id+"/approve", nil)
	resp, body = doJSON(t, http.MethodPatch, srv.URL+"/api/recovery-days/"+id,
		map[string]any{"notes": "too late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
}

// =============================================================================
// QUERIES
// =============================================================================

func TestAPI_ListAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		d := fmt.Sprintf("2026-03-%02d", 10+2*i)
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert", convertBody(0.5, d, d))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/recovery-days?employee_id=emp-1&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3.0, body["total"])
	assert.Len(t, body["items"], 2)

	first := body["items"].([]any)[0].(map[string]any)
	resp, detail := doJSON(t, http.MethodGet, srv.URL+"/api/recovery-days/"+first["id"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, detail["entries"], 1)
}

func TestAPI_SummaryAndBlockedDates(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(2, "2026-03-10", "2026-03-11"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, sum := doJSON(t, http.MethodGet, srv.URL+"/api/employees/emp-1/recovery-summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.0, sum["pending_days"])
	assert.Equal(t, 0.0, sum["available_days"])

	resp, blocked := doJSON(t, http.MethodGet,
		srv.URL+"/api/employees/emp-1/blocked-dates?from=2026-03-01&to=2026-03-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"2026-03-10", "2026-03-11"}, blocked["dates"])

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/employees/emp-1/blocked-dates", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RANGE", body["code"])
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestAPI_UsageSchedulerMarksExpiredGrantsUsed(t *testing.T) {
	// GIVEN: An approved grant that ended yesterday and a pending one
	// WHEN: The scheduler runs
	// THEN: Only the approved, expired grant flips to USED

	srv, mem := newTestServer(t)
	ctx := context.Background()

	yesterday := recovery.Today().AddDays(-1).String()
	lastWeek := recovery.Today().AddDays(-7).String()

	_, past := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, lastWeek, lastWeek))
	pastID := past["id"].(string)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/"+pastID+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, pending := doJSON(t, http.MethodPost, srv.URL+"/api/recovery-days/convert",
		convertBody(1, yesterday, yesterday))
	pendingID := pending["id"].(string)

	scheduler := api.NewUsageScheduler(mem)
	scheduler.RunNow()

	g, err := mem.GetGrant(ctx, "default", pastID)
	require.NoError(t, err)
	assert.Equal(t, recovery.GrantUsed, g.Status)

	g, err = mem.GetGrant(ctx, "default", pendingID)
	require.NoError(t, err)
	assert.Equal(t, recovery.GrantPending, g.Status, "pending grants are never auto-used")
}
