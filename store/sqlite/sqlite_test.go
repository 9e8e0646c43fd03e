package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recovery-engine/recovery"
	"github.com/warp/recovery-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func mar(d int) recovery.Date {
	return recovery.NewDate(2026, time.March, d)
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func sampleGrant(id string, start, end recovery.Date, status recovery.GrantStatus) *recovery.RecoveryGrant {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	return &recovery.RecoveryGrant{
		ID:             id,
		TenantID:       "default",
		EmployeeID:     "emp-1",
		StartDate:      start,
		EndDate:        end,
		DayCount:       dec(1),
		SourceHours:    dec(7.33),
		ConversionRate: dec(1),
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSQLite_OvertimeRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	approved := dec(9.5)
	in := recovery.OvertimeTransaction{
		ID:               "ot-1",
		TenantID:         "default",
		EmployeeID:       "emp-1",
		Date:             mar(3),
		RawHours:         dec(11.25),
		ApprovedHours:    &approved,
		SpentLegacy:      true,
		SpentLegacyHours: dec(1.5),
		Status:           recovery.OvertimeApproved,
	}
	require.NoError(t, st.SaveOvertime(ctx, in))

	out, err := st.GetOvertime(ctx, "default", "ot-1")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "2026-03-03", out.Date.String())
	assert.True(t, dec(11.25).Equal(out.RawHours))
	require.NotNil(t, out.ApprovedHours)
	assert.True(t, dec(9.5).Equal(*out.ApprovedHours))
	assert.True(t, out.SpentLegacy)
	assert.True(t, dec(1.5).Equal(out.SpentLegacyHours))
	assert.True(t, out.SpentGrantHours.IsZero())
	assert.True(t, dec(8).Equal(out.AvailableHours()), "9.5 approved minus 1.5 legacy")

	missing, err := st.GetOvertime(ctx, "default", "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing rows are nil, not an error")
}

func TestSQLite_ListApprovedOvertimeOrdersByDate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, tx := range []recovery.OvertimeTransaction{
		{ID: "ot-b", TenantID: "default", EmployeeID: "emp-1", Date: mar(9), RawHours: dec(2), Status: recovery.OvertimeApproved},
		{ID: "ot-a", TenantID: "default", EmployeeID: "emp-1", Date: mar(2), RawHours: dec(2), Status: recovery.OvertimeApproved},
		{ID: "ot-x", TenantID: "default", EmployeeID: "emp-1", Date: mar(1), RawHours: dec(2), Status: recovery.OvertimePending},
		{ID: "ot-z", TenantID: "default", EmployeeID: "emp-2", Date: mar(1), RawHours: dec(2), Status: recovery.OvertimeApproved},
	} {
		require.NoError(t, st.SaveOvertime(ctx, tx))
	}

	txs, err := st.ListApprovedOvertime(ctx, "default", "emp-1")
	require.NoError(t, err)

	require.Len(t, txs, 2, "pending and other-employee rows excluded")
	assert.Equal(t, "ot-a", txs[0].ID)
	assert.Equal(t, "ot-b", txs[1].ID)
}

func TestSQLite_GrantRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	g := sampleGrant("rcv-1", mar(10), mar(11), recovery.GrantPending)
	g.Notes = "crunch payback"
	require.NoError(t, st.CreateGrant(ctx, g))

	out, err := st.GetGrant(ctx, "default", "rcv-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, recovery.GrantPending, out.Status)
	assert.True(t, dec(7.33).Equal(out.SourceHours))
	assert.Equal(t, "crunch payback", out.Notes)
	assert.Nil(t, out.ApprovedAt)

	approvedAt := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC)
	out.Status = recovery.GrantApproved
	out.ApprovedBy = "mgr-7"
	out.ApprovedAt = &approvedAt
	require.NoError(t, st.UpdateGrant(ctx, out))

	again, err := st.GetGrant(ctx, "default", "rcv-1")
	require.NoError(t, err)
	assert.Equal(t, recovery.GrantApproved, again.Status)
	assert.Equal(t, "mgr-7", again.ApprovedBy)
	require.NotNil(t, again.ApprovedAt)
	assert.True(t, approvedAt.Equal(*again.ApprovedAt))
}

func TestSQLite_UpdateMissingGrant(t *testing.T) {
	st := newTestStore(t)

	err := st.UpdateGrant(context.Background(), sampleGrant("ghost", mar(1), mar(1), recovery.GrantPending))
	assert.ErrorIs(t, err, recovery.ErrGrantNotFound)
}

func TestSQLite_LedgerEntriesRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	entries := []recovery.LedgerEntry{
		{ID: "rcv-1-src-0", OvertimeID: "ot-1", GrantID: "rcv-1", HoursUsed: dec(4), CreatedAt: time.Now()},
		{ID: "rcv-1-src-1", OvertimeID: "ot-2", GrantID: "rcv-1", HoursUsed: dec(3.33), CreatedAt: time.Now()},
	}
	require.NoError(t, st.AppendEntries(ctx, entries))

	out, err := st.ListEntriesByGrant(ctx, "rcv-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, dec(3.33).Equal(out[1].HoursUsed))

	require.NoError(t, st.DeleteEntriesByGrant(ctx, "rcv-1"))
	out, err = st.ListEntriesByGrant(ctx, "rcv-1")
	require.NoError(t, err)
	assert.Empty(t, out)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestSQLite_ListOverlappingGrants(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-hit", mar(10), mar(12), recovery.GrantPending)))
	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-edge", mar(14), mar(15), recovery.GrantApproved)))
	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-cancelled", mar(10), mar(12), recovery.GrantCancelled)))
	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-far", mar(20), mar(21), recovery.GrantPending)))

	active := []recovery.GrantStatus{recovery.GrantPending, recovery.GrantApproved}
	hits, err := st.ListOverlappingGrants(ctx, "default", "emp-1", mar(12), mar(14), active, "")
	require.NoError(t, err)

	require.Len(t, hits, 2, "boundary days overlap, cancelled and distant do not")
	assert.Equal(t, "g-hit", hits[0].ID)
	assert.Equal(t, "g-edge", hits[1].ID)

	excluded, err := st.ListOverlappingGrants(ctx, "default", "emp-1", mar(12), mar(14), active, "g-hit")
	require.NoError(t, err)
	require.Len(t, excluded, 1)
	assert.Equal(t, "g-edge", excluded[0].ID)
}

func TestSQLite_ListBlockingLeaves(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, l := range []recovery.Leave{
		{ID: "l-approved", TenantID: "default", EmployeeID: "emp-1", StartDate: mar(10), EndDate: mar(11), Status: recovery.LeaveApproved},
		{ID: "l-pending", TenantID: "default", EmployeeID: "emp-1", StartDate: mar(12), EndDate: mar(12), Status: recovery.LeavePending},
		{ID: "l-rejected", TenantID: "default", EmployeeID: "emp-1", StartDate: mar(10), EndDate: mar(12), Status: recovery.LeaveRejected},
		{ID: "l-cancelled", TenantID: "default", EmployeeID: "emp-1", StartDate: mar(10), EndDate: mar(12), Status: recovery.LeaveCancelled},
	} {
		require.NoError(t, st.SaveLeave(ctx, l))
	}

	leaves, err := st.ListBlockingLeaves(ctx, "default", "emp-1", mar(11), mar(12))
	require.NoError(t, err)

	require.Len(t, leaves, 2, "pending counts as blocking, rejected and cancelled do not")
	assert.Equal(t, "l-approved", leaves[0].ID)
	assert.Equal(t, "l-pending", leaves[1].ID)
}

func TestSQLite_ListGrantsFilterAndCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-1", mar(1), mar(1), recovery.GrantPending)))
	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-2", mar(5), mar(6), recovery.GrantApproved)))
	require.NoError(t, st.CreateGrant(ctx, sampleGrant("g-3", mar(10), mar(10), recovery.GrantPending)))

	page, total, err := st.ListGrants(ctx, recovery.GrantFilter{
		TenantID: "default", Status: recovery.GrantPending, Page: 1, Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "g-3", page[0].ID, "newest start date first")
}

func TestSQLite_ConversionPolicyFallsBackToDefault(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p, err := st.GetConversionPolicy(ctx, "default")
	require.NoError(t, err)
	assert.True(t, dec(7.33).Equal(p.DailyWorkingHours))

	require.NoError(t, st.SaveConversionPolicy(ctx, "default", recovery.ConversionPolicy{
		DailyWorkingHours: dec(8), ConversionRate: dec(1.5),
	}))
	p, err = st.GetConversionPolicy(ctx, "default")
	require.NoError(t, err)
	assert.True(t, dec(8).Equal(p.DailyWorkingHours))
	assert.True(t, dec(1.5).Equal(p.ConversionRate))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a grant, spends overtime, then fails
	// WHEN: The function returns an error
	// THEN: None of the writes are visible afterwards

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveOvertime(ctx, recovery.OvertimeTransaction{
		ID: "ot-1", TenantID: "default", EmployeeID: "emp-1",
		Date: mar(1), RawHours: dec(10), Status: recovery.OvertimeApproved,
	}))

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(s recovery.Store) error {
		if err := s.CreateGrant(ctx, sampleGrant("rcv-1", mar(10), mar(10), recovery.GrantPending)); err != nil {
			return err
		}
		if err := s.UpdateOvertimeSpend(ctx, "default", "ot-1", true, dec(8), recovery.OvertimeApproved); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	g, err := st.GetGrant(ctx, "default", "rcv-1")
	require.NoError(t, err)
	assert.Nil(t, g, "grant insert must be rolled back")

	ot, err := st.GetOvertime(ctx, "default", "ot-1")
	require.NoError(t, err)
	assert.True(t, ot.SpentGrantHours.IsZero(), "spend must be rolled back")
}

func TestSQLite_WithTxCommitsOnSuccess(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s recovery.Store) error {
		return s.CreateGrant(ctx, sampleGrant("rcv-1", mar(10), mar(10), recovery.GrantPending))
	})
	require.NoError(t, err)

	g, err := st.GetGrant(ctx, "default", "rcv-1")
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestSQLite_EndToEndConversionThroughService(t *testing.T) {
	// GIVEN: The real engine wired to the SQLite store
	// WHEN: Converting and then cancelling
	// THEN: The same invariants hold as with the memory store

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveEmployee(ctx, recovery.Employee{ID: "emp-1", TenantID: "default", Name: "Nora"}))
	require.NoError(t, st.SaveConversionPolicy(ctx, "default", recovery.ConversionPolicy{
		DailyWorkingHours: dec(8), ConversionRate: dec(1),
	}))
	require.NoError(t, st.SaveOvertime(ctx, recovery.OvertimeTransaction{
		ID: "ot-1", TenantID: "default", EmployeeID: "emp-1",
		Date: mar(1), RawHours: dec(10), Status: recovery.OvertimeApproved,
	}))

	svc := recovery.NewService(st)

	result, err := svc.Convert(ctx, recovery.ConvertInput{
		TenantID: "default", EmployeeID: "emp-1",
		DayCount: dec(1), StartDate: mar(10), EndDate: mar(10),
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)

	ot, err := st.GetOvertime(ctx, "default", "ot-1")
	require.NoError(t, err)
	assert.True(t, dec(8).Equal(ot.SpentGrantHours))

	_, err = svc.Cancel(ctx, "default", result.Grant.ID)
	require.NoError(t, err)

	ot, err = st.GetOvertime(ctx, "default", "ot-1")
	require.NoError(t, err)
	assert.True(t, ot.SpentGrantHours.IsZero())
	assert.False(t, ot.SpentGrant)
}
