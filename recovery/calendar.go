/*
calendar.go - Date-range conflict validation

PURPOSE:
  A recovery grant must not cover a day the employee is already away.
  Checks the requested closed interval against non-cancelled, non-rejected
  leaves and against pending/approved recovery grants. Pure read; the
  allocator runs it inside the same unit of work as its writes.
*/
package recovery

import (
	"context"
	"fmt"
)

// CalendarValidator checks a date range against existing leaves and grants.
type CalendarValidator struct {
	Store Store
}

// AssertNoConflicts fails with a ConflictError when [start, end] overlaps
// an existing leave or a pending/approved recovery grant.
func (v *CalendarValidator) AssertNoConflicts(ctx context.Context, tenantID, employeeID string, start, end Date) error {
	return v.assertNoConflicts(ctx, tenantID, employeeID, start, end, "")
}

// AssertNoConflictsExcluding is AssertNoConflicts ignoring one grant, for
// re-validating a date move on that grant itself.
func (v *CalendarValidator) AssertNoConflictsExcluding(ctx context.Context, tenantID, employeeID string, start, end Date, excludeGrantID string) error {
	return v.assertNoConflicts(ctx, tenantID, employeeID, start, end, excludeGrantID)
}

func (v *CalendarValidator) assertNoConflicts(ctx context.Context, tenantID, employeeID string, start, end Date, excludeGrantID string) error {
	leaves, err := v.Store.ListBlockingLeaves(ctx, tenantID, employeeID, start, end)
	if err != nil {
		return fmt.Errorf("load leaves: %w", err)
	}
	if len(leaves) > 0 {
		ranges := make([]DateRange, len(leaves))
		for i, l := range leaves {
			ranges[i] = DateRange{Start: l.StartDate, End: l.EndDate}
		}
		return &ConflictError{Kind: ConflictLeave, Ranges: ranges}
	}

	grants, err := v.Store.ListOverlappingGrants(ctx, tenantID, employeeID, start, end,
		[]GrantStatus{GrantPending, GrantApproved}, excludeGrantID)
	if err != nil {
		return fmt.Errorf("load grants: %w", err)
	}
	if len(grants) > 0 {
		ranges := make([]DateRange, len(grants))
		for i, g := range grants {
			ranges[i] = DateRange{Start: g.StartDate, End: g.EndDate}
		}
		return &ConflictError{Kind: ConflictGrant, Ranges: ranges}
	}

	return nil
}
