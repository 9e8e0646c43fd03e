/*
service.go - Engine facade

PURPOSE:
  Single entry point the HTTP layer talks to. Composes the balance
  calculator, calendar validator, allocator and lifecycle manager, and owns
  the per-employee serialization that makes concurrent conversions safe.

SERIALIZATION:
  Convert and Cancel take a per-employee advisory lock for the whole
  operation, store transaction included. Two concurrent conversions for the
  same employee therefore see each other's writes; they can never both
  spend the same balance snapshot. Reads take no lock.
*/
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service is the public surface of the conversion engine.
type Service struct {
	store     TxStore
	locks     *keyedMutex
	balance   *BalanceCalculator
	calendar  *CalendarValidator
	allocator *Allocator
	lifecycle *Lifecycle

	now func() time.Time
}

func NewService(store TxStore) *Service {
	return &Service{
		store:     store,
		locks:     newKeyedMutex(),
		balance:   &BalanceCalculator{Store: store},
		calendar:  &CalendarValidator{Store: store},
		allocator: NewAllocator(store),
		lifecycle: NewLifecycle(store),
		now:       time.Now,
	}
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance returns the employee's current spendable overtime balance.
func (s *Service) Balance(ctx context.Context, tenantID, employeeID string) (*Balance, error) {
	return s.balance.Cumulative(ctx, tenantID, employeeID)
}

// =============================================================================
// CONVERSION
// =============================================================================

// Convert turns overtime hours into a recovery grant, serialized per
// employee.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (*ConversionResult, error) {
	unlock := s.locks.Lock(lockKey(in.TenantID, in.EmployeeID))
	defer unlock()
	return s.allocator.Convert(ctx, in)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Approve moves a pending grant to APPROVED.
func (s *Service) Approve(ctx context.Context, tenantID, grantID, approverID string) (*RecoveryGrant, error) {
	return s.lifecycle.Approve(ctx, tenantID, grantID, approverID)
}

// Cancel reverses a grant and returns its hours to their sources,
// serialized per employee like Convert.
func (s *Service) Cancel(ctx context.Context, tenantID, grantID string) (*RecoveryGrant, error) {
	grant, err := s.store.GetGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, fmt.Errorf("load grant: %w", err)
	}
	if grant == nil {
		return nil, fmt.Errorf("%s: %w", grantID, ErrGrantNotFound)
	}

	unlock := s.locks.Lock(lockKey(tenantID, grant.EmployeeID))
	defer unlock()
	return s.lifecycle.Cancel(ctx, tenantID, grantID)
}

// =============================================================================
// MANUAL GRANTS
// =============================================================================

// CreateInput is a manually created grant, not funded by a conversion.
type CreateInput struct {
	TenantID       string
	EmployeeID     string
	DayCount       decimal.Decimal
	StartDate      Date
	EndDate        Date
	SourceHours    decimal.Decimal
	ConversionRate decimal.Decimal
	Notes          string
}

// Create persists a PENDING grant without spending any overtime. Used for
// grants awarded outside the conversion flow.
func (s *Service) Create(ctx context.Context, in CreateInput) (*RecoveryGrant, error) {
	if !in.DayCount.IsPositive() {
		return nil, fmt.Errorf("%s days: %w", in.DayCount, ErrInvalidDayCount)
	}

	var created *RecoveryGrant
	err := s.store.WithTx(ctx, func(st Store) error {
		emp, err := st.GetEmployee(ctx, in.TenantID, in.EmployeeID)
		if err != nil {
			return fmt.Errorf("resolve employee: %w", err)
		}
		if emp == nil {
			return fmt.Errorf("%s: %w", in.EmployeeID, ErrEmployeeNotFound)
		}

		if in.StartDate.After(in.EndDate) {
			return ErrInvalidRange
		}

		validator := &CalendarValidator{Store: st}
		if err := validator.AssertNoConflicts(ctx, in.TenantID, in.EmployeeID, in.StartDate, in.EndDate); err != nil {
			return err
		}

		rate := in.ConversionRate
		if rate.IsZero() {
			policy, err := st.GetConversionPolicy(ctx, in.TenantID)
			if err != nil {
				return fmt.Errorf("load conversion policy: %w", err)
			}
			rate = policy.ConversionRate
		}

		now := s.now()
		created = &RecoveryGrant{
			ID:             fmt.Sprintf("rcv-%d", now.UnixNano()),
			TenantID:       in.TenantID,
			EmployeeID:     in.EmployeeID,
			StartDate:      in.StartDate,
			EndDate:        in.EndDate,
			DayCount:       in.DayCount,
			SourceHours:    in.SourceHours,
			ConversionRate: rate,
			Status:         GrantPending,
			Notes:          in.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return st.CreateGrant(ctx, created)
	})
	if err != nil {
		return nil, classify(err, "create rolled back")
	}
	return created, nil
}

// UpdateInput patches a pending grant. Nil fields are left untouched.
type UpdateInput struct {
	TenantID string
	GrantID  string

	StartDate *Date
	EndDate   *Date
	DayCount  *decimal.Decimal
	Notes     *string
}

// Update amends a PENDING grant. Date moves are re-validated against the
// calendar, excluding the grant itself. The day count of a grant funded by
// a conversion is fixed: its hour cost is already allocated.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*RecoveryGrant, error) {
	var updated *RecoveryGrant
	err := s.store.WithTx(ctx, func(st Store) error {
		grant, err := st.GetGrant(ctx, in.TenantID, in.GrantID)
		if err != nil {
			return fmt.Errorf("load grant: %w", err)
		}
		if grant == nil {
			return fmt.Errorf("%s: %w", in.GrantID, ErrGrantNotFound)
		}
		if grant.Status != GrantPending {
			return &InvalidTransitionError{Op: "update", From: grant.Status}
		}

		if in.DayCount != nil && !in.DayCount.Equal(grant.DayCount) {
			entries, err := st.ListEntriesByGrant(ctx, grant.ID)
			if err != nil {
				return fmt.Errorf("load ledger entries: %w", err)
			}
			if len(entries) > 0 {
				return ErrDayCountFixed
			}
			if !in.DayCount.IsPositive() {
				return fmt.Errorf("%s days: %w", in.DayCount, ErrInvalidDayCount)
			}
			grant.DayCount = *in.DayCount
		}

		datesChanged := false
		if in.StartDate != nil {
			grant.StartDate = *in.StartDate
			datesChanged = true
		}
		if in.EndDate != nil {
			grant.EndDate = *in.EndDate
			datesChanged = true
		}
		if datesChanged {
			if grant.StartDate.After(grant.EndDate) {
				return ErrInvalidRange
			}
			validator := &CalendarValidator{Store: st}
			if err := validator.AssertNoConflictsExcluding(ctx, in.TenantID, grant.EmployeeID,
				grant.StartDate, grant.EndDate, grant.ID); err != nil {
				return err
			}
		}

		if in.Notes != nil {
			grant.Notes = *in.Notes
		}

		grant.UpdatedAt = s.now()
		if err := st.UpdateGrant(ctx, grant); err != nil {
			return fmt.Errorf("update grant: %w", err)
		}
		updated = grant
		return nil
	})
	if err != nil {
		return nil, classify(err, "update rolled back")
	}
	return updated, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one grant with its ledger entries.
func (s *Service) Get(ctx context.Context, tenantID, grantID string) (*RecoveryGrant, []LedgerEntry, error) {
	grant, err := s.store.GetGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, nil, fmt.Errorf("load grant: %w", err)
	}
	if grant == nil {
		return nil, nil, fmt.Errorf("%s: %w", grantID, ErrGrantNotFound)
	}
	entries, err := s.store.ListEntriesByGrant(ctx, grantID)
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger entries: %w", err)
	}
	return grant, entries, nil
}

// List returns a filtered page of grants plus the total match count.
func (s *Service) List(ctx context.Context, f GrantFilter) ([]RecoveryGrant, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	return s.store.ListGrants(ctx, f)
}

// EmployeeGrants returns an employee's grant history, optionally windowed.
func (s *Service) EmployeeGrants(ctx context.Context, tenantID, employeeID string, from, to *Date) ([]RecoveryGrant, error) {
	emp, err := s.store.GetEmployee(ctx, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("resolve employee: %w", err)
	}
	if emp == nil {
		return nil, fmt.Errorf("%s: %w", employeeID, ErrEmployeeNotFound)
	}
	return s.store.ListEmployeeGrants(ctx, tenantID, employeeID, from, to)
}

// DaySummary aggregates an employee's grants by status, in days.
type DaySummary struct {
	EmployeeID    string
	TotalDays     decimal.Decimal
	PendingDays   decimal.Decimal
	ApprovedDays  decimal.Decimal
	UsedDays      decimal.Decimal
	AvailableDays decimal.Decimal
}

// Summary returns the employee's day counts per grant status. Available is
// approved minus used.
func (s *Service) Summary(ctx context.Context, tenantID, employeeID string) (*DaySummary, error) {
	grants, err := s.EmployeeGrants(ctx, tenantID, employeeID, nil, nil)
	if err != nil {
		return nil, err
	}

	sum := &DaySummary{EmployeeID: employeeID}
	for _, g := range grants {
		sum.TotalDays = sum.TotalDays.Add(g.DayCount)
		switch g.Status {
		case GrantPending:
			sum.PendingDays = sum.PendingDays.Add(g.DayCount)
		case GrantApproved:
			sum.ApprovedDays = sum.ApprovedDays.Add(g.DayCount)
		case GrantUsed:
			sum.UsedDays = sum.UsedDays.Add(g.DayCount)
		}
	}
	sum.AvailableDays = sum.ApprovedDays.Sub(sum.UsedDays)
	return sum, nil
}

// BlockedDates returns every date in [from, to] covered by a pending or
// approved grant. The Scheduling component excludes these from new
// workday generation.
func (s *Service) BlockedDates(ctx context.Context, tenantID, employeeID string, from, to Date) ([]Date, error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	grants, err := s.store.ListOverlappingGrants(ctx, tenantID, employeeID, from, to,
		[]GrantStatus{GrantPending, GrantApproved}, "")
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}

	seen := make(map[string]bool)
	var dates []Date
	for _, g := range grants {
		start := g.StartDate
		if start.Before(from) {
			start = from
		}
		end := g.EndDate
		if end.After(to) {
			end = to
		}
		for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
			if !seen[d.String()] {
				seen[d.String()] = true
				dates = append(dates, d)
			}
		}
	}
	return dates, nil
}

func lockKey(tenantID, employeeID string) string {
	return tenantID + "/" + employeeID
}
