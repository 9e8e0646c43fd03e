/*
allocator.go - Overtime-to-recovery-day conversion

PURPOSE:
  Turns a day count into an hour cost, verifies the employee's cumulative
  balance covers it, checks the calendar, then creates a PENDING grant and
  greedily spends overtime transactions oldest-first until the cost is
  covered, recording each spend as a ledger entry.

CHECK ORDER IS A CONTRACT:
  Balance is checked before the calendar. A caller who is both over balance
  and date-conflicting must see the insufficient-balance failure.

ATOMICITY:
  The whole operation runs inside one store transaction. The grant, every
  ledger entry and every overtime mutation commit together or not at all.
  The Service additionally serializes conversions per employee so two
  concurrent calls cannot both spend the same snapshot.

EXACTNESS:
  The final spend is clamped to exactly the remaining need, so the sum of a
  grant's ledger entries always equals its SourceHours with no rounding
  leak.
*/
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ConvertInput is a request to convert overtime hours into recovery days.
type ConvertInput struct {
	TenantID   string
	EmployeeID string
	DayCount   decimal.Decimal
	StartDate  Date
	EndDate    Date
	Notes      string
}

// ConversionResult is the created grant plus the allocation that funded it.
type ConversionResult struct {
	Grant          *RecoveryGrant
	Entries        []LedgerEntry
	HoursConverted decimal.Decimal
}

// Allocator creates grants by spending overtime transactions FIFO.
type Allocator struct {
	Store TxStore

	// now is swappable for tests.
	now func() time.Time
}

func NewAllocator(store TxStore) *Allocator {
	return &Allocator{Store: store, now: time.Now}
}

// Convert performs the full conversion. All reads and writes share one
// transactional snapshot.
func (a *Allocator) Convert(ctx context.Context, in ConvertInput) (*ConversionResult, error) {
	if !in.DayCount.IsPositive() {
		return nil, fmt.Errorf("%s days: %w", in.DayCount, ErrInvalidDayCount)
	}

	var result *ConversionResult
	err := a.Store.WithTx(ctx, func(s Store) error {
		r, err := a.convert(ctx, s, in)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, classify(err, "convert rolled back")
	}
	return result, nil
}

func (a *Allocator) convert(ctx context.Context, s Store, in ConvertInput) (*ConversionResult, error) {
	calc := &BalanceCalculator{Store: s}
	balance, err := calc.Cumulative(ctx, in.TenantID, in.EmployeeID)
	if err != nil {
		return nil, err
	}

	policy := ConversionPolicy{
		DailyWorkingHours: balance.DailyWorkingHours,
		ConversionRate:    balance.ConversionRate,
	}
	requiredHours := policy.HoursForDays(in.DayCount)

	if requiredHours.GreaterThan(balance.CumulativeHours) {
		return nil, &InsufficientBalanceError{
			EmployeeID: in.EmployeeID,
			Available:  balance.CumulativeHours,
			Required:   requiredHours,
			DayCount:   in.DayCount,
		}
	}

	if in.StartDate.After(in.EndDate) {
		return nil, ErrInvalidRange
	}

	validator := &CalendarValidator{Store: s}
	if err := validator.AssertNoConflicts(ctx, in.TenantID, in.EmployeeID, in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	now := a.now()
	grant := &RecoveryGrant{
		ID:             fmt.Sprintf("rcv-%d", now.UnixNano()),
		TenantID:       in.TenantID,
		EmployeeID:     in.EmployeeID,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		DayCount:       in.DayCount,
		SourceHours:    requiredHours,
		ConversionRate: policy.ConversionRate,
		Status:         GrantPending,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("create grant: %w", err)
	}

	entries, err := a.spendSources(ctx, s, in.TenantID, grant, balance.Sources, requiredHours, now)
	if err != nil {
		return nil, err
	}
	if err := s.AppendEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("append ledger entries: %w", err)
	}

	return &ConversionResult{
		Grant:          grant,
		Entries:        entries,
		HoursConverted: requiredHours,
	}, nil
}

// spendSources walks the FIFO-ordered source list and consumes hours until
// the required amount is covered.
func (a *Allocator) spendSources(ctx context.Context, s Store, tenantID string, grant *RecoveryGrant, sources []SourceDetail, requiredHours decimal.Decimal, now time.Time) ([]LedgerEntry, error) {
	remaining := requiredHours
	var entries []LedgerEntry

	for i, src := range sources {
		if !remaining.IsPositive() {
			break
		}
		spend := decimal.Min(remaining, src.AvailableHours)

		entries = append(entries, LedgerEntry{
			ID:         fmt.Sprintf("%s-src-%d", grant.ID, i),
			OvertimeID: src.OvertimeID,
			GrantID:    grant.ID,
			HoursUsed:  spend,
			CreatedAt:  now,
		})

		newSpent := src.SpentGrantHours.Add(spend)
		status := OvertimeApproved
		if src.SpentLegacyHours.Add(newSpent).GreaterThanOrEqual(src.EffectiveHours) {
			status = OvertimeRecovered
		}
		if err := s.UpdateOvertimeSpend(ctx, tenantID, src.OvertimeID, newSpent.IsPositive(), newSpent, status); err != nil {
			return nil, fmt.Errorf("spend overtime %s: %w", src.OvertimeID, err)
		}

		remaining = remaining.Sub(spend)
	}

	if remaining.IsPositive() {
		// The balance check covered this amount within the same snapshot.
		return nil, fmt.Errorf("allocation short by %sh: %w", remaining, ErrInsufficientBalance)
	}
	return entries, nil
}
