/*
balance.go - Cumulative overtime balance

PURPOSE:
  Computes how many approved overtime hours an employee can still spend on
  recovery days. There is no stored running balance anywhere: the figure is
  a pure fold over the transaction table, recomputed on every call, so it
  cannot drift.

AVAILABILITY:
  Per transaction, available = approved hours (or raw hours when no approved
  figure exists) minus both spend channels. Transactions with nothing left
  are excluded from the total and from the source list.

ORDERING:
  Sources are returned oldest work date first. The allocator spends them in
  exactly this order, so the balance payload doubles as the FIFO plan.
*/
package recovery

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SourceDetail is one overtime transaction still holding spendable hours.
type SourceDetail struct {
	OvertimeID       string
	Date             Date
	EffectiveHours   decimal.Decimal
	SpentLegacyHours decimal.Decimal
	SpentGrantHours  decimal.Decimal
	AvailableHours   decimal.Decimal
}

// Balance is the spendable-hours summary for one employee. Quantities are
// exact; rounding to two decimals happens only at the display boundary.
type Balance struct {
	EmployeeID        string
	CumulativeHours   decimal.Decimal
	DailyWorkingHours decimal.Decimal
	ConversionRate    decimal.Decimal
	PossibleDays      decimal.Decimal
	Sources           []SourceDetail
}

// BalanceCalculator computes cumulative balances from a store snapshot.
type BalanceCalculator struct {
	Store Store
}

// Cumulative resolves the employee, loads their APPROVED overtime oldest
// first and folds per-transaction availability into a total. Pure read.
func (c *BalanceCalculator) Cumulative(ctx context.Context, tenantID, employeeID string) (*Balance, error) {
	emp, err := c.Store.GetEmployee(ctx, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("resolve employee: %w", err)
	}
	if emp == nil {
		return nil, fmt.Errorf("%s: %w", employeeID, ErrEmployeeNotFound)
	}

	policy, err := c.Store.GetConversionPolicy(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load conversion policy: %w", err)
	}

	txs, err := c.Store.ListApprovedOvertime(ctx, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("load overtime: %w", err)
	}

	cumulative := decimal.Zero
	var sources []SourceDetail
	for _, tx := range txs {
		available := tx.AvailableHours()
		if !available.IsPositive() {
			continue
		}
		cumulative = cumulative.Add(available)
		sources = append(sources, SourceDetail{
			OvertimeID:       tx.ID,
			Date:             tx.Date,
			EffectiveHours:   tx.EffectiveHours(),
			SpentLegacyHours: tx.SpentLegacyHours,
			SpentGrantHours:  tx.SpentGrantHours,
			AvailableHours:   available,
		})
	}

	return &Balance{
		EmployeeID:        employeeID,
		CumulativeHours:   cumulative,
		DailyWorkingHours: policy.DailyWorkingHours,
		ConversionRate:    policy.ConversionRate,
		PossibleDays:      policy.DaysForHours(cumulative),
		Sources:           sources,
	}, nil
}
