/*
Package recovery implements the overtime-to-recovery-day conversion engine.

PURPOSE:
  Employees accumulate approved overtime hours. This package converts those
  hours into recovery days (paid time off) and keeps an exact ledger of which
  overtime transaction funded which grant, so a cancelled grant can return
  every hour to its source without drift.

KEY CONCEPTS IN THIS FILE (types.go):
  - OvertimeTransaction: an approved block of extra hours, the funding source
  - RecoveryGrant: a block of time off paid for with overtime hours
  - LedgerEntry: "this transaction funded this grant with this many hours"
  - ConversionPolicy: org-level constants translating hours <-> days

DESIGN PRINCIPLES:
  1. Precision: all quantities are decimal.Decimal, never float64
  2. No stored balance: availability is always recomputed from transactions
  3. Reversibility: ledger entries make cancellation an exact inverse walk

SEE ALSO:
  - balance.go: cumulative balance calculation
  - allocator.go: FIFO conversion of hours into a grant
  - lifecycle.go: grant state machine and reversal
*/
package recovery

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OVERTIME TRANSACTION - Funding source owned by the upstream approval flow
// =============================================================================

type OvertimeStatus string

const (
	OvertimePending   OvertimeStatus = "PENDING"
	OvertimeApproved  OvertimeStatus = "APPROVED"
	OvertimeRejected  OvertimeStatus = "REJECTED"
	OvertimePaid      OvertimeStatus = "PAID"
	OvertimeRecovered OvertimeStatus = "RECOVERED" // fully spent via the grant channel
)

// OvertimeTransaction is a unit of approved extra work. This engine never
// creates or deletes one; it only moves hours in and out of the grant spend
// channel. The legacy spend channel is read but never written here.
type OvertimeTransaction struct {
	ID         string
	TenantID   string
	EmployeeID string
	Date       Date

	// RawHours is what was logged; ApprovedHours is what a supervisor
	// ratified. When ApprovedHours is nil, RawHours is authoritative.
	RawHours      decimal.Decimal
	ApprovedHours *decimal.Decimal

	// Two spend channels share the same pool of approved hours.
	SpentLegacy      bool
	SpentLegacyHours decimal.Decimal
	SpentGrant       bool
	SpentGrantHours  decimal.Decimal

	Status OvertimeStatus
}

// EffectiveHours returns the authoritative approved quantity.
func (t *OvertimeTransaction) EffectiveHours() decimal.Decimal {
	if t.ApprovedHours != nil {
		return *t.ApprovedHours
	}
	return t.RawHours
}

// TotalSpentHours sums both spend channels.
func (t *OvertimeTransaction) TotalSpentHours() decimal.Decimal {
	return t.SpentLegacyHours.Add(t.SpentGrantHours)
}

// AvailableHours returns what is left to convert. May be negative if the
// stored counters are corrupt; callers treat non-positive as "nothing left".
func (t *OvertimeTransaction) AvailableHours() decimal.Decimal {
	return t.EffectiveHours().Sub(t.TotalSpentHours())
}

// FullySpent reports whether both channels together have consumed the
// transaction's approved hours.
func (t *OvertimeTransaction) FullySpent() bool {
	return t.TotalSpentHours().GreaterThanOrEqual(t.EffectiveHours())
}

// =============================================================================
// RECOVERY GRANT - A block of time off funded by overtime
// =============================================================================

type GrantStatus string

const (
	GrantPending   GrantStatus = "PENDING"
	GrantApproved  GrantStatus = "APPROVED"
	GrantUsed      GrantStatus = "USED" // set by a consumer once the days were taken
	GrantCancelled GrantStatus = "CANCELLED"
)

// RecoveryGrant is a block of recovery days. While PENDING or APPROVED, the
// sum of its ledger entries' hours equals SourceHours exactly. Once
// CANCELLED the entries are gone and the grant is inert.
type RecoveryGrant struct {
	ID         string
	TenantID   string
	EmployeeID string

	StartDate Date
	EndDate   Date
	DayCount  decimal.Decimal // fractional days allowed

	// SourceHours is the hour cost computed at creation. ConversionRate is
	// snapshotted so later policy changes cannot reprice an existing grant.
	SourceHours    decimal.Decimal
	ConversionRate decimal.Decimal

	Status     GrantStatus
	Notes      string
	ApprovedBy string
	ApprovedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Blocks reports whether the grant excludes its date range from schedule
// generation. This is the contract the Scheduling component reads.
func (g *RecoveryGrant) Blocks() bool {
	return g.Status == GrantPending || g.Status == GrantApproved
}

// Covers reports whether the grant's inclusive range contains the date.
func (g *RecoveryGrant) Covers(d Date) bool {
	return g.StartDate.BeforeOrEqual(d) && g.EndDate.AfterOrEqual(d)
}

// =============================================================================
// LEDGER ENTRY - Immutable allocation record
// =============================================================================

// LedgerEntry records that HoursUsed of one overtime transaction funded one
// grant. Entries are created in batch when a grant is created and deleted in
// batch when it is cancelled; they are never updated in place.
type LedgerEntry struct {
	ID         string
	OvertimeID string
	GrantID    string
	HoursUsed  decimal.Decimal
	CreatedAt  time.Time
}

// =============================================================================
// CONVERSION POLICY - Org-level hours <-> days constants
// =============================================================================

// ConversionPolicy translates between hours and days. It is read-only to
// this engine; grants snapshot the rate in effect at creation time.
type ConversionPolicy struct {
	DailyWorkingHours decimal.Decimal
	ConversionRate    decimal.Decimal
}

// DefaultConversionPolicy returns the fallback policy used when a tenant has
// no stored settings.
func DefaultConversionPolicy() ConversionPolicy {
	return ConversionPolicy{
		DailyWorkingHours: decimal.NewFromFloat(7.33),
		ConversionRate:    decimal.NewFromFloat(1.0),
	}
}

// HoursForDays returns the hour cost of the given day count.
func (p ConversionPolicy) HoursForDays(days decimal.Decimal) decimal.Decimal {
	return days.Mul(p.DailyWorkingHours).Div(p.ConversionRate)
}

// DaysForHours returns how many days the given hours can fund.
func (p ConversionPolicy) DaysForHours(hours decimal.Decimal) decimal.Decimal {
	return hours.Mul(p.ConversionRate).Div(p.DailyWorkingHours)
}

// =============================================================================
// EXTERNAL COLLABORATORS - Read-only facts from other modules
// =============================================================================

type LeaveStatus string

const (
	LeavePending         LeaveStatus = "PENDING"
	LeaveApproved        LeaveStatus = "APPROVED"
	LeaveHRApproved      LeaveStatus = "HR_APPROVED"
	LeaveManagerApproved LeaveStatus = "MANAGER_APPROVED"
	LeaveRejected        LeaveStatus = "REJECTED"
	LeaveCancelled       LeaveStatus = "CANCELLED"
)

// Blocks reports whether a leave in this status occupies its date range.
// Rejected and cancelled leaves never conflict with a new grant.
func (s LeaveStatus) Blocks() bool {
	return s != LeaveRejected && s != LeaveCancelled
}

// Leave is a read-only fact from the Leave module.
type Leave struct {
	ID         string
	TenantID   string
	EmployeeID string
	StartDate  Date
	EndDate    Date
	Status     LeaveStatus
}

// Employee is the minimal employee reference this engine resolves.
type Employee struct {
	ID       string
	TenantID string
	Name     string
}
