/*
store.go - Persistence interfaces

PURPOSE:
  Defines the storage boundary of the engine. Three logical collections are
  owned here (grants and ledger entries; overtime spend counters are
  mutated but the rows are owned upstream) plus read-only access to leaves,
  employees and tenant settings.

TRANSACTIONAL UNIT:
  Every mutating operation in the engine runs inside TxStore.WithTx: the
  balance snapshot, the conflict check and the multi-row ledger write must
  all see the same state, and either all writes commit or none do.
*/
package recovery

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OVERTIME TRANSACTIONS - Owned upstream; only spend counters are written
// =============================================================================

type OvertimeStore interface {
	// GetOvertime returns nil, nil when the transaction does not exist in
	// the tenant scope.
	GetOvertime(ctx context.Context, tenantID, id string) (*OvertimeTransaction, error)

	// ListApprovedOvertime returns the employee's APPROVED transactions
	// ordered by work date ascending, oldest first. This ordering is the
	// contract FIFO allocation relies on.
	ListApprovedOvertime(ctx context.Context, tenantID, employeeID string) ([]OvertimeTransaction, error)

	// SaveOvertime inserts or replaces a transaction. Used by seeding and
	// tests; production rows come from the upstream approval workflow.
	SaveOvertime(ctx context.Context, tx OvertimeTransaction) error

	// UpdateOvertimeSpend writes the grant spend channel and status of one
	// transaction. The legacy channel is never written by this engine.
	UpdateOvertimeSpend(ctx context.Context, tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status OvertimeStatus) error
}

// =============================================================================
// RECOVERY GRANTS
// =============================================================================

// GrantFilter narrows ListGrants. Zero values mean "no filter".
type GrantFilter struct {
	TenantID   string
	EmployeeID string
	Status     GrantStatus
	From       *Date // grants whose range ends on or after From
	To         *Date // grants whose range starts on or before To
	Page       int   // 1-based; defaults to 1
	Limit      int   // defaults to 20
}

type GrantStore interface {
	CreateGrant(ctx context.Context, g *RecoveryGrant) error

	// GetGrant returns nil, nil when the grant does not exist in the
	// tenant scope.
	GetGrant(ctx context.Context, tenantID, id string) (*RecoveryGrant, error)

	UpdateGrant(ctx context.Context, g *RecoveryGrant) error

	// ListGrants returns a page ordered by start date descending, plus the
	// total match count.
	ListGrants(ctx context.Context, f GrantFilter) ([]RecoveryGrant, int, error)

	// ListEmployeeGrants returns all grants for one employee, optionally
	// restricted to those overlapping [from, to], newest start date first.
	ListEmployeeGrants(ctx context.Context, tenantID, employeeID string, from, to *Date) ([]RecoveryGrant, error)

	// ListOverlappingGrants returns grants in the given statuses whose
	// inclusive range overlaps [start, end]. excludeID skips one grant
	// (used when re-validating an update against the calendar).
	ListOverlappingGrants(ctx context.Context, tenantID, employeeID string, start, end Date, statuses []GrantStatus, excludeID string) ([]RecoveryGrant, error)

	// ListApprovedEnding returns APPROVED grants across all tenants whose
	// end date is strictly before the given date. Consumed by the usage
	// scheduler, not by the engine itself.
	ListApprovedEnding(ctx context.Context, before Date) ([]RecoveryGrant, error)
}

// =============================================================================
// LEDGER ENTRIES - Batch create, batch delete, never update
// =============================================================================

type EntryStore interface {
	AppendEntries(ctx context.Context, entries []LedgerEntry) error
	ListEntriesByGrant(ctx context.Context, grantID string) ([]LedgerEntry, error)
	DeleteEntriesByGrant(ctx context.Context, grantID string) error
}

// =============================================================================
// EXTERNAL FACTS - Read-only collaborators
// =============================================================================

type LeaveStore interface {
	// ListBlockingLeaves returns non-cancelled, non-rejected leaves whose
	// inclusive range overlaps [start, end].
	ListBlockingLeaves(ctx context.Context, tenantID, employeeID string, start, end Date) ([]Leave, error)
}

type EmployeeStore interface {
	// GetEmployee returns nil, nil when the employee does not exist in the
	// tenant scope.
	GetEmployee(ctx context.Context, tenantID, id string) (*Employee, error)
}

type SettingsStore interface {
	// GetConversionPolicy returns the tenant's live policy, falling back
	// to DefaultConversionPolicy when none is stored.
	GetConversionPolicy(ctx context.Context, tenantID string) (ConversionPolicy, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is everything the engine reads and writes.
type Store interface {
	OvertimeStore
	GrantStore
	EntryStore
	LeaveStore
	EmployeeStore
	SettingsStore
}

// TxStore executes a function against a transactional view of the store.
// If fn returns an error, no write made through the view survives.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
