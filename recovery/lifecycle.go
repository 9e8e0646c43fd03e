/*
lifecycle.go - Grant state machine and reversal

PURPOSE:
  Owns the legal transitions of a grant:

    PENDING ──approve──▶ APPROVED ──(external consumer)──▶ USED
       │                    │
       └──────cancel────────┴──▶ CANCELLED (terminal)

  USED is never set here; a consumer of the store flips it once the days
  were actually taken.

REVERSAL:
  Cancellation is the structural inverse of the conversion that created the
  grant: it walks the same ledger entries, returns each entry's hours to its
  source transaction (floored at zero), reverts RECOVERED sources that are
  no longer fully spent, deletes the entries and marks the grant CANCELLED.
  Hours are neither lost nor duplicated.
*/
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle transitions grants between states.
type Lifecycle struct {
	Store TxStore

	now func() time.Time
}

func NewLifecycle(store TxStore) *Lifecycle {
	return &Lifecycle{Store: store, now: time.Now}
}

// Approve moves a PENDING grant to APPROVED and records the approver.
func (l *Lifecycle) Approve(ctx context.Context, tenantID, grantID, approverID string) (*RecoveryGrant, error) {
	var approved *RecoveryGrant
	err := l.Store.WithTx(ctx, func(s Store) error {
		grant, err := s.GetGrant(ctx, tenantID, grantID)
		if err != nil {
			return fmt.Errorf("load grant: %w", err)
		}
		if grant == nil {
			return fmt.Errorf("%s: %w", grantID, ErrGrantNotFound)
		}
		if grant.Status != GrantPending {
			return &InvalidTransitionError{Op: "approve", From: grant.Status}
		}

		now := l.now()
		grant.Status = GrantApproved
		grant.ApprovedBy = approverID
		grant.ApprovedAt = &now
		grant.UpdatedAt = now
		if err := s.UpdateGrant(ctx, grant); err != nil {
			return fmt.Errorf("update grant: %w", err)
		}
		approved = grant
		return nil
	})
	if err != nil {
		return nil, classify(err, "approve rolled back")
	}
	return approved, nil
}

// Cancel reverses a PENDING or APPROVED grant. Cancelling a USED grant is
// illegal; cancelling a CANCELLED grant is a no-op transition error.
func (l *Lifecycle) Cancel(ctx context.Context, tenantID, grantID string) (*RecoveryGrant, error) {
	var cancelled *RecoveryGrant
	err := l.Store.WithTx(ctx, func(s Store) error {
		grant, err := s.GetGrant(ctx, tenantID, grantID)
		if err != nil {
			return fmt.Errorf("load grant: %w", err)
		}
		if grant == nil {
			return fmt.Errorf("%s: %w", grantID, ErrGrantNotFound)
		}
		if grant.Status == GrantUsed || grant.Status == GrantCancelled {
			return &InvalidTransitionError{Op: "cancel", From: grant.Status}
		}

		if err := l.restoreSources(ctx, s, grant); err != nil {
			return err
		}
		if err := s.DeleteEntriesByGrant(ctx, grant.ID); err != nil {
			return fmt.Errorf("delete ledger entries: %w", err)
		}

		grant.Status = GrantCancelled
		grant.UpdatedAt = l.now()
		if err := s.UpdateGrant(ctx, grant); err != nil {
			return fmt.Errorf("update grant: %w", err)
		}
		cancelled = grant
		return nil
	})
	if err != nil {
		return nil, classify(err, "cancel rolled back")
	}
	return cancelled, nil
}

// restoreSources returns each ledger entry's hours to its source
// transaction.
func (l *Lifecycle) restoreSources(ctx context.Context, s Store, grant *RecoveryGrant) error {
	entries, err := s.ListEntriesByGrant(ctx, grant.ID)
	if err != nil {
		return fmt.Errorf("load ledger entries: %w", err)
	}

	for _, entry := range entries {
		tx, err := s.GetOvertime(ctx, grant.TenantID, entry.OvertimeID)
		if err != nil {
			return fmt.Errorf("load overtime %s: %w", entry.OvertimeID, err)
		}
		if tx == nil {
			return fmt.Errorf("%s: %w", entry.OvertimeID, ErrOvertimeNotFound)
		}

		newSpent := decimal.Max(decimal.Zero, tx.SpentGrantHours.Sub(entry.HoursUsed))
		status := tx.Status
		if status == OvertimeRecovered && tx.SpentLegacyHours.Add(newSpent).LessThan(tx.EffectiveHours()) {
			status = OvertimeApproved
		}
		if err := s.UpdateOvertimeSpend(ctx, grant.TenantID, tx.ID, newSpent.IsPositive(), newSpent, status); err != nil {
			return fmt.Errorf("restore overtime %s: %w", tx.ID, err)
		}
	}
	return nil
}

// classify keeps domain failures intact and wraps everything else as a
// rolled-back storage failure.
func classify(err error, op string) error {
	if IsNotFound(err) || IsClientError(err) || IsConflict(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
