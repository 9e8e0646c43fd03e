/*
errors.go - Centralized error types for the conversion engine

PURPOSE:
  All failure kinds in one place. Every error here is meant to reach the
  caller; the engine never hides a failure behind a retry or compensation
  beyond the atomic rollback of the surrounding unit of work.

ERROR CATEGORIES:
  1. Not-found errors - unresolved employee/grant/overtime references
  2. Validation errors - bad ranges, insufficient balance, calendar conflicts
  3. Transition errors - lifecycle operations from a forbidding state
  4. Storage errors - persistence failures, fully rolled back, retryable

USAGE:
  if errors.Is(err, recovery.ErrInsufficientBalance) { ... }
  var conflict *recovery.ConflictError
  if errors.As(err, &conflict) { ... conflict.Ranges ... }
*/
package recovery

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the base for all unresolved-reference errors.
	ErrNotFound = errors.New("not found")

	ErrEmployeeNotFound = fmt.Errorf("employee %w", ErrNotFound)
	ErrGrantNotFound    = fmt.Errorf("recovery grant %w", ErrNotFound)
	ErrOvertimeNotFound = fmt.Errorf("overtime transaction %w", ErrNotFound)

	// ErrInvalidRange is returned when the end date precedes the start date.
	ErrInvalidRange = errors.New("invalid range: start date must not be after end date")

	// ErrInvalidDayCount is returned when a conversion requests zero or
	// negative days.
	ErrInvalidDayCount = errors.New("day count must be positive")

	// ErrInsufficientBalance is returned when the required hours exceed the
	// employee's cumulative available hours.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConflict is returned when a requested range overlaps an existing
	// leave or recovery grant.
	ErrConflict = errors.New("date conflict")

	// ErrInvalidTransition is returned for lifecycle operations attempted
	// from a state that forbids them.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDayCountFixed is returned when editing the day count of a grant
	// that was funded by a conversion.
	ErrDayCountFixed = errors.New("cannot change day count of a converted grant")

	// ErrStorage marks persistence failures. The surrounding unit of work
	// has been rolled back, so the caller may retry.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports both figures so the caller can correct
// the request.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  decimal.Decimal
	Required   decimal.Decimal
	DayCount   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %sh, required %sh for %s days",
		e.Available.Round(2), e.Required.Round(2), e.DayCount)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ConflictKind names what the requested range collided with.
type ConflictKind string

const (
	ConflictLeave ConflictKind = "leave"
	ConflictGrant ConflictKind = "recovery"
)

// ConflictError enumerates the colliding date ranges.
type ConflictError struct {
	Kind   ConflictKind
	Ranges []DateRange
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case ConflictLeave:
		return fmt.Sprintf("conflict with existing leave: %s", FormatRanges(e.Ranges))
	default:
		return fmt.Sprintf("conflict with existing recovery days: %s", FormatRanges(e.Ranges))
	}
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidTransitionError reports a lifecycle operation attempted from a
// forbidding state.
type InvalidTransitionError struct {
	Op   string
	From GrantStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.Op == "cancel" && e.From == GrantUsed {
		return "invalid transition: cannot cancel used grant"
	}
	return fmt.Sprintf("invalid transition: cannot %s grant in status %s", e.Op, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// StorageError wraps a persistence failure after rollback.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates an unresolved reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidDayCount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDayCountFixed)
}

// IsConflict reports whether the error is a calendar conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reports whether the error might succeed on retry. Only
// storage failures qualify: nothing partial survives the rollback.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}
