/*
errors.go - Centralized error types for the queue engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; the API layer maps the
  categories to HTTP statuses.

ERROR CATEGORIES:
  1. Not found       - doctor or token absent (recoverable rejection)
  2. Capacity        - slot full (expected, frequent, never retried)
  3. State           - invalid lifecycle transition (caller logic error)
  4. Concurrency     - transient storage contention (safe to retry the
                       whole admission: it has no partial effects)

SEE ALSO:
  - admission.go: Returns SlotFullError / ErrDoctorNotFound
  - lifecycle.go: Returns InvalidTransitionError / ErrAlreadyCancelled
*/
package queue

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDoctorNotFound is returned when a referenced doctor doesn't exist.
	ErrDoctorNotFound = errors.New("doctor not found")

	// ErrTokenNotFound is returned when a referenced token doesn't exist.
	ErrTokenNotFound = errors.New("token not found")

	// ErrSlotFull is returned when a non-emergency admission finds the
	// doctor-day at capacity. Expected and frequent; surfaced directly.
	ErrSlotFull = errors.New("slot is full")

	// ErrInvalidTransition is returned for any transition the lifecycle
	// state machine does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyCancelled is returned when cancelling a cancelled token.
	ErrAlreadyCancelled = errors.New("token already cancelled")

	// ErrConcurrentModification is returned when a conditional update lost
	// a race. Transient: the operation may be retried.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SlotFullError reports a capacity rejection with the observed occupancy.
type SlotFullError struct {
	DoctorID DoctorID
	Day      Day
	Occupied int
	Capacity int
}

func (e *SlotFullError) Error() string {
	return fmt.Sprintf("slot is full for doctor %s on %s (%d/%d)",
		e.DoctorID, e.Day, e.Occupied, e.Capacity)
}

func (e *SlotFullError) Unwrap() error { return ErrSlotFull }

// InvalidTransitionError reports a rejected lifecycle transition.
type InvalidTransitionError struct {
	TokenID TokenID
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition token %s from %s to %s",
		e.TokenID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	// Re-cancelling a cancelled token has its own sentinel.
	if e.From == StatusCancelled && e.To == StatusCancelled {
		return ErrAlreadyCancelled
	}
	return ErrInvalidTransition
}

// InvalidSourceError reports an unrecognized booking source.
type InvalidSourceError struct {
	Raw string
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %q", e.Raw)
}

// InvalidStatusError reports an unrecognized token status.
type InvalidStatusError struct {
	Raw string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Raw)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing doctor or token.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrTokenNotFound)
}

// IsClientError returns true if the error is a rejection the caller caused
// (full slot, bad transition, bad enum value). None of these are retried.
func IsClientError(err error) bool {
	if errors.Is(err, ErrSlotFull) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyCancelled) {
		return true
	}
	var srcErr *InvalidSourceError
	var stErr *InvalidStatusError
	return errors.As(err, &srcErr) || errors.As(err, &stErr)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
