/*
lifecycle.go - Token lifecycle manager

PURPOSE:
  Owns the token state machine:

      waiting ──▶ completed
              ──▶ cancelled   (releases the day's ledger slot)
              ──▶ noshow

  All three targets are terminal. Nothing ever transitions out of a
  terminal state; re-cancelling a cancelled token is its own error
  (ErrAlreadyCancelled) because the front desk hits it constantly.

LEDGER SIDE EFFECTS:
  Only cancellation touches the ledger. Completed and no-show keep the slot
  counted as occupied: the day's capacity was consumed by scheduling the
  patient, not recovered by seeing them. The release targets the day the
  token was created on - a token admitted yesterday and cancelled today
  releases yesterday's entry.

EXACTLY-ONCE RELEASE:
  The status write is a compare-and-set on StatusWaiting. Of two concurrent
  cancel requests, exactly one wins the CAS and performs the release; the
  loser re-reads and reports AlreadyCancelled.

DESIGN NOTE:
  Cancellation frees capacity for a future admission attempt only. There is
  no separate waitlist pool beyond the waiting status itself, so no token
  is promoted or reassigned - the next booking request simply finds a slot.
*/
package queue

import (
	"context"

	"github.com/rs/zerolog"
)

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

// LifecycleManager validates and applies token status transitions. It is
// the only component that writes Token.Status.
type LifecycleManager struct {
	Tokens TokenStore
	Ledger SlotLedger
	Logger zerolog.Logger
}

func NewLifecycleManager(tokens TokenStore, ledger SlotLedger, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{Tokens: tokens, Ledger: ledger, Logger: logger}
}

// Transition moves a token to a terminal status and returns the updated
// token. Errors: ErrTokenNotFound, *InvalidStatusError for unrecognized
// statuses, *InvalidTransitionError (unwrapping ErrAlreadyCancelled for a
// repeated cancel) when the state machine forbids the move.
func (m *LifecycleManager) Transition(ctx context.Context, id TokenID, next Status) (*Token, error) {
	if !next.Valid() {
		return nil, &InvalidStatusError{Raw: string(next)}
	}
	if !next.Terminal() {
		// waiting -> waiting is the only non-terminal target and is never legal.
		return nil, &InvalidTransitionError{TokenID: id, From: StatusWaiting, To: next}
	}

	current, err := m.Tokens.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, &InvalidTransitionError{TokenID: id, From: current.Status, To: next}
	}

	updated, err := m.Tokens.UpdateStatus(ctx, id, StatusWaiting, next)
	if err == nil {
		return m.applied(ctx, updated)
	}
	if !IsRetryable(err) {
		return nil, err
	}

	// Lost a race: another transition landed between read and CAS. Re-read
	// so the caller gets the precise state error instead of a retry hint.
	current, rerr := m.Tokens.GetToken(ctx, id)
	if rerr != nil {
		return nil, rerr
	}
	return nil, &InvalidTransitionError{TokenID: id, From: current.Status, To: next}
}

// Cancel is shorthand for Transition(id, StatusCancelled).
func (m *LifecycleManager) Cancel(ctx context.Context, id TokenID) (*Token, error) {
	return m.Transition(ctx, id, StatusCancelled)
}

// applied performs post-transition side effects. Runs only for the caller
// that won the status CAS, so the release happens exactly once per token.
func (m *LifecycleManager) applied(ctx context.Context, t *Token) (*Token, error) {
	if t.Status == StatusCancelled {
		entry, err := m.Ledger.Release(ctx, t.DoctorID, t.Day())
		if err != nil {
			m.Logger.Error().
				Err(err).
				Str("token_id", string(t.ID)).
				Str("doctor_id", string(t.DoctorID)).
				Msg("failed to release slot for cancelled token")
			return nil, err
		}
		m.Logger.Info().
			Str("token_id", string(t.ID)).
			Str("doctor_id", string(t.DoctorID)).
			Str("day", t.Day().String()).
			Int("occupied", entry.Occupied).
			Msg("token cancelled, slot released")
		return t, nil
	}

	m.Logger.Info().
		Str("token_id", string(t.ID)).
		Str("status", string(t.Status)).
		Msg("token transitioned")
	return t, nil
}
