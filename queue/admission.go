/*
admission.go - Admission controller: accept/reject and token minting

PURPOSE:
  Orchestrates one booking request end to end:
    1. Resolve the doctor (ErrDoctorNotFound)
    2. Initialize today's ledger entry from the doctor's profile
    3. Reserve a slot - capacity check and increment in one atomic ledger
       operation, bypassed for emergencies (SlotFullError otherwise)
    4. Draw the day's next token number from the sequencer
    5. Persist the waiting token

NO PARTIAL EFFECTS:
  The ledger reservation happens first; if numbering or persistence fails
  afterwards, the reservation is released before the error is returned. An
  admission therefore either fully commits (token + increment) or leaves no
  trace. A capacity rejection happens before any side effect at all.

ORDERING NOTE:
  Reserving before numbering means a rejected booking never consumes a
  number - the daily sequence stays contiguous across SlotFull rejections.

SEE ALSO:
  - ledger.go:    Atomic reserve/release
  - sequencer.go: Daily numbering
  - lifecycle.go: What happens to the token afterwards
*/
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// ADMISSION CONTROLLER
// =============================================================================

// AdmissionRequest is one booking attempt.
type AdmissionRequest struct {
	DoctorID    DoctorID
	PatientName string
	Contact     string
	Source      Source
}

// AdmissionController composes the registry, ledger, sequencer and token
// store into the admission operation. All collaborators are injected; the
// controller holds no state of its own and is safe for concurrent use.
type AdmissionController struct {
	Registry  DoctorRegistry
	Ledger    SlotLedger
	Sequencer TokenSequencer
	Tokens    TokenStore
	Logger    zerolog.Logger

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func NewAdmissionController(registry DoctorRegistry, ledger SlotLedger, seq TokenSequencer, tokens TokenStore, logger zerolog.Logger) *AdmissionController {
	return &AdmissionController{
		Registry:  registry,
		Ledger:    ledger,
		Sequencer: seq,
		Tokens:    tokens,
		Logger:    logger,
		Clock:     time.Now,
	}
}

// Admit processes one booking request and returns the minted token, or a
// definite error: ErrDoctorNotFound, *SlotFullError, *InvalidSourceError,
// or a storage error (in which case no side effects remain).
func (c *AdmissionController) Admit(ctx context.Context, req AdmissionRequest) (*Token, error) {
	if strings.TrimSpace(req.PatientName) == "" {
		return nil, fmt.Errorf("patient name is required")
	}
	if !req.Source.Valid() {
		return nil, &InvalidSourceError{Raw: string(req.Source)}
	}

	doctor, err := c.Registry.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	now := c.Clock()
	day := DayOf(now)

	if _, err := c.Ledger.GetOrInit(ctx, doctor.ID, day, doctor.DailyCapacity); err != nil {
		return nil, fmt.Errorf("init ledger entry: %w", err)
	}

	// Reserve the slot. Check and increment are one critical section inside
	// the ledger; emergencies force past capacity.
	emergency := req.Source == SourceEmergency
	entry, err := c.Ledger.Admit(ctx, doctor.ID, day, emergency)
	if err != nil {
		c.Logger.Info().
			Str("doctor_id", string(doctor.ID)).
			Str("source", string(req.Source)).
			Str("day", day.String()).
			Msg("admission rejected: slot full")
		return nil, err
	}

	number, err := c.Sequencer.Next(ctx, day)
	if err != nil {
		c.compensate(ctx, doctor.ID, day)
		return nil, fmt.Errorf("assign token number: %w", err)
	}

	token := Token{
		ID:          NewTokenID(),
		Number:      number,
		PatientName: req.PatientName,
		Contact:     req.Contact,
		Source:      req.Source,
		DoctorID:    doctor.ID,
		SlotTime:    doctor.SlotTime,
		Status:      StatusWaiting,
		CreatedAt:   now,
	}

	if err := c.Tokens.SaveToken(ctx, token); err != nil {
		c.compensate(ctx, doctor.ID, day)
		return nil, fmt.Errorf("persist token: %w", err)
	}

	c.Logger.Info().
		Str("token_id", string(token.ID)).
		Int("number", token.Number).
		Str("doctor_id", string(doctor.ID)).
		Str("source", string(req.Source)).
		Int("occupied", entry.Occupied).
		Int("capacity", entry.Capacity).
		Msg("token admitted")

	return &token, nil
}

// compensate undoes a slot reservation after a downstream failure.
func (c *AdmissionController) compensate(ctx context.Context, doctorID DoctorID, day Day) {
	if _, err := c.Ledger.Release(ctx, doctorID, day); err != nil {
		c.Logger.Error().
			Err(err).
			Str("doctor_id", string(doctorID)).
			Str("day", day.String()).
			Msg("failed to release reserved slot after aborted admission")
	}
}

// SlotStatus returns the occupancy for a doctor-day. A doctor-day with no
// ledger entry yet reads as zero occupancy and zero capacity, matching a
// day nobody has booked.
func (c *AdmissionController) SlotStatus(ctx context.Context, doctorID DoctorID, day Day) (LedgerEntry, error) {
	entry, ok, err := c.Ledger.Status(ctx, doctorID, day)
	if err != nil {
		return LedgerEntry{}, err
	}
	if !ok {
		return LedgerEntry{DoctorID: doctorID, Day: day}, nil
	}
	return entry, nil
}
