/*
Package queue provides the core token admission and queue scheduling engine.

PURPOSE:
  This package contains the domain types and algorithms for a daily
  outpatient queue: patients are admitted into a doctor's queue as numbered
  tokens, admission is capacity-limited per doctor per day (with an
  emergency bypass), and waiting tokens are served in priority order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Day: A calendar date, the scope over which capacity and numbering run
  - Source: Where a booking came from; doubles as the priority class
  - Status: Token lifecycle state (waiting, then one terminal state)
  - Doctor: Read-only profile consumed by the admission path
  - Token: One patient's numbered place in a doctor's queue for one day

DESIGN PRINCIPLES:
  1. Immutability: Token.Number, SlotTime and CreatedAt are assigned once
  2. Type Safety: Strong typing for IDs prevents mixing doctor/token IDs
  3. Day scoping: All capacity and numbering state is keyed by (doctor, Day)
     or Day alone; nothing leaks across midnight

SEE ALSO:
  - ledger.go:    Per doctor-day occupancy tracking
  - sequencer.go: Daily token numbering
  - admission.go: Admission orchestration
  - lifecycle.go: Status transitions
*/
package queue

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DoctorID string
type TokenID string

// NewTokenID returns a fresh random token identifier.
func NewTokenID() TokenID { return TokenID(uuid.New().String()) }

// NewDoctorID returns a fresh random doctor identifier.
func NewDoctorID() DoctorID { return DoctorID(uuid.New().String()) }

// =============================================================================
// DAY - Calendar date scope (local time, date-only granularity)
// =============================================================================

// Day is a calendar date. It is the key for all capacity and numbering
// state: one ledger entry exists per (DoctorID, Day), one token number
// sequence exists per Day. Day is comparable and safe as a map key.
type Day struct {
	Year  int
	Month time.Month
	DayOf int
}

// DayOf truncates a timestamp to its calendar date (local time).
func DayOf(t time.Time) Day {
	return Day{Year: t.Year(), Month: t.Month(), DayOf: t.Day()}
}

// Today returns the current calendar date.
func Today() Day { return DayOf(time.Now()) }

// Time returns the midnight instant of the day in local time.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.DayOf, 0, 0, 0, 0, time.Local)
}

func (d Day) String() string { return d.Time().Format("2006-01-02") }

func (d Day) IsZero() bool { return d == Day{} }

func (d Day) Equal(other Day) bool  { return d == other }
func (d Day) Before(other Day) bool { return d.Time().Before(other.Time()) }
func (d Day) AddDays(n int) Day     { return DayOf(d.Time().AddDate(0, 0, n)) }

// ParseDay parses a YYYY-MM-DD date string.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return Day{}, err
	}
	return DayOf(t), nil
}

// =============================================================================
// SOURCE - Booking origin, doubles as the priority class
// =============================================================================

// Source is where a booking request came from. It determines service order
// (lower rank is served first) and, for SourceEmergency only, admission
// eligibility: emergencies bypass the capacity check.
type Source string

const (
	SourceEmergency Source = "emergency"
	SourcePriority  Source = "priority"
	SourceFollowUp  Source = "followup"
	SourceOnline    Source = "online"
	SourceWalkIn    Source = "walkin"
)

// priorityRanks fixes the service order. Emergencies are always seen first;
// scheduled walk-ins last.
var priorityRanks = map[Source]int{
	SourceEmergency: 1,
	SourcePriority:  2,
	SourceFollowUp:  3,
	SourceOnline:    4,
	SourceWalkIn:    5,
}

// Rank returns the priority rank of the source (1 = highest priority).
// Unknown sources sort after every recognized one.
func (s Source) Rank() int {
	if r, ok := priorityRanks[s]; ok {
		return r
	}
	return 99
}

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	_, ok := priorityRanks[s]
	return ok
}

// ParseSource validates a raw source string.
func ParseSource(raw string) (Source, error) {
	s := Source(raw)
	if !s.Valid() {
		return "", &InvalidSourceError{Raw: raw}
	}
	return s, nil
}

// =============================================================================
// STATUS - Token lifecycle state machine
// =============================================================================

// Status is the token lifecycle state. A token starts as StatusWaiting and
// moves to exactly one terminal state; there are no other transitions.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "noshow"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	return s == StatusWaiting || s.Terminal()
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", &InvalidStatusError{Raw: raw}
	}
	return s, nil
}

// =============================================================================
// DOCTOR - Read-only profile (owned by the doctor registry)
// =============================================================================

// Doctor is the profile the admission path consults. The queue engine never
// mutates it; DailyCapacity and SlotTime are copied into the ledger entry
// and token at first use.
type Doctor struct {
	ID            DoctorID
	Name          string
	Specialty     string
	SlotTime      string // nominal slot-time label, e.g. "9-10"
	DailyCapacity int
	CreatedAt     time.Time
}

// =============================================================================
// TOKEN - One patient's place in a doctor's queue for one day
// =============================================================================

// Token represents an admitted booking. Number, SlotTime and CreatedAt are
// assigned at admission and never change; Status is mutated only by the
// LifecycleManager. Tokens are never deleted: terminal tokens are history.
type Token struct {
	ID          TokenID
	Number      int // unique within the admission day, assigned once
	PatientName string
	Contact     string // optional
	Source      Source
	DoctorID    DoctorID
	SlotTime    string
	Status      Status
	CreatedAt   time.Time
}

// Day returns the calendar date the token was admitted on. Ledger releases
// on cancellation target this day, not "today".
func (t *Token) Day() Day { return DayOf(t.CreatedAt) }

// =============================================================================
// LEDGER ENTRY - Occupancy/capacity record for one doctor-day
// =============================================================================

// LedgerEntry is a snapshot of the occupancy record for one doctor-day.
// Occupied may exceed Capacity only due to emergency admissions.
type LedgerEntry struct {
	DoctorID DoctorID
	Day      Day
	Capacity int
	Occupied int
}

// HasCapacity reports whether a non-emergency admission may proceed.
func (e LedgerEntry) HasCapacity() bool { return e.Occupied < e.Capacity }
