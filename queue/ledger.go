/*
ledger.go - Daily slot ledger: occupancy per doctor-day

PURPOSE:
  The SlotLedger tracks, per (doctor, day), how many of the doctor's slots
  are occupied. It is one of the two shared mutable resources in the system
  (the other is the sequencer counter) and may only be mutated through its
  documented atomic operations.

CRITICAL INVARIANTS:
  1. One entry ever exists per (doctor, day), even under concurrent first
     access.
  2. Occupied changes only via Admit (+1) or Release (-1, floored at 0).
  3. Admit colocates the capacity check and the increment in one critical
     section: two concurrent admits can never both observe the last free
     slot. (The source system checked then acted in two steps; that race
     is closed here by contract.)
  4. Lock granularity is per (doctor, day). Different doctors never block
     each other.

EMERGENCY BYPASS:
  Admit(force=true) skips the capacity check and may push Occupied past
  Capacity. Priority classes other than emergency are rejected with
  SlotFullError once Occupied == Capacity.

SEE ALSO:
  - admission.go:           The only Admit caller
  - lifecycle.go:           The only Release caller (on cancellation)
  - store/sqlite/sqlite.go: Durable implementation via conditional UPDATE
*/
package queue

import (
	"context"
	"sync"
)

// =============================================================================
// SLOT LEDGER - Interface
// =============================================================================

// SlotLedger tracks occupancy per doctor-day. All mutations are atomic with
// respect to concurrent calls for the same key.
type SlotLedger interface {
	// GetOrInit returns the entry for the doctor-day, creating it with
	// Occupied=0 and the given capacity if absent. Idempotent under
	// concurrent first access: exactly one entry ever exists per key.
	GetOrInit(ctx context.Context, doctorID DoctorID, day Day, defaultCapacity int) (LedgerEntry, error)

	// Admit performs the admission increment. Unless force is set, it
	// checks Occupied < Capacity and increments in the same critical
	// section, returning *SlotFullError when the check fails (no side
	// effects). With force, it increments unconditionally.
	// The entry must have been initialized via GetOrInit.
	Admit(ctx context.Context, doctorID DoctorID, day Day, force bool) (LedgerEntry, error)

	// Release decrements Occupied by 1, floored at 0. Releasing an entry
	// already at 0 (or one that was never initialized) is a no-op, not an
	// error.
	Release(ctx context.Context, doctorID DoctorID, day Day) (LedgerEntry, error)

	// Status returns the current entry without creating it. The second
	// return is false when no entry exists for the key yet.
	Status(ctx context.Context, doctorID DoctorID, day Day) (LedgerEntry, bool, error)
}

// =============================================================================
// MEMORY LEDGER - In-process implementation with per-key locks
// =============================================================================

type slotKey struct {
	doctor DoctorID
	day    Day
}

type slotEntry struct {
	mu       sync.Mutex
	capacity int
	occupied int
}

// MemoryLedger is the in-process SlotLedger. The outer lock guards only the
// map; every entry carries its own mutex, so admissions for different
// doctor-days proceed in parallel.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[slotKey]*slotEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[slotKey]*slotEntry)}
}

// entry returns the slot entry for the key, creating it if create is set.
func (l *MemoryLedger) entry(doctorID DoctorID, day Day, capacity int, create bool) (*slotEntry, bool) {
	k := slotKey{doctor: doctorID, day: day}

	l.mu.RLock()
	e, ok := l.entries[k]
	l.mu.RUnlock()
	if ok || !create {
		return e, ok
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check: another goroutine may have created it meanwhile.
	if e, ok := l.entries[k]; ok {
		return e, true
	}
	e = &slotEntry{capacity: capacity}
	l.entries[k] = e
	return e, true
}

func (l *MemoryLedger) GetOrInit(_ context.Context, doctorID DoctorID, day Day, defaultCapacity int) (LedgerEntry, error) {
	e, _ := l.entry(doctorID, day, defaultCapacity, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	return LedgerEntry{DoctorID: doctorID, Day: day, Capacity: e.capacity, Occupied: e.occupied}, nil
}

func (l *MemoryLedger) Admit(_ context.Context, doctorID DoctorID, day Day, force bool) (LedgerEntry, error) {
	e, ok := l.entry(doctorID, day, 0, false)
	if !ok {
		return LedgerEntry{}, &SlotFullError{DoctorID: doctorID, Day: day}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !force && e.occupied >= e.capacity {
		return LedgerEntry{}, &SlotFullError{
			DoctorID: doctorID,
			Day:      day,
			Occupied: e.occupied,
			Capacity: e.capacity,
		}
	}
	e.occupied++
	return LedgerEntry{DoctorID: doctorID, Day: day, Capacity: e.capacity, Occupied: e.occupied}, nil
}

func (l *MemoryLedger) Release(_ context.Context, doctorID DoctorID, day Day) (LedgerEntry, error) {
	e, ok := l.entry(doctorID, day, 0, false)
	if !ok {
		// Never initialized: nothing to release.
		return LedgerEntry{DoctorID: doctorID, Day: day}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.occupied > 0 {
		e.occupied--
	}
	return LedgerEntry{DoctorID: doctorID, Day: day, Capacity: e.capacity, Occupied: e.occupied}, nil
}

func (l *MemoryLedger) Status(_ context.Context, doctorID DoctorID, day Day) (LedgerEntry, bool, error) {
	e, ok := l.entry(doctorID, day, 0, false)
	if !ok {
		return LedgerEntry{}, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return LedgerEntry{DoctorID: doctorID, Day: day, Capacity: e.capacity, Occupied: e.occupied}, true, nil
}
