/*
sequencer.go - Daily token numbering

PURPOSE:
  Issues the "Token No." printed on each admission: 1, 2, 3... starting
  fresh each calendar day, strictly increasing, no gaps and no repeats even
  under concurrent admissions.

SCOPE DECISION:
  The sequence is system-wide per day, not per doctor: all doctors share
  one daily series. That matches the deployed behavior (one front-desk
  number series for the whole OPD). Switching to per-doctor numbering is a
  product decision and a one-line key change (day -> doctor+day).

WHY A COUNTER, NOT A COUNT:
  The source system derived the next number by counting rows created since
  midnight. Two concurrent admissions can read the same count and collide.
  The contract here mandates a single authoritative incrementing counter
  per day; the SQLite implementation uses an upsert counter row.

SEE ALSO:
  - store/sqlite/sqlite.go: Durable counter (INSERT .. ON CONFLICT .. RETURNING)
*/
package queue

import (
	"context"
	"sync"
)

// =============================================================================
// TOKEN SEQUENCER - Interface
// =============================================================================

// TokenSequencer issues token numbers for a day. Numbers start at 1 for the
// first call of a day and increase by exactly 1 per call; never 0, never a
// duplicate, regardless of concurrency.
type TokenSequencer interface {
	Next(ctx context.Context, day Day) (int, error)
}

// =============================================================================
// MEMORY SEQUENCER - In-process counter per day
// =============================================================================

// MemorySequencer keeps one counter per day behind a mutex. Counters for
// past days are retained; the map is tiny (one int per day the process has
// served).
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[Day]int
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[Day]int)}
}

func (s *MemorySequencer) Next(_ context.Context, day Day) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[day]++
	return s.counters[day], nil
}
