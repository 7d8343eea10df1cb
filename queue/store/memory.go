// Package store provides in-memory implementations of the queue storage
// interfaces, used by tests and the dev server.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/opd-queue/queue"
)

// =============================================================================
// MEMORY STORE - In-memory DoctorStore + TokenStore
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	doctors map[queue.DoctorID]queue.Doctor
	tokens  map[queue.TokenID]queue.Token
	// arrival preserves insertion order for day queries
	arrival []queue.TokenID
}

func NewMemory() *Memory {
	return &Memory{
		doctors: make(map[queue.DoctorID]queue.Doctor),
		tokens:  make(map[queue.TokenID]queue.Token),
	}
}

// =============================================================================
// DOCTOR STORE
// =============================================================================

func (m *Memory) SaveDoctor(_ context.Context, d queue.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
	return nil
}

func (m *Memory) GetDoctor(_ context.Context, id queue.DoctorID) (*queue.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, queue.ErrDoctorNotFound
	}
	return &d, nil
}

func (m *Memory) ListDoctors(_ context.Context) ([]queue.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]queue.Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// TOKEN STORE
// =============================================================================

func (m *Memory) SaveToken(_ context.Context, t queue.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[t.ID]; !exists {
		m.arrival = append(m.arrival, t.ID)
	}
	m.tokens[t.ID] = t
	return nil
}

func (m *Memory) GetToken(_ context.Context, id queue.TokenID) (*queue.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, queue.ErrTokenNotFound
	}
	return &t, nil
}

func (m *Memory) TokensByDoctorAndDay(_ context.Context, doctorID queue.DoctorID, day queue.Day) ([]queue.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []queue.Token
	for _, id := range m.arrival {
		t := m.tokens[id]
		if t.DoctorID == doctorID && t.Day().Equal(day) {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateStatus is compare-and-set on the token's current status.
func (m *Memory) UpdateStatus(_ context.Context, id queue.TokenID, from, to queue.Status) (*queue.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, queue.ErrTokenNotFound
	}
	if t.Status != from {
		return nil, queue.ErrConcurrentModification
	}
	t.Status = to
	m.tokens[id] = t
	return &t, nil
}

func (m *Memory) CountAdmitted(_ context.Context, day queue.Day) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tokens {
		if t.Day().Equal(day) {
			n++
		}
	}
	return n, nil
}
