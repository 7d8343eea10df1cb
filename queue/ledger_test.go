package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/opd-queue/queue"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testDay() queue.Day {
	return queue.DayOf(time.Date(2026, time.March, 10, 9, 30, 0, 0, time.Local))
}

// =============================================================================
// GET-OR-INIT TESTS
// =============================================================================

func TestMemoryLedger_GetOrInit_CreatesOnce(t *testing.T) {
	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	entry, err := ledger.GetOrInit(ctx, "doc-1", day, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, entry.Capacity)
	assert.Equal(t, 0, entry.Occupied)

	// Second init with a different default must not reset the entry.
	entry, err = ledger.GetOrInit(ctx, "doc-1", day, 99)
	require.NoError(t, err)
	assert.Equal(t, 10, entry.Capacity, "existing entry must keep its capacity")
}

func TestMemoryLedger_GetOrInit_ConcurrentFirstAccess(t *testing.T) {
	// GIVEN: No entry exists for the doctor-day
	// WHEN: 50 goroutines race on first access
	// THEN: Exactly one entry exists and nobody observes a reset

	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.GetOrInit(ctx, "doc-1", day, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, ok, err := ledger.Status(ctx, "doc-1", day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, entry.Capacity)
	assert.Equal(t, 0, entry.Occupied)
}

// =============================================================================
// ADMIT / CAPACITY TESTS
// =============================================================================

func TestMemoryLedger_Admit_RejectsWhenFull(t *testing.T) {
	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 2)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		entry, err := ledger.Admit(ctx, "doc-1", day, false)
		require.NoError(t, err)
		assert.Equal(t, i, entry.Occupied)
	}

	_, err = ledger.Admit(ctx, "doc-1", day, false)
	require.Error(t, err)
	var full *queue.SlotFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Occupied)
	assert.Equal(t, 2, full.Capacity)
	assert.ErrorIs(t, err, queue.ErrSlotFull)
}

func TestMemoryLedger_Admit_EmergencyBypassesCapacity(t *testing.T) {
	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 1)
	require.NoError(t, err)

	_, err = ledger.Admit(ctx, "doc-1", day, false)
	require.NoError(t, err)

	// Day is full; a forced admit still lands and pushes past capacity.
	entry, err := ledger.Admit(ctx, "doc-1", day, true)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Occupied)
	assert.Equal(t, 1, entry.Capacity)
	assert.False(t, entry.HasCapacity())
}

func TestMemoryLedger_Admit_ConcurrentLastSlot(t *testing.T) {
	// GIVEN: One free slot remains
	// WHEN: 20 goroutines admit concurrently
	// THEN: Exactly one succeeds - the check and the increment are one
	//       critical section

	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Admit(ctx, "doc-1", day, false)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, queue.ErrSlotFull)
		}
	}
	assert.Equal(t, 1, succeeded, "only one admit may win the last slot")

	entry, ok, err := ledger.Status(ctx, "doc-1", day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Occupied)
}

func TestMemoryLedger_Admit_ConcurrentMixedWithForce(t *testing.T) {
	// Capacity invariant under a mix: occupied always equals successful
	// admissions, and non-forced successes never exceed capacity.

	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	type result struct {
		forced bool
		err    error
	}
	results := make(chan result, 40)
	for i := 0; i < 40; i++ {
		forced := i%8 == 0 // 5 forced among 40
		wg.Add(1)
		go func(forced bool) {
			defer wg.Done()
			_, err := ledger.Admit(ctx, "doc-1", day, forced)
			results <- result{forced: forced, err: err}
		}(forced)
	}
	wg.Wait()
	close(results)

	regular, forced := 0, 0
	for r := range results {
		if r.err != nil {
			continue
		}
		if r.forced {
			forced++
		} else {
			regular++
		}
	}
	assert.Equal(t, 5, regular, "regular admits capped at capacity")
	assert.Equal(t, 5, forced, "forced admits never rejected")

	entry, _, err := ledger.Status(ctx, "doc-1", day)
	require.NoError(t, err)
	assert.Equal(t, regular+forced, entry.Occupied)
}

// =============================================================================
// RELEASE TESTS
// =============================================================================

func TestMemoryLedger_Release_FlooredAtZero(t *testing.T) {
	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 3)
	require.NoError(t, err)

	// Release on an empty entry is a no-op, not an error.
	entry, err := ledger.Release(ctx, "doc-1", day)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Occupied)

	// Release on a never-initialized key is also a no-op.
	entry, err = ledger.Release(ctx, "doc-ghost", day)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Occupied)
}

func TestMemoryLedger_Release_DecrementsOnce(t *testing.T) {
	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 3)
	require.NoError(t, err)
	_, err = ledger.Admit(ctx, "doc-1", day, false)
	require.NoError(t, err)
	_, err = ledger.Admit(ctx, "doc-1", day, false)
	require.NoError(t, err)

	entry, err := ledger.Release(ctx, "doc-1", day)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Occupied)
	assert.True(t, entry.HasCapacity())
}

func TestMemoryLedger_IndependentKeys(t *testing.T) {
	// Different doctors and different days never share occupancy.
	ledger := queue.NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	_, err := ledger.GetOrInit(ctx, "doc-1", day, 1)
	require.NoError(t, err)
	_, err = ledger.GetOrInit(ctx, "doc-2", day, 1)
	require.NoError(t, err)
	_, err = ledger.GetOrInit(ctx, "doc-1", day.AddDays(1), 1)
	require.NoError(t, err)

	_, err = ledger.Admit(ctx, "doc-1", day, false)
	require.NoError(t, err)

	for _, key := range []struct {
		doc queue.DoctorID
		day queue.Day
	}{
		{"doc-2", day},
		{"doc-1", day.AddDays(1)},
	} {
		entry, ok, err := ledger.Status(ctx, key.doc, key.day)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 0, entry.Occupied)
	}
}
