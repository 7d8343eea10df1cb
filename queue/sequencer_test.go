package queue_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/opd-queue/queue"
)

func TestMemorySequencer_StartsAtOne(t *testing.T) {
	seq := queue.NewMemorySequencer()
	ctx := context.Background()

	n, err := seq.Next(ctx, testDay())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "first number of a day is 1, never 0")
}

func TestMemorySequencer_IncrementsByOne(t *testing.T) {
	seq := queue.NewMemorySequencer()
	ctx := context.Background()
	day := testDay()

	for want := 1; want <= 5; want++ {
		n, err := seq.Next(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestMemorySequencer_DaysAreIndependent(t *testing.T) {
	seq := queue.NewMemorySequencer()
	ctx := context.Background()
	day := testDay()

	_, err := seq.Next(ctx, day)
	require.NoError(t, err)
	_, err = seq.Next(ctx, day)
	require.NoError(t, err)

	// A new day starts back at 1.
	n, err := seq.Next(ctx, day.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemorySequencer_ConcurrentUniqueContiguous(t *testing.T) {
	// GIVEN: 100 concurrent callers within one day-scope
	// WHEN: Each draws a number
	// THEN: The numbers are exactly 1..100 - distinct, contiguous, gap-free

	seq := queue.NewMemorySequencer()
	ctx := context.Background()
	day := testDay()

	const callers = 100
	numbers := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, day)
			assert.NoError(t, err)
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)

	var got []int
	for n := range numbers {
		got = append(got, n)
	}
	sort.Ints(got)
	require.Len(t, got, callers)
	for i, n := range got {
		assert.Equal(t, i+1, n, "sequence must be contiguous from 1")
	}
}
