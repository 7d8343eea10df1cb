package sqlite_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/opd-queue/queue"
	"github.com/warp/opd-queue/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func saveDoctor(t *testing.T, st *sqlite.Store, capacity int) queue.Doctor {
	t.Helper()
	d := queue.Doctor{
		ID:            queue.NewDoctorID(),
		Name:          "Dr. Rao",
		Specialty:     "Cardiology",
		SlotTime:      "10-13",
		DailyCapacity: capacity,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, st.SaveDoctor(context.Background(), d))
	return d
}

func day() queue.Day {
	return queue.DayOf(time.Date(2026, time.March, 10, 10, 0, 0, 0, time.Local))
}

func waitingToken(doctorID queue.DoctorID, number int, at time.Time) queue.Token {
	return queue.Token{
		ID:          queue.NewTokenID(),
		Number:      number,
		PatientName: "patient",
		Source:      queue.SourceOnline,
		DoctorID:    doctorID,
		SlotTime:    "10-13",
		Status:      queue.StatusWaiting,
		CreatedAt:   at,
	}
}

// =============================================================================
// DOCTOR STORE
// =============================================================================

func TestSQLite_DoctorRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 12)

	got, err := st.GetDoctor(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
	assert.Equal(t, d.Specialty, got.Specialty)
	assert.Equal(t, d.SlotTime, got.SlotTime)
	assert.Equal(t, 12, got.DailyCapacity)

	_, err = st.GetDoctor(ctx, "ghost")
	assert.ErrorIs(t, err, queue.ErrDoctorNotFound)

	list, err := st.ListDoctors(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// =============================================================================
// TOKEN STORE
// =============================================================================

func TestSQLite_TokenRoundTripAndDayQuery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 12)

	base := day().Time().Add(9 * time.Hour)
	t1 := waitingToken(d.ID, 1, base)
	t2 := waitingToken(d.ID, 2, base.Add(time.Minute))
	yesterday := waitingToken(d.ID, 9, base.AddDate(0, 0, -1))

	for _, tok := range []queue.Token{t1, t2, yesterday} {
		require.NoError(t, st.SaveToken(ctx, tok))
	}

	got, err := st.GetToken(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Number)
	assert.Equal(t, queue.StatusWaiting, got.Status)
	assert.Equal(t, d.ID, got.DoctorID)
	assert.True(t, got.Day().Equal(day()))

	_, err = st.GetToken(ctx, "ghost")
	assert.ErrorIs(t, err, queue.ErrTokenNotFound)

	todays, err := st.TokensByDoctorAndDay(ctx, d.ID, day())
	require.NoError(t, err)
	require.Len(t, todays, 2, "yesterday's token filtered out")
	assert.Equal(t, t1.ID, todays[0].ID, "arrival order preserved")
	assert.Equal(t, t2.ID, todays[1].ID)

	n, err := st.CountAdmitted(ctx, day())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_UpdateStatusIsCompareAndSet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 12)

	tok := waitingToken(d.ID, 1, day().Time().Add(9*time.Hour))
	require.NoError(t, st.SaveToken(ctx, tok))

	updated, err := st.UpdateStatus(ctx, tok.ID, queue.StatusWaiting, queue.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCancelled, updated.Status)

	// Second CAS from waiting loses: status already moved.
	_, err = st.UpdateStatus(ctx, tok.ID, queue.StatusWaiting, queue.StatusCompleted)
	assert.ErrorIs(t, err, queue.ErrConcurrentModification)

	_, err = st.UpdateStatus(ctx, "ghost", queue.StatusWaiting, queue.StatusCancelled)
	assert.ErrorIs(t, err, queue.ErrTokenNotFound)
}

// =============================================================================
// SLOT LEDGER
// =============================================================================

func TestSQLite_LedgerAdmitAndRelease(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 2)

	entry, err := st.GetOrInit(ctx, d.ID, day(), d.DailyCapacity)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Capacity)
	assert.Equal(t, 0, entry.Occupied)

	// Re-init keeps the existing row.
	entry, err = st.GetOrInit(ctx, d.ID, day(), 99)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Capacity)

	for want := 1; want <= 2; want++ {
		entry, err = st.Admit(ctx, d.ID, day(), false)
		require.NoError(t, err)
		assert.Equal(t, want, entry.Occupied)
	}

	// Full: conditional admit rejects with observed occupancy.
	_, err = st.Admit(ctx, d.ID, day(), false)
	var full *queue.SlotFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Occupied)
	assert.Equal(t, 2, full.Capacity)

	// Forced admit pushes past capacity.
	entry, err = st.Admit(ctx, d.ID, day(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Occupied)

	entry, err = st.Release(ctx, d.ID, day())
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Occupied)
}

func TestSQLite_ReleaseFlooredAtZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 2)

	_, err := st.GetOrInit(ctx, d.ID, day(), d.DailyCapacity)
	require.NoError(t, err)

	entry, err := st.Release(ctx, d.ID, day())
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Occupied)

	// Never-initialized key: still a quiet no-op.
	entry, err = st.Release(ctx, "ghost", day())
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Occupied)
}

func TestSQLite_StatusReportsMissingEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 2)

	_, ok, err := st.Status(ctx, d.ID, day())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.GetOrInit(ctx, d.ID, day(), d.DailyCapacity)
	require.NoError(t, err)

	entry, ok, err := st.Status(ctx, d.ID, day())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Capacity)
}

// =============================================================================
// TOKEN SEQUENCER
// =============================================================================

func TestSQLite_SequencerContiguousPerDay(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 4; want++ {
		n, err := st.Next(ctx, day())
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// Another day has its own series.
	n, err := st.Next(ctx, day().AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_SequencerConcurrentUnique(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	const callers = 40
	numbers := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := st.Next(ctx, day())
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
		assert.Equal(t, i+1, n)
	}
}

// =============================================================================
// FULL ENGINE OVER SQLITE
// =============================================================================

func TestSQLite_BacksTheWholeEngine(t *testing.T) {
	// The one store implements registry, token store, ledger and sequencer;
	// run the capacity-two scenario through the real controllers on it.
	st := newTestStore(t)
	ctx := context.Background()
	d := saveDoctor(t, st, 2)

	admissions := queue.NewAdmissionController(st, st, st, st, zerolog.Nop())
	lifecycle := queue.NewLifecycleManager(st, st, zerolog.Nop())

	admit := func(source queue.Source) (*queue.Token, error) {
		return admissions.Admit(ctx, queue.AdmissionRequest{
			DoctorID:    d.ID,
			PatientName: "patient",
			Source:      source,
		})
	}

	first, err := admit(queue.SourceOnline)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Number)

	second, err := admit(queue.SourceWalkIn)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)

	_, err = admit(queue.SourceOnline)
	require.ErrorIs(t, err, queue.ErrSlotFull)

	emergency, err := admit(queue.SourceEmergency)
	require.NoError(t, err)
	assert.Equal(t, 3, emergency.Number)

	_, err = lifecycle.Cancel(ctx, second.ID)
	require.NoError(t, err)

	entry, err := admissions.SlotStatus(ctx, d.ID, first.Day())
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Occupied)

	tokens, err := st.TokensByDoctorAndDay(ctx, d.ID, first.Day())
	require.NoError(t, err)
	ordered := queue.OrderForService(tokens, d.ID, first.Day())
	require.Len(t, ordered, 3)
	assert.Equal(t, emergency.ID, ordered[0].ID, "emergency served first")
	assert.Equal(t, first.ID, ordered[1].ID)
	assert.Equal(t, second.ID, ordered[2].ID, "cancelled token trails")
}
