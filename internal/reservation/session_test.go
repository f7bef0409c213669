package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/store"
)

func newTestSessions(t *testing.T) (*SessionManager, *store.MemoryStore, *testClock) {
	t.Helper()
	m, st, clock := newTestMachine(t, 5*time.Minute)
	sm := NewSessionManager(m)
	sm.now = clock.Now
	return sm, st, clock
}

func key(label string) model.SeatKey {
	return model.SeatKey{ShowingID: "show-1", Label: label}
}

func TestSelectSeatsAllOrNothing(t *testing.T) {
	sm, st, _ := newTestSessions(t)
	for _, l := range []string{"A1", "A2", "A3"} {
		seedSeat(t, st, key(l), model.ClassVIP, 500)
	}

	// A2 belongs to someone else; the whole selection must fail and
	// leave A1 and A3 exactly as they were.
	_, err := sm.machine.TryHold(context.Background(), key("A2"), "rival")
	require.NoError(t, err)

	_, err = sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("A1"), key("A2"), key("A3")})
	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Equal(t, []model.SeatKey{key("A2")}, selErr.Blocked)
	assert.ErrorIs(t, selErr, ErrAlreadyHeld)

	for _, l := range []string{"A1", "A3"} {
		seat, err := st.Get(context.Background(), key(l))
		require.NoError(t, err)
		assert.Equal(t, model.SeatAvailable, seat.Status, "seat %s must be rolled back", l)
	}
	rivalSeat, err := st.Get(context.Background(), key("A2"))
	require.NoError(t, err)
	assert.Equal(t, "rival", rivalSeat.HolderID, "the blocking hold must survive")

	_, ok := sm.Session("show-1", "u1")
	assert.False(t, ok, "a failed selection must not create a session")
}

func TestSelectSeatsRollbackKeepsPriorHolds(t *testing.T) {
	sm, st, _ := newTestSessions(t)
	for _, l := range []string{"B1", "B2"} {
		seedSeat(t, st, key(l), model.ClassStandard, 300)
	}

	_, err := sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("B1")})
	require.NoError(t, err)

	_, err = sm.machine.TryHold(context.Background(), key("B2"), "rival")
	require.NoError(t, err)

	// Adding B2 fails, but B1 was held before this call and must stay
	// held: rollback only undoes what this call acquired.
	_, err = sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("B1"), key("B2")})
	require.Error(t, err)

	seat, err := st.Get(context.Background(), key("B1"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, seat.Status)
	assert.Equal(t, "u1", seat.HolderID)
}

func TestSelectSeatsDedupes(t *testing.T) {
	sm, st, _ := newTestSessions(t)
	seedSeat(t, st, key("C1"), model.ClassStandard, 300)

	seats, err := sm.SelectSeats(context.Background(), "show-1", "u1",
		[]model.SeatKey{key("C1"), key("C1"), {}})
	require.NoError(t, err)
	assert.Len(t, seats, 1)

	sess, ok := sm.Session("show-1", "u1")
	require.True(t, ok)
	assert.Equal(t, []model.SeatKey{key("C1")}, sess.HeldSeats)
}

func TestSessionExpiryTracksEarliestHold(t *testing.T) {
	sm, st, clock := newTestSessions(t)
	seedSeat(t, st, key("D1"), model.ClassStandard, 300)
	seedSeat(t, st, key("D2"), model.ClassStandard, 300)

	start := clock.Now()
	_, err := sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("D1")})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("D2")})
	require.NoError(t, err)

	sess, ok := sm.Session("show-1", "u1")
	require.True(t, ok)
	assert.Equal(t, start.Add(5*time.Minute), sess.ExpiresAt, "the first hold lapses first")
	assert.Equal(t, []model.SeatKey{key("D1"), key("D2")}, sess.HeldSeats)

	// Re-holding D1 refreshes it, so D2 now drives the deadline.
	_, err = sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("D1")})
	require.NoError(t, err)
	sess, ok = sm.Session("show-1", "u1")
	require.True(t, ok)
	assert.Equal(t, start.Add(7*time.Minute), sess.ExpiresAt)
}

func TestDeselectSeat(t *testing.T) {
	sm, st, _ := newTestSessions(t)
	seedSeat(t, st, key("E1"), model.ClassStandard, 300)
	seedSeat(t, st, key("E2"), model.ClassStandard, 300)

	_, err := sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("E1"), key("E2")})
	require.NoError(t, err)

	t.Run("releases the seat and keeps the session", func(t *testing.T) {
		require.NoError(t, sm.DeselectSeat(context.Background(), "show-1", "u1", key("E1")))
		seat, err := st.Get(context.Background(), key("E1"))
		require.NoError(t, err)
		assert.Equal(t, model.SeatAvailable, seat.Status)

		sess, ok := sm.Session("show-1", "u1")
		require.True(t, ok)
		assert.Equal(t, []model.SeatKey{key("E2")}, sess.HeldSeats)
	})

	t.Run("deselecting a seat we do not hold fails", func(t *testing.T) {
		err := sm.DeselectSeat(context.Background(), "show-1", "u1", key("E1"))
		assert.ErrorIs(t, err, ErrNotHeldByOwner)
	})

	t.Run("last deselect tears the session down", func(t *testing.T) {
		require.NoError(t, sm.DeselectSeat(context.Background(), "show-1", "u1", key("E2")))
		_, ok := sm.Session("show-1", "u1")
		assert.False(t, ok)
	})
}

func TestReleaseAll(t *testing.T) {
	sm, st, _ := newTestSessions(t)
	for _, l := range []string{"F1", "F2", "F3"} {
		seedSeat(t, st, key(l), model.ClassStandard, 300)
	}
	_, err := sm.SelectSeats(context.Background(), "show-1", "u1",
		[]model.SeatKey{key("F1"), key("F2"), key("F3")})
	require.NoError(t, err)

	released, err := sm.ReleaseAll(context.Background(), "show-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, released)
	_, ok := sm.Session("show-1", "u1")
	assert.False(t, ok)

	// A second call is a harmless no-op.
	released, err = sm.ReleaseAll(context.Background(), "show-1", "u1")
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestComputeTotal(t *testing.T) {
	sm, st, _ := newTestSessions(t)
	seedSeat(t, st, key("A5"), model.ClassVIP, 500)
	seedSeat(t, st, key("H7"), model.ClassStandard, 300)

	total, err := sm.ComputeTotal(context.Background(), []model.SeatKey{key("A5"), key("H7")})
	require.NoError(t, err)
	assert.Equal(t, uint32(800), total, "running total carries no tax")

	_, err = sm.ComputeTotal(context.Background(), []model.SeatKey{key("Z9")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
