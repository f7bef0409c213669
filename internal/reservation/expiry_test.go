package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinepass/seat-reservation/internal/model"
)

func TestSweepReclaimsOnlyExpiredHolds(t *testing.T) {
	sm, st, clock := newTestSessions(t)
	sweeper := NewSweeper(sm.machine, sm, time.Second)
	for _, l := range []string{"G1", "G2", "G3"} {
		seedSeat(t, st, key(l), model.ClassStandard, 300)
	}

	// G1 is held now, G2 two minutes later; only G1 will be stale when
	// we sweep just past its deadline.
	_, err := sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("G1")})
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = sm.SelectSeats(context.Background(), "show-1", "u2", []model.SeatKey{key("G2")})
	require.NoError(t, err)

	clock.Advance(3*time.Minute + time.Second)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g1, err := st.Get(context.Background(), key("G1"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, g1.Status)
	assert.Empty(t, g1.HolderID)

	g2, err := st.Get(context.Background(), key("G2"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, g2.Status, "an unexpired hold must survive the sweep")
	assert.Equal(t, "u2", g2.HolderID)

	_, ok := sm.Session("show-1", "u1")
	assert.False(t, ok, "reclaim drops the empty session")
	_, ok = sm.Session("show-1", "u2")
	assert.True(t, ok)
}

func TestSweepBoundary(t *testing.T) {
	sm, st, clock := newTestSessions(t)
	sweeper := NewSweeper(sm.machine, sm, time.Second)
	seedSeat(t, st, key("G5"), model.ClassStandard, 300)

	_, err := sm.SelectSeats(context.Background(), "show-1", "u1", []model.SeatKey{key("G5")})
	require.NoError(t, err)

	// One second before the deadline: nothing to reclaim.
	clock.Advance(5*time.Minute - time.Second)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// One second past it: reclaimed.
	clock.Advance(2 * time.Second)
	n, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepNeverTouchesSoldSeats(t *testing.T) {
	sm, st, clock := newTestSessions(t)
	sweeper := NewSweeper(sm.machine, sm, time.Second)
	seedSeat(t, st, key("G7"), model.ClassVIP, 500)

	_, err := sm.machine.TryHold(context.Background(), key("G7"), "u1")
	require.NoError(t, err)
	clock.Advance(4 * time.Minute)
	_, err = sm.machine.MarkSold(context.Background(), key("G7"), "u1")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	seat, err := st.Get(context.Background(), key("G7"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, seat.Status)
	assert.Equal(t, "u1", seat.SoldTo)
}

func TestSweepWithoutSessionManager(t *testing.T) {
	m, st, clock := newTestMachine(t, 5*time.Minute)
	sweeper := NewSweeper(m, nil, time.Second)
	seedSeat(t, st, key("G9"), model.ClassStandard, 300)

	_, err := m.TryHold(context.Background(), key("G9"), "u1")
	require.NoError(t, err)
	clock.Advance(6 * time.Minute)

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
