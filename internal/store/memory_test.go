package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinepass/seat-reservation/internal/model"
)

func testSeat(label string) model.Seat {
	return model.Seat{
		Key:        model.SeatKey{ShowingID: "show-1", Label: label},
		Status:     model.SeatAvailable,
		Class:      model.ClassStandard,
		PriceCents: 300,
	}
}

func TestConditionalWrite(t *testing.T) {
	st := NewMemoryStore()
	seat := testSeat("A1")

	t.Run("create with expected version zero", func(t *testing.T) {
		v, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, Seat: seat})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v)
	})

	t.Run("create again conflicts", func(t *testing.T) {
		_, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, Seat: seat})
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("update with matching version", func(t *testing.T) {
		held := seat
		held.Status = model.SeatHeld
		held.HolderID = "u1"
		v, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, ExpectedVersion: 1, Seat: held})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), v)

		got, err := st.Get(context.Background(), seat.Key)
		require.NoError(t, err)
		assert.Equal(t, model.SeatHeld, got.Status)
		assert.Equal(t, uint64(2), got.Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, ExpectedVersion: 1, Seat: seat})
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("updating a missing seat", func(t *testing.T) {
		missing := model.SeatKey{ShowingID: "show-1", Label: "Z9"}
		_, err := st.ConditionalWrite(context.Background(), Write{Key: missing, ExpectedVersion: 3, Seat: seat})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConditionalWriteRace(t *testing.T) {
	st := NewMemoryStore()
	seat := testSeat("A1")
	_, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, Seat: seat})
	require.NoError(t, err)

	// All racers carry the same token; exactly one write may land.
	const racers = 32
	var wg sync.WaitGroup
	var wins int32
	var mu sync.Mutex
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := seat
			w.Status = model.SeatHeld
			if _, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, ExpectedVersion: 1, Seat: w}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	got, err := st.Get(context.Background(), seat.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
}

func TestBatchWrite(t *testing.T) {
	st := NewMemoryStore()
	a := testSeat("A1")
	b := testSeat("A2")
	_, err := st.ConditionalWrite(context.Background(), Write{Key: a.Key, Seat: a})
	require.NoError(t, err)
	_, err = st.ConditionalWrite(context.Background(), Write{Key: b.Key, Seat: b})
	require.NoError(t, err)

	// A2 carries a stale token; A1 still lands and A2 is reported.
	err = st.BatchWrite(context.Background(), []Write{
		{Key: a.Key, ExpectedVersion: 1, Seat: a},
		{Key: b.Key, ExpectedVersion: 7, Seat: b},
	})
	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []model.SeatKey{b.Key}, partial.Failed)

	got, err := st.Get(context.Background(), a.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version, "sibling failure must not roll back a landed write")
}

func TestListOrdering(t *testing.T) {
	st := NewMemoryStore()
	for _, label := range []string{"A10", "A2", "A1", "B1"} {
		s := testSeat(label)
		_, err := st.ConditionalWrite(context.Background(), Write{Key: s.Key, Seat: s})
		require.NoError(t, err)
	}
	other := testSeat("A1")
	other.Key.ShowingID = "show-2"
	_, err := st.ConditionalWrite(context.Background(), Write{Key: other.Key, Seat: other})
	require.NoError(t, err)

	seats, err := st.ListByShowing(context.Background(), "show-1")
	require.NoError(t, err)
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = s.Key.Label
	}
	assert.Equal(t, []string{"A1", "A2", "B1", "A10"}, labels)

	held, err := st.ListByStatus(context.Background(), model.SeatHeld)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestSubscribeChurnDuringWrites(t *testing.T) {
	st := NewMemoryStore()
	seat := testSeat("A1")
	_, err := st.ConditionalWrite(context.Background(), Write{Key: seat.Key, Seat: seat})
	require.NoError(t, err)

	stop := make(chan struct{})
	panics := make(chan interface{}, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panics <- r
				}
			}()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur, err := st.Get(context.Background(), seat.Key)
				if err != nil {
					continue
				}
				// Conflicts are expected; the point is that the write's
				// fan-out survives subscriber teardown.
				_, _ = st.ConditionalWrite(context.Background(), Write{
					Key: seat.Key, ExpectedVersion: cur.Version, Seat: *cur,
				})
			}
		}()
	}

	// Subscribers come and go while the writers run; a fan-out landing
	// on a channel mid-teardown must never panic the writer.
	for i := 0; i < 500; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, err := st.Subscribe(ctx, seat.Key.ShowingID)
		require.NoError(t, err)
		cancel()
	}
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	select {
	case r := <-panics:
		t.Fatalf("writer panicked: %v", r)
	default:
	}
}

func TestSubscribe(t *testing.T) {
	st := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := st.Subscribe(ctx, "show-1")
	require.NoError(t, err)

	seat := testSeat("A1")
	_, err = st.ConditionalWrite(context.Background(), Write{Key: seat.Key, Seat: seat})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, seat.Key, ev.Seat.Key)
		assert.Equal(t, uint64(1), ev.Seat.Version)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	// Writes to other showings are not delivered here.
	other := testSeat("A1")
	other.Key.ShowingID = "show-2"
	_, err = st.ConditionalWrite(context.Background(), Write{Key: other.Key, Seat: other})
	require.NoError(t, err)

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event for %s", ev.Seat.Key)
		}
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	// Channel closes once the subscription is torn down.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}
