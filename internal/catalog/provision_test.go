package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/store"
)

func TestProvisionShowing(t *testing.T) {
	st := store.NewMemoryStore()
	created, err := ProvisionShowing(context.Background(), st, "show-1", DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, 80, created)

	seats, err := st.ListByShowing(context.Background(), "show-1")
	require.NoError(t, err)
	require.Len(t, seats, 80)

	vip, err := st.Get(context.Background(), model.SeatKey{ShowingID: "show-1", Label: "B10"})
	require.NoError(t, err)
	assert.Equal(t, model.ClassVIP, vip.Class)
	assert.Equal(t, uint32(500), vip.PriceCents)
	assert.Equal(t, model.SeatAvailable, vip.Status)

	std, err := st.Get(context.Background(), model.SeatKey{ShowingID: "show-1", Label: "C5"})
	require.NoError(t, err)
	assert.Equal(t, model.ClassStandard, std.Class)
	assert.Equal(t, uint32(300), std.PriceCents)
}

func TestProvisionShowingIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := ProvisionShowing(context.Background(), st, "show-1", DefaultLayout())
	require.NoError(t, err)

	// Mark a seat held; a re-provision must not reset it.
	key := model.SeatKey{ShowingID: "show-1", Label: "D4"}
	seat, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	held := *seat
	held.Status = model.SeatHeld
	held.HolderID = "u1"
	_, err = st.ConditionalWrite(context.Background(), store.Write{Key: key, ExpectedVersion: seat.Version, Seat: held})
	require.NoError(t, err)

	created, err := ProvisionShowing(context.Background(), st, "show-1", DefaultLayout())
	require.NoError(t, err)
	assert.Zero(t, created)

	got, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, got.Status)
	assert.Equal(t, "u1", got.HolderID)
}

func TestProvisionShowingRequiresID(t *testing.T) {
	_, err := ProvisionShowing(context.Background(), store.NewMemoryStore(), "", DefaultLayout())
	assert.Error(t, err)
}
