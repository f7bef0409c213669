package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/store"
)

// StateMachine enforces the legal transitions for a single seat record:
//
//	AVAILABLE -> HELD   (TryHold)
//	HELD      -> AVAILABLE (Release, or expiry)
//	HELD      -> SOLD   (MarkSold; terminal)
//
// Every transition is a read followed by a conditional write keyed on
// the version observed during the read, so when two sessions race over
// one seat the store's compare-and-swap picks exactly one winner.  The
// state machine itself keeps no seat state between calls.
type StateMachine struct {
	store       store.SeatStore
	holdTimeout time.Duration
	now         func() time.Time // injectable for tests, defaults to UTC now
}

// NewStateMachine builds a StateMachine over the given store with the
// configured hold timeout.
func NewStateMachine(st store.SeatStore, holdTimeout time.Duration) *StateMachine {
	return &StateMachine{
		store:       st,
		holdTimeout: holdTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HoldTimeout reports the configured hold window.
func (m *StateMachine) HoldTimeout() time.Duration { return m.holdTimeout }

// TryHold attempts to claim the seat for ownerID.  It succeeds when the
// seat is AVAILABLE, or when it is already HELD by the same owner (an
// idempotent re-hold that refreshes HeldAt).  An expired hold by a
// different owner counts as AVAILABLE and is taken over directly.
//
// Failure modes: ErrAlreadyHeld when another owner has a live hold,
// ErrAlreadySold for sold seats, ErrConflict when a concurrent writer
// mutated the seat between our read and write, and store.ErrNotFound
// for unknown keys.  On ErrConflict the caller should re-invoke; each
// call re-reads the current record.
func (m *StateMachine) TryHold(ctx context.Context, key model.SeatKey, ownerID string) (*model.Seat, error) {
	seat, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	now := m.now()
	switch seat.Status {
	case model.SeatSold:
		return nil, ErrAlreadySold
	case model.SeatHeld:
		if seat.HolderID != ownerID && !seat.HoldExpired(now, m.holdTimeout) {
			return nil, ErrAlreadyHeld
		}
		// Same owner refreshing, or an expired hold being taken over.
	}

	next := *seat
	next.Status = model.SeatHeld
	next.HolderID = ownerID
	next.HeldAt = &now
	newVersion, err := m.store.ConditionalWrite(ctx, store.Write{
		Key:             key,
		ExpectedVersion: seat.Version,
		Seat:            next,
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, err
	}
	next.Version = newVersion
	return &next, nil
}

// Release returns a held seat to AVAILABLE.  It succeeds only while the
// seat is HELD by ownerID; anything else is ErrNotHeldByOwner.  The
// strict contract is deliberate: active sessions calling Release on a
// seat they do not hold indicates a bookkeeping bug that must surface.
func (m *StateMachine) Release(ctx context.Context, key model.SeatKey, ownerID string) error {
	seat, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if seat.Status != model.SeatHeld || seat.HolderID != ownerID {
		return ErrNotHeldByOwner
	}
	next := *seat
	next.Status = model.SeatAvailable
	next.HolderID = ""
	next.HeldAt = nil
	if _, err := m.store.ConditionalWrite(ctx, store.Write{
		Key:             key,
		ExpectedVersion: seat.Version,
		Seat:            next,
	}); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// MarkSold converts a live hold into the terminal SOLD state.  The hold
// must belong to ownerID and must not have outlived the hold timeout;
// a payment step that legitimately ran past the window gets
// ErrHoldExpired rather than a silently extended hold.
func (m *StateMachine) MarkSold(ctx context.Context, key model.SeatKey, ownerID string) (*model.Seat, error) {
	seat, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if seat.Status == model.SeatSold {
		return nil, ErrAlreadySold
	}
	if seat.Status != model.SeatHeld || seat.HolderID != ownerID {
		return nil, ErrNotHeldByOwner
	}
	now := m.now()
	if seat.HoldExpired(now, m.holdTimeout) {
		return nil, ErrHoldExpired
	}
	next := *seat
	next.Status = model.SeatSold
	next.HolderID = ""
	next.HeldAt = nil
	next.SoldTo = ownerID
	next.SoldAt = &now
	newVersion, err := m.store.ConditionalWrite(ctx, store.Write{
		Key:             key,
		ExpectedVersion: seat.Version,
		Seat:            next,
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, err
	}
	next.Version = newVersion
	return &next, nil
}

// saleWrite builds the conditional write that MarkSold would perform,
// for use by checkout's batch path.  It validates the same
// preconditions and returns the typed errors of MarkSold without
// writing anything.
func (m *StateMachine) saleWrite(seat *model.Seat, ownerID string, now time.Time) (store.Write, error) {
	if seat.Status == model.SeatSold {
		return store.Write{}, ErrAlreadySold
	}
	if seat.Status != model.SeatHeld || seat.HolderID != ownerID {
		return store.Write{}, ErrNotHeldByOwner
	}
	if seat.HoldExpired(now, m.holdTimeout) {
		return store.Write{}, ErrHoldExpired
	}
	next := *seat
	next.Status = model.SeatSold
	next.HolderID = ""
	next.HeldAt = nil
	next.SoldTo = ownerID
	next.SoldAt = &now
	return store.Write{Key: seat.Key, ExpectedVersion: seat.Version, Seat: next}, nil
}

// releaseExpired reclaims a stale hold on behalf of the expiry sweeper.
// Unlike Release it swallows every race: a seat that was meanwhile
// sold, re-held, or manually released is simply left alone.  The
// conditional write still guards the transition, so a sale that lands
// between our read and write can never be reverted.
func (m *StateMachine) releaseExpired(ctx context.Context, seat *model.Seat) (bool, error) {
	if seat.Status != model.SeatHeld || !seat.HoldExpired(m.now(), m.holdTimeout) {
		return false, nil
	}
	next := *seat
	next.Status = model.SeatAvailable
	next.HolderID = ""
	next.HeldAt = nil
	_, err := m.store.ConditionalWrite(ctx, store.Write{
		Key:             seat.Key,
		ExpectedVersion: seat.Version,
		Seat:            next,
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
			return false, nil // lost a benign race with a sale or manual release
		}
		return false, err
	}
	return true, nil
}
