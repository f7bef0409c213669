package reservation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/store"
)

// conflictRetries bounds how often a single TryHold is re-attempted
// after losing a version race.  Each retry re-reads the seat, so a
// seat that was genuinely taken surfaces as ErrAlreadyHeld instead.
const conflictRetries = 3

// SessionManager tracks which seats each session currently holds and
// coordinates multi-seat selections.  The map it keeps is advisory
// bookkeeping only: the seat store remains the single source of truth,
// and checkout reconciles against it before trusting anything here.
// There is at most one session per (owner, showing) pair; the session
// disappears when its last hold is released, expires or is sold.
type SessionManager struct {
	machine *StateMachine

	mu       sync.Mutex
	sessions map[sessionKey]*sessionState
	now      func() time.Time
}

type sessionKey struct {
	ownerID   string
	showingID string
}

// sessionState is the internal mutable form of a session.  heldAt
// tracks per-seat hold times so ExpiresAt can be recomputed after
// idempotent re-holds refresh individual seats.
type sessionState struct {
	createdAt time.Time
	order     []model.SeatKey
	heldAt    map[model.SeatKey]time.Time
}

// NewSessionManager builds a SessionManager on top of the given state
// machine.
func NewSessionManager(machine *StateMachine) *SessionManager {
	return &SessionManager{
		machine:  machine,
		sessions: make(map[sessionKey]*sessionState),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SelectSeats attempts to hold every seat in keys, in order, for
// ownerID.  The operation is all-or-nothing from the caller's point of
// view: when any hold fails, every hold acquired earlier in this call
// is released again and a SelectionError names the blocking seat.
// Duplicate keys are collapsed; holding a seat the session already
// holds is an idempotent refresh.  On success all keys are registered
// under the session and the returned seats reflect the new holds.
func (s *SessionManager) SelectSeats(ctx context.Context, showingID, ownerID string, keys []model.SeatKey) ([]model.Seat, error) {
	unique := dedupeKeys(keys)
	if len(unique) == 0 {
		return nil, errors.New("no seats requested")
	}

	// Seats the session held before this call are refreshes, not fresh
	// acquisitions; a rollback must leave them held (pre-call state).
	preHeld := make(map[model.SeatKey]struct{})
	if sess, ok := s.Session(showingID, ownerID); ok {
		for _, k := range sess.HeldSeats {
			preHeld[k] = struct{}{}
		}
	}

	acquired := make([]model.Seat, 0, len(unique))
	for _, key := range unique {
		seat, err := s.tryHoldWithRetry(ctx, key, ownerID)
		if err != nil {
			var fresh []model.Seat
			for _, a := range acquired {
				if _, was := preHeld[a.Key]; !was {
					fresh = append(fresh, a)
				}
			}
			s.rollback(ctx, ownerID, fresh)
			return nil, &SelectionError{Blocked: []model.SeatKey{key}, Err: err}
		}
		acquired = append(acquired, *seat)
	}

	s.mu.Lock()
	sk := sessionKey{ownerID: ownerID, showingID: showingID}
	state, ok := s.sessions[sk]
	if !ok {
		state = &sessionState{
			createdAt: s.now(),
			heldAt:    make(map[model.SeatKey]time.Time),
		}
		s.sessions[sk] = state
	}
	for _, seat := range acquired {
		if _, seen := state.heldAt[seat.Key]; !seen {
			state.order = append(state.order, seat.Key)
		}
		state.heldAt[seat.Key] = *seat.HeldAt
	}
	s.mu.Unlock()

	return acquired, nil
}

func (s *SessionManager) tryHoldWithRetry(ctx context.Context, key model.SeatKey, ownerID string) (*model.Seat, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		seat, err := s.machine.TryHold(ctx, key, ownerID)
		if err == nil {
			return seat, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// rollback releases the fresh holds acquired earlier in a failed
// SelectSeats call.  Release failures here are races that already took
// the seat away, so they are logged and skipped.
func (s *SessionManager) rollback(ctx context.Context, ownerID string, acquired []model.Seat) {
	for _, seat := range acquired {
		if err := s.machine.Release(ctx, seat.Key, ownerID); err != nil &&
			!errors.Is(err, ErrNotHeldByOwner) && !errors.Is(err, ErrConflict) {
			log.Printf("session-manager: rollback release of %s failed: %v", seat.Key, err)
		}
	}
}

// DeselectSeat releases a single held seat and removes it from the
// session's bookkeeping.  The release keeps the state machine's strict
// contract: deselecting a seat the session does not hold returns
// ErrNotHeldByOwner.  The local entry is dropped in that case as well,
// because the store has already decided the seat is not ours.  When the
// last seat leaves the session, the session itself is torn down.
func (s *SessionManager) DeselectSeat(ctx context.Context, showingID, ownerID string, key model.SeatKey) error {
	err := s.machine.Release(ctx, key, ownerID)
	if err == nil || errors.Is(err, ErrNotHeldByOwner) {
		s.forgetSeats(ownerID, showingID, []model.SeatKey{key})
	}
	return err
}

// ReleaseAll releases every seat the session holds on a showing and
// tears the session down.  Used when a user abandons the selection
// outright.  Individual release races are swallowed; the call reports
// how many seats were actually returned to the pool.
func (s *SessionManager) ReleaseAll(ctx context.Context, showingID, ownerID string) (int, error) {
	sess, ok := s.Session(showingID, ownerID)
	if !ok {
		return 0, nil
	}
	released := 0
	for _, key := range sess.HeldSeats {
		err := s.machine.Release(ctx, key, ownerID)
		switch {
		case err == nil:
			released++
		case errors.Is(err, ErrNotHeldByOwner), errors.Is(err, ErrConflict):
			// already expired, taken over or sold; nothing to undo
		default:
			return released, err
		}
	}
	s.forgetSeats(ownerID, showingID, sess.HeldSeats)
	return released, nil
}

// Session returns a snapshot of the owner's session on a showing.  The
// ExpiresAt field is the earliest heldAt plus the hold timeout across
// the session's seats, i.e. the moment the first hold lapses.
func (s *SessionManager) Session(showingID, ownerID string) (*model.ReservationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionKey{ownerID: ownerID, showingID: showingID}]
	if !ok {
		return nil, false
	}
	sess := &model.ReservationSession{
		OwnerID:   ownerID,
		ShowingID: showingID,
		HeldSeats: append([]model.SeatKey(nil), state.order...),
		CreatedAt: state.createdAt,
	}
	for _, key := range state.order {
		deadline := state.heldAt[key].Add(s.machine.HoldTimeout())
		if sess.ExpiresAt.IsZero() || deadline.Before(sess.ExpiresAt) {
			sess.ExpiresAt = deadline
		}
	}
	return sess, true
}

// ComputeTotal sums the class-derived prices of the given seats from
// the authoritative store records.  Tax is deliberately not applied
// here: it is added exactly once, at presentation time, when the
// checkout coordinator builds the booking.
func (s *SessionManager) ComputeTotal(ctx context.Context, keys []model.SeatKey) (uint32, error) {
	var total uint32
	for _, key := range keys {
		seat, err := s.machine.store.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		total += seat.PriceCents
	}
	return total, nil
}

// forgetSeats drops seats from a session's bookkeeping and removes the
// session entirely once empty.  No persisted artifact remains after
// teardown.
func (s *SessionManager) forgetSeats(ownerID, showingID string, keys []model.SeatKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk := sessionKey{ownerID: ownerID, showingID: showingID}
	state, ok := s.sessions[sk]
	if !ok {
		return
	}
	for _, key := range keys {
		if _, held := state.heldAt[key]; !held {
			continue
		}
		delete(state.heldAt, key)
		for i, k := range state.order {
			if k == key {
				state.order = append(state.order[:i], state.order[i+1:]...)
				break
			}
		}
	}
	if len(state.order) == 0 {
		delete(s.sessions, sk)
	}
}

// Store exposes the underlying seat store for read-only collaborators
// such as HTTP handlers listing seat maps.
func (s *SessionManager) Store() store.SeatStore { return s.machine.store }

func dedupeKeys(keys []model.SeatKey) []model.SeatKey {
	seen := make(map[model.SeatKey]struct{}, len(keys))
	out := make([]model.SeatKey, 0, len(keys))
	for _, k := range keys {
		if k.Label == "" || k.ShowingID == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
