package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cinepass/seat-reservation/internal/model"
)

// MemoryStore is an in-process SeatStore used by tests and by
// single-node deployments that do not need durability.  It implements
// the same version CAS contract as the MySQL store, so the reservation
// core behaves identically against either.  Selecting between the two
// happens once at startup via configuration, never through runtime
// flags in the business logic.
type MemoryStore struct {
	mu    sync.Mutex
	seats map[model.SeatKey]model.Seat
	subs  map[string][]chan Event // showingID -> subscriber channels
}

// NewMemoryStore returns an empty in-memory seat store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seats: make(map[model.SeatKey]model.Seat),
		subs:  make(map[string][]chan Event),
	}
}

// Get returns a copy of the seat record for key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key model.SeatKey) (*model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.seats[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &seat, nil
}

// ConditionalWrite replaces the record for w.Key if the stored version
// still equals w.ExpectedVersion, bumping the version by one.  An
// ExpectedVersion of zero creates the record and fails with
// ErrVersionConflict when one already exists, which gives provisioning
// create-if-absent semantics through the same CAS path.
func (s *MemoryStore) ConditionalWrite(ctx context.Context, w Write) (uint64, error) {
	s.mu.Lock()
	cur, ok := s.seats[w.Key]
	if !ok && w.ExpectedVersion != 0 {
		s.mu.Unlock()
		return 0, ErrNotFound
	}
	if ok && cur.Version != w.ExpectedVersion {
		s.mu.Unlock()
		return 0, ErrVersionConflict
	}
	seat := w.Seat
	seat.Key = w.Key
	seat.Version = w.ExpectedVersion + 1
	s.seats[w.Key] = seat
	// Fan out under the lock: the sends are non-blocking so writers
	// never stall, and Subscribe closes channels under the same lock,
	// so a send can never race a close.
	for _, ch := range s.subs[w.Key.ShowingID] {
		select {
		case ch <- Event{Seat: seat}:
		default: // slow subscriber, drop rather than block writers
		}
	}
	s.mu.Unlock()
	return seat.Version, nil
}

// BatchWrite applies every write independently and reports the keys
// that failed in a PartialFailureError.  Writes that succeed are not
// rolled back when siblings fail.
func (s *MemoryStore) BatchWrite(ctx context.Context, writes []Write) error {
	var failed []model.SeatKey
	for _, w := range writes {
		if _, err := s.ConditionalWrite(ctx, w); err != nil {
			failed = append(failed, w.Key)
		}
	}
	if len(failed) > 0 {
		return &PartialFailureError{Failed: failed}
	}
	return nil
}

// ListByShowing returns all seats of a showing ordered by label.
func (s *MemoryStore) ListByShowing(ctx context.Context, showingID string) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Seat
	for k, seat := range s.seats {
		if k.ShowingID == showingID {
			out = append(out, seat)
		}
	}
	sortSeats(out)
	return out, nil
}

// ListByStatus returns all seats currently in the given status.  The
// expiry sweeper uses this to find HELD seats across showings.
func (s *MemoryStore) ListByStatus(ctx context.Context, status model.SeatStatus) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Seat
	for _, seat := range s.seats {
		if seat.Status == status {
			out = append(out, seat)
		}
	}
	sortSeats(out)
	return out, nil
}

// Subscribe registers a change-event channel for a showing.  The
// channel is buffered and closed when ctx is cancelled.  Events may be
// dropped for subscribers that fall behind; the stream is a UI refresh
// aid, not a correctness mechanism.
func (s *MemoryStore) Subscribe(ctx context.Context, showingID string) (<-chan Event, error) {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subs[showingID] = append(s.subs[showingID], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		chans := s.subs[showingID]
		for i, c := range chans {
			if c == ch {
				s.subs[showingID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		// Removal and close stay inside the critical section so no
		// ConditionalWrite fan-out can send on a closed channel.
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func sortSeats(seats []model.Seat) {
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Key.ShowingID != seats[j].Key.ShowingID {
			return seats[i].Key.ShowingID < seats[j].Key.ShowingID
		}
		a, b := seats[i].Key.Label, seats[j].Key.Label
		if len(a) != len(b) {
			return len(a) < len(b) // A9 sorts before A10
		}
		return a < b
	})
}
