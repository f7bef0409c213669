package reservation

import (
	"context"
	"log"
	"time"

	"github.com/cinepass/seat-reservation/internal/model"
)

// Sweeper reclaims holds that were never released or sold within the
// hold timeout, so an abandoned browser tab cannot lock a seat
// indefinitely.  It runs a single periodic scan over HELD seats; each
// reclaim goes through the state machine's guarded release, with the
// recorded holder as the expected owner, so a sale or re-hold that
// races ahead of the sweep is never reverted.  Sold seats are never
// touched and sweeping a seat that meanwhile became available is a
// silent no-op.
type Sweeper struct {
	machine  *StateMachine
	sessions *SessionManager // may be nil; bookkeeping cleanup only
	interval time.Duration
}

// NewSweeper builds a Sweeper that scans every interval.  The session
// manager is optional: when present, reclaimed seats are also dropped
// from their sessions' advisory bookkeeping.
func NewSweeper(machine *StateMachine, sessions *SessionManager, interval time.Duration) *Sweeper {
	return &Sweeper{machine: machine, sessions: sessions, interval: interval}
}

// Run sweeps until ctx is cancelled.  Scan errors are logged and the
// loop continues; a transient store fault must not stop reclamation.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Printf("hold-sweeper: sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("hold-sweeper: reclaimed %d expired hold(s)", n)
			}
		}
	}
}

// SweepOnce scans all held seats and reclaims the ones whose hold is
// past the timeout.  It returns the number of seats reclaimed.  Seats
// that lose their reclaim race (sold or re-held between read and
// write) are skipped without error.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	held, err := s.machine.store.ListByStatus(ctx, model.SeatHeld)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for i := range held {
		seat := held[i]
		holder := seat.HolderID
		ok, err := s.machine.releaseExpired(ctx, &seat)
		if err != nil {
			return reclaimed, err
		}
		if ok {
			reclaimed++
			if s.sessions != nil {
				s.sessions.forgetSeats(holder, seat.Key.ShowingID, []model.SeatKey{seat.Key})
			}
		}
	}
	return reclaimed, nil
}
