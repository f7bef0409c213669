// Package reservation implements the seat reservation core: the
// per-seat state machine, the session manager for multi-seat holds, the
// hold expiry scheduler and the checkout coordinator.  All state lives
// in the seat store; this package only arbitrates transitions.
package reservation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cinepass/seat-reservation/internal/model"
)

// Contention errors.  These are expected under concurrent use and are
// recoverable by re-reading and retrying or by telling the user the
// seat is no longer available.  They are never logged as system faults.
var (
	// ErrAlreadyHeld means the seat is held by a different owner.
	ErrAlreadyHeld = errors.New("seat already held by another session")
	// ErrAlreadySold means the seat is in the terminal SOLD state.
	ErrAlreadySold = errors.New("seat already sold")
	// ErrConflict means the version token went stale between read and
	// write; the caller must re-read and retry.
	ErrConflict = errors.New("seat modified concurrently")
)

// Ownership errors.  Recoverable; surfaced to the user as "your
// selection expired, please reselect".
var (
	// ErrNotHeldByOwner means the seat is not held by the calling
	// session.  Release returns it rather than silently succeeding so
	// that bookkeeping bugs in callers cannot go unnoticed.
	ErrNotHeldByOwner = errors.New("seat not held by this session")
	// ErrHoldExpired means the hold outlived the configured timeout and
	// can no longer be converted to a sale without re-holding.
	ErrHoldExpired = errors.New("seat hold expired")
)

// SelectionError annotates a failed multi-seat selection with the seats
// that blocked it.  The wrapped error is the first failure encountered;
// every hold acquired earlier in the same call has been rolled back.
type SelectionError struct {
	Blocked []model.SeatKey
	Err     error
}

func (e *SelectionError) Error() string {
	labels := make([]string, 0, len(e.Blocked))
	for _, k := range e.Blocked {
		labels = append(labels, k.Label)
	}
	return fmt.Sprintf("selection failed on seats [%s]: %v", strings.Join(labels, ", "), e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// InconsistencyError reports seats whose hold-to-sold transition failed
// after payment had already succeeded.  This is not recoverable inside
// the service: it requires manual reconciliation and must be alerted
// on, distinctly from ordinary validation failures.  The booking and
// payment reference are preserved for the reconciliation trail.
type InconsistencyError struct {
	Booking    *model.Booking
	FailedKeys []model.SeatKey
}

func (e *InconsistencyError) Error() string {
	labels := make([]string, 0, len(e.FailedKeys))
	for _, k := range e.FailedKeys {
		labels = append(labels, k.String())
	}
	return fmt.Sprintf("payment succeeded but sale failed for seats [%s]; manual reconciliation required",
		strings.Join(labels, ", "))
}
