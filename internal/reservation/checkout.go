package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/payment"
	"github.com/cinepass/seat-reservation/internal/store"
)

// ValidationError reports the seats that blocked a checkout during the
// pre-payment validation pass.  It carries the first underlying cause
// (ErrHoldExpired or ErrNotHeldByOwner) and every offending key, so the
// UI can tell the user exactly which selections lapsed.
type ValidationError struct {
	Offending []model.SeatKey
	Err       error
}

func (e *ValidationError) Error() string {
	return (&SelectionError{Blocked: e.Offending, Err: e.Err}).Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BookingPublisher receives completed bookings for downstream receipt
// and notification collaborators.  Publish failures do not fail the
// checkout; the booking is already final.
type BookingPublisher func(ctx context.Context, b model.Booking)

// Coordinator converts a session's held seats into a sold booking.  It
// validates holds against the authoritative store, runs the opaque
// payment step under its own timeout, and performs the held-to-sold
// transition as a conditional batch write.  A partial failure after a
// successful payment is surfaced as an InconsistencyError and never
// papered over: the money has moved and only reconciliation can fix
// the seats.
type Coordinator struct {
	machine        *StateMachine
	sessions       *SessionManager
	payments       payment.Processor
	paymentTimeout time.Duration
	taxPercent     uint32
	publish        BookingPublisher // optional
	now            func() time.Time

	mu       sync.Mutex
	bookings map[string][]model.Booking // ownerID -> completed bookings
}

// NewCoordinator wires a checkout coordinator.  taxPercent is the fixed
// sales-tax percentage applied once when the booking is built; publish
// may be nil.
func NewCoordinator(machine *StateMachine, sessions *SessionManager, payments payment.Processor, paymentTimeout time.Duration, taxPercent uint32, publish BookingPublisher) *Coordinator {
	return &Coordinator{
		machine:        machine,
		sessions:       sessions,
		payments:       payments,
		paymentTimeout: paymentTimeout,
		taxPercent:     taxPercent,
		publish:        publish,
		now:            func() time.Time { return time.Now().UTC() },
		bookings:       make(map[string][]model.Booking),
	}
}

// Checkout finalizes the owner's holds on a showing.  When keys is
// empty the session's current holds are used.  The steps are:
//
//  1. Reconcile every key against the store: each seat must be HELD by
//     ownerID and unexpired.  Offenders fail the call fast with a
//     ValidationError before any money moves.
//  2. Charge the payment proof under the configured timeout.  A failed
//     or timed-out charge leaves the holds untouched (they still lapse
//     on their own schedule).  The charge is never retried here.
//  3. Transition every seat to SOLD through conditional writes.  Any
//     seat that fails this step after the successful charge makes the
//     whole result an InconsistencyError carrying the booking.
//  4. Record and publish the completed booking; the session's
//     bookkeeping for those seats is dropped.
func (c *Coordinator) Checkout(ctx context.Context, ownerID, showingID string, keys []model.SeatKey, proof string) (*model.Booking, error) {
	keys = dedupeKeys(keys)
	if len(keys) == 0 {
		if sess, ok := c.sessions.Session(showingID, ownerID); ok {
			keys = sess.HeldSeats
		}
	}
	if len(keys) == 0 {
		return nil, &ValidationError{Err: ErrNotHeldByOwner}
	}

	// Step 1: reconcile against the store.  The session manager's set
	// is advisory; only the store's records count.
	now := c.now()
	seats := make([]model.Seat, 0, len(keys))
	var offending []model.SeatKey
	var firstErr error
	for _, key := range keys {
		seat, err := c.machine.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		switch {
		case seat.Status == model.SeatHeld && seat.HolderID == ownerID && !seat.HoldExpired(now, c.machine.holdTimeout):
			seats = append(seats, *seat)
		case seat.Status == model.SeatHeld && seat.HolderID == ownerID:
			offending = append(offending, key)
			if firstErr == nil {
				firstErr = ErrHoldExpired
			}
		default:
			offending = append(offending, key)
			if firstErr == nil {
				firstErr = ErrNotHeldByOwner
			}
		}
	}
	if len(offending) > 0 {
		return nil, &ValidationError{Offending: offending, Err: firstErr}
	}

	var subtotal uint32
	for _, seat := range seats {
		subtotal += seat.PriceCents
	}
	tax := roundedTax(subtotal, c.taxPercent)

	// Step 2: the payment call runs to completion even if the client
	// goes away; releasing mid-charge would split-brain "user gave up"
	// against "payment actually succeeded".
	payCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.paymentTimeout)
	defer cancel()
	ref, err := c.payments.Charge(payCtx, proof, subtotal+tax)
	if err != nil {
		return nil, err
	}

	booking := model.Booking{
		ID:            newBookingID(),
		OwnerID:       ownerID,
		ShowingID:     showingID,
		Seats:         keys,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		PaymentStatus: model.PaymentCompleted,
		PaymentRef:    ref,
		CreatedAt:     c.now(),
	}

	// Step 3: held -> sold as a conditional batch.  Seats are re-read
	// so the CAS tokens are current; any failure past this point is
	// fatal because the charge already succeeded.
	saleAt := c.now()
	var writes []store.Write
	var inconsistent []model.SeatKey
	for _, key := range keys {
		seat, err := c.machine.store.Get(ctx, key)
		if err != nil {
			inconsistent = append(inconsistent, key)
			continue
		}
		w, err := c.machine.saleWrite(seat, ownerID, saleAt)
		if err != nil {
			inconsistent = append(inconsistent, key)
			continue
		}
		writes = append(writes, w)
	}
	if len(writes) > 0 {
		if err := c.machine.store.BatchWrite(ctx, writes); err != nil {
			var partial *store.PartialFailureError
			if errors.As(err, &partial) {
				inconsistent = append(inconsistent, partial.Failed...)
			} else {
				inconsistent = append(inconsistent, keysOf(writes)...)
			}
		}
	}
	c.sessions.forgetSeats(ownerID, showingID, keys)

	if len(inconsistent) > 0 {
		incErr := &InconsistencyError{Booking: &booking, FailedKeys: inconsistent}
		// Alert-worthy: money moved but seats did not. Logged here in
		// addition to being returned, so the condition is visible even
		// if a caller mishandles the error.
		log.Printf("checkout: FATAL INCONSISTENCY payment_ref=%s owner=%s: %v", ref, ownerID, incErr)
		return nil, incErr
	}

	c.mu.Lock()
	c.bookings[ownerID] = append(c.bookings[ownerID], booking)
	c.mu.Unlock()

	if c.publish != nil {
		c.publish(ctx, booking)
	}
	return &booking, nil
}

// Bookings returns the completed bookings recorded for an owner, newest
// first.
func (c *Coordinator) Bookings(ownerID string) []model.Booking {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.bookings[ownerID]
	out := make([]model.Booking, len(list))
	for i, b := range list {
		out[len(list)-1-i] = b
	}
	return out
}

// roundedTax applies the fixed tax percentage with half-up rounding,
// exactly once.
func roundedTax(subtotal, percent uint32) uint32 {
	return (subtotal*percent + 50) / 100
}

func keysOf(writes []store.Write) []model.SeatKey {
	out := make([]model.SeatKey, len(writes))
	for i, w := range writes {
		out[i] = w.Key
	}
	return out
}

func newBookingID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a timestamp so the booking still has an ID.
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(buf)
}
