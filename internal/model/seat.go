package model

import (
	"fmt"
	"time"
)

// SeatStatus enumerates the lifecycle states of a seat record.  A seat
// starts AVAILABLE, moves to HELD while a session is selecting it and
// ends in the terminal SOLD state once a checkout completes.  HELD
// seats fall back to AVAILABLE on release or expiry; nothing ever
// leaves SOLD.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE" // no claim on the seat
	SeatHeld      SeatStatus = "HELD"      // temporarily claimed by one owner
	SeatSold      SeatStatus = "SOLD"      // permanently sold, terminal
)

// SeatClass determines the price of a seat.  The grid generator marks
// the front rows as VIP and everything else as STANDARD.
type SeatClass string

const (
	ClassStandard SeatClass = "STANDARD"
	ClassVIP      SeatClass = "VIP"
)

// SeatKey is the composite identity of a seat record: one record exists
// per seat label per showing.  Keys are immutable once created.
type SeatKey struct {
	ShowingID string `json:"showing_id"`
	Label     string `json:"label"`
}

// String renders the key in the showing:label form used in log lines
// and error messages.
func (k SeatKey) String() string { return fmt.Sprintf("%s:%s", k.ShowingID, k.Label) }

// Seat is the durable per-seat record owned by the seat store.
//
// Invariants enforced by the state machine:
//   - status HELD implies HolderID and HeldAt are set.
//   - status AVAILABLE or SOLD implies HolderID and HeldAt are unset;
//     sold seats instead carry the immutable SoldTo/SoldAt audit pair.
//   - at most one active holder exists at any time, guaranteed by the
//     store's compare-and-swap on Version.
type Seat struct {
	Key        SeatKey    `json:"key"`
	Status     SeatStatus `json:"status"`
	Class      SeatClass  `json:"class"`
	PriceCents uint32     `json:"price_cents"`
	HolderID   string     `json:"holder_id,omitempty"` // owner of an active hold
	HeldAt     *time.Time `json:"held_at,omitempty"`   // when the active hold was taken
	SoldTo     string     `json:"sold_to,omitempty"`   // audit: owner the seat was sold to
	SoldAt     *time.Time `json:"sold_at,omitempty"`   // audit: when the sale completed
	Version    uint64     `json:"version"`             // optimistic concurrency token
}

// HoldExpired reports whether the seat carries a hold that is past the
// given timeout at the supplied instant.  Seats that are not HELD are
// never considered expired.
func (s *Seat) HoldExpired(now time.Time, timeout time.Duration) bool {
	if s.Status != SeatHeld || s.HeldAt == nil {
		return false
	}
	return now.Sub(*s.HeldAt) > timeout
}
