package model

import "time"

// ReservationSession is the session manager's local bookkeeping for one
// owner's selections on one showing.  It is advisory: the authoritative
// claim on every seat lives in the seat store, and checkout always
// reconciles HeldSeats against store state before trusting it.
type ReservationSession struct {
	OwnerID   string    `json:"owner_id"`
	ShowingID string    `json:"showing_id"`
	HeldSeats []SeatKey `json:"held_seats"` // insertion order preserved
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // min over held seats' heldAt + hold timeout
}
