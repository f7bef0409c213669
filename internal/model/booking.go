package model

import "time"

// PaymentStatus tracks the payment outcome attached to a booking.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Booking is the result of a successful checkout: the ordered seats,
// the amounts charged and the payment outcome.  A booking with
// PaymentCompleted is immutable and is handed to the receipt and
// notification collaborators as-is.
type Booking struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	ShowingID     string        `json:"showing_id"`
	Seats         []SeatKey     `json:"seats"` // ordered as selected
	SubtotalCents uint32        `json:"subtotal_cents"`
	TaxCents      uint32        `json:"tax_cents"`
	TotalCents    uint32        `json:"total_cents"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
