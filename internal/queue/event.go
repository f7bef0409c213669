// Package queue defines message payloads exchanged over the message
// broker and the background consumer that processes them.
package queue

// BookingConfirmedEvent is published when a checkout completes.  It
// carries enough information for downstream consumers to log, notify,
// or trigger analytics without reading the seat store.
type BookingConfirmedEvent struct {
	BookingID     string   `json:"booking_id"`
	OwnerID       string   `json:"owner_id"`
	ShowingID     string   `json:"showing_id"`
	SeatLabels    []string `json:"seats"`
	SubtotalCents uint32   `json:"subtotal_cents"`
	TaxCents      uint32   `json:"tax_cents"`
	TotalCents    uint32   `json:"total_cents"`
	PaymentRef    string   `json:"payment_ref"`
	ConfirmedAt   string   `json:"confirmed_at"`
}
