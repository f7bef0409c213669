// Package payment models the external payment step of a checkout.  The
// real gateway is out of scope; the service only depends on the
// Processor contract and ships a simulated implementation with the
// fixed delay the product uses for demos.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrDeclined is returned when the (simulated) gateway rejects the
// charge outright.  Declines are final for the attempt: callers must
// not retry automatically, because an ambiguous outcome retried
// blindly can double-charge.
var ErrDeclined = errors.New("payment declined")

// Processor charges the caller-supplied payment proof for the given
// amount.  The call may be slow and must respect ctx; it returns a
// gateway reference on success.  Implementations are not retried
// automatically on ambiguous failure.
type Processor interface {
	Charge(ctx context.Context, proof string, amountCents uint32) (ref string, err error)
}

// Simulated is a Processor that waits a fixed delay and then succeeds,
// mirroring the product's demo gateway.  A non-nil Err makes every
// charge fail with it instead, which tests use to exercise decline
// paths.  A zero Delay completes immediately.
type Simulated struct {
	Delay time.Duration
	Err   error
}

// NewSimulated returns a simulated processor with the given delay.
func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{Delay: delay}
}

// Charge waits for the configured delay (or ctx cancellation) and
// returns a random reference.  Context expiry wins over the delay, so
// the checkout coordinator's payment timeout is honored.
func (p *Simulated) Charge(ctx context.Context, proof string, amountCents uint32) (string, error) {
	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if p.Err != nil {
		return "", p.Err
	}
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sim_" + hex.EncodeToString(buf), nil
}
