// Package store defines the durable seat store consumed by the
// reservation core, along with its in-memory and MySQL-backed
// implementations.  The store is the single source of truth for seat
// state; every transition goes through a compare-and-swap on the seat's
// version so that concurrent writers can never clobber each other.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cinepass/seat-reservation/internal/model"
)

// ErrNotFound is returned when no seat record exists for the requested
// key.  Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("seat not found")

// ErrVersionConflict is returned by ConditionalWrite when the expected
// version no longer matches the stored record, meaning another writer
// mutated the seat between the caller's read and write.  Callers must
// re-read and retry; the conflict is expected under contention and is
// never a system fault.
var ErrVersionConflict = errors.New("seat version conflict")

// Write describes one conditional seat update: the record is replaced
// with Seat only if the stored version still equals ExpectedVersion.
// On success the store bumps the version by one.
type Write struct {
	Key             model.SeatKey
	ExpectedVersion uint64
	Seat            model.Seat
}

// PartialFailureError reports the keys that failed a BatchWrite.  The
// batch is not transactional across keys; callers must inspect Failed
// and decide how to proceed.  Checkout treats a partial failure after
// payment as a fatal inconsistency.
type PartialFailureError struct {
	Failed []model.SeatKey
}

func (e *PartialFailureError) Error() string {
	labels := make([]string, 0, len(e.Failed))
	for _, k := range e.Failed {
		labels = append(labels, k.String())
	}
	return fmt.Sprintf("batch write failed for seats [%s]", strings.Join(labels, ", "))
}

// Event is a seat change notification delivered to subscribers.  It
// carries the full record after the write so consumers never need a
// follow-up read.
type Event struct {
	Seat model.Seat `json:"seat"`
}

// SeatStore is the persistence contract for seat records.  Get and the
// List methods are idempotent reads; ConditionalWrite and BatchWrite
// are the only mutation paths and both enforce version CAS.  Subscribe
// streams change events for a showing until the context is cancelled;
// it exists for live UI refresh and is not required for correctness.
type SeatStore interface {
	Get(ctx context.Context, key model.SeatKey) (*model.Seat, error)
	ConditionalWrite(ctx context.Context, w Write) (newVersion uint64, err error)
	BatchWrite(ctx context.Context, writes []Write) error
	ListByShowing(ctx context.Context, showingID string) ([]model.Seat, error)
	ListByStatus(ctx context.Context, status model.SeatStatus) ([]model.Seat, error)
	Subscribe(ctx context.Context, showingID string) (<-chan Event, error)
}
