// Package catalog provisions seat records for showings.  One record is
// created per (showing, seat label) pair when a showing goes on sale;
// records are never deleted while the showing exists.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/store"
)

// Layout describes the seat grid of an auditorium and the pricing per
// seat class.  The default matches the product's standard hall: rows A
// through H, ten seats per row, with the front two rows sold as VIP.
type Layout struct {
	Rows          []string
	SeatsPerRow   int
	VIPRows       map[string]bool
	StandardCents uint32
	VIPCents      uint32
}

// DefaultLayout returns the standard auditorium layout: 8 rows of 10
// with rows A and B as VIP, priced 300 standard / 500 VIP.
func DefaultLayout() Layout {
	return Layout{
		Rows:          []string{"A", "B", "C", "D", "E", "F", "G", "H"},
		SeatsPerRow:   10,
		VIPRows:       map[string]bool{"A": true, "B": true},
		StandardCents: 300,
		VIPCents:      500,
	}
}

// ProvisionShowing creates the full seat grid for a showing.  Creation
// goes through the store's create-if-absent conditional write, so a
// re-run (or a concurrent provisioner) skips seats that already exist
// instead of resetting their state.  It returns the number of seats
// newly created.
func ProvisionShowing(ctx context.Context, st store.SeatStore, showingID string, layout Layout) (int, error) {
	if showingID == "" {
		return 0, errors.New("showing id is required")
	}
	created := 0
	for _, row := range layout.Rows {
		for n := 1; n <= layout.SeatsPerRow; n++ {
			class := model.ClassStandard
			price := layout.StandardCents
			if layout.VIPRows[row] {
				class = model.ClassVIP
				price = layout.VIPCents
			}
			key := model.SeatKey{ShowingID: showingID, Label: fmt.Sprintf("%s%d", row, n)}
			_, err := st.ConditionalWrite(ctx, store.Write{
				Key:             key,
				ExpectedVersion: 0, // create only
				Seat: model.Seat{
					Key:        key,
					Status:     model.SeatAvailable,
					Class:      class,
					PriceCents: price,
				},
			})
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrVersionConflict):
				// already provisioned, leave the live record alone
			default:
				return created, err
			}
		}
	}
	return created, nil
}
