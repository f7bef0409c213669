package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cinepass/seat-reservation/internal/catalog"
	"github.com/cinepass/seat-reservation/internal/store"
)

// SeatsHandler exposes the seat map of a showing: provisioning, the
// current grid, and a live change stream.  The map endpoints are public
// so guests can preview availability before opening a session.
type SeatsHandler struct {
	Store store.SeatStore
}

// NewSeatsHandler constructs a SeatsHandler; the store must be non-nil.
func NewSeatsHandler(st store.SeatStore) *SeatsHandler {
	if st == nil {
		panic("nil store passed to NewSeatsHandler")
	}
	return &SeatsHandler{Store: st}
}

// ProvisionSeats handles POST /v1/showings/:id/seats.  It creates the
// standard seat grid for the showing.  Provisioning is idempotent:
// re-running it never resets seats that already exist, so the endpoint
// is safe to call from catalog import jobs.
func (h *SeatsHandler) ProvisionSeats(c echo.Context) error {
	showingID := c.Param("id")
	if showingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}
	created, err := catalog.ProvisionShowing(c.Request().Context(), h.Store, showingID, catalog.DefaultLayout())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to provision seats"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": created})
}

// GetSeats handles GET /v1/showings/:id/seats.  It returns the full
// seat map with statuses, ordered row by row.
func (h *SeatsHandler) GetSeats(c echo.Context) error {
	showingID := c.Param("id")
	if showingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}
	seats, err := h.Store.ListByShowing(c.Request().Context(), showingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seats"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": seats})
}

// StreamSeats handles GET /v1/showings/:id/seats/stream.  It serves the
// store's change feed as server-sent events so the seat grid in the
// browser refreshes without polling.  The stream is presentation aid
// only; missing an event never affects reservation correctness.
func (h *SeatsHandler) StreamSeats(c echo.Context) error {
	showingID := c.Param("id")
	if showingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}
	ctx := c.Request().Context()
	events, err := h.Store.Subscribe(ctx, showingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to subscribe"})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			body, err := json.Marshal(ev.Seat)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", body); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
