package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/payment"
	"github.com/cinepass/seat-reservation/internal/reservation"
	"github.com/cinepass/seat-reservation/internal/store"
)

// ReservationHandler drives the hold/release/checkout flow on behalf of
// session owners.  All methods assume the session middleware has run;
// they return 401 when no owner can be extracted from the context.
type ReservationHandler struct {
	Sessions *reservation.SessionManager
	Checkout *reservation.Coordinator
}

// NewReservationHandler constructs a ReservationHandler with the
// provided core components.  Both dependencies must be non-nil.
func NewReservationHandler(sessions *reservation.SessionManager, checkout *reservation.Coordinator) *ReservationHandler {
	if sessions == nil || checkout == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Sessions: sessions, Checkout: checkout}
}

// HoldSeats handles POST /v1/showings/:id/hold.  The body carries a
// "seats" array of labels; the whole batch is held atomically for the
// session or not at all.  On success it returns the held seats and the
// session expiry; a blocked batch returns 409 with the offending
// labels.
func (h *ReservationHandler) HoldSeats(c echo.Context) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showingID := c.Param("id")
	if showingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}
	var body struct {
		Seats []string `json:"seats"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
	}
	keys := make([]model.SeatKey, 0, len(body.Seats))
	for _, label := range body.Seats {
		keys = append(keys, model.SeatKey{ShowingID: showingID, Label: label})
	}

	held, err := h.Sessions.SelectSeats(c.Request().Context(), showingID, ownerID, keys)
	if err != nil {
		var sel *reservation.SelectionError
		if errors.As(err, &sel) {
			status := http.StatusConflict
			if errors.Is(sel.Err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			return c.JSON(status, echo.Map{
				"error":   "some seats are unavailable",
				"blocked": labelsOf(sel.Blocked),
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to hold seats"})
	}

	sess, _ := h.Sessions.Session(showingID, ownerID)
	resp := echo.Map{"seats": held}
	if sess != nil {
		resp["expires_at"] = sess.ExpiresAt.Format(time.RFC3339)
	}
	return c.JSON(http.StatusCreated, resp)
}

// DeselectSeat handles DELETE /v1/showings/:id/hold/:label.  Releasing
// a seat the session does not hold is a 409, not a silent success, so
// client-side bookkeeping bugs surface immediately.
func (h *ReservationHandler) DeselectSeat(c echo.Context) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showingID := c.Param("id")
	label := c.Param("label")
	if showingID == "" || label == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id or seat label"})
	}
	key := model.SeatKey{ShowingID: showingID, Label: label}
	err = h.Sessions.DeselectSeat(c.Request().Context(), showingID, ownerID, key)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
	case errors.Is(err, reservation.ErrNotHeldByOwner):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat not held by this session"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release seat"})
	}
}

// ReleaseHolds handles DELETE /v1/showings/:id/hold.  It releases every
// seat the session holds on the showing and reports how many were
// returned to the pool.
func (h *ReservationHandler) ReleaseHolds(c echo.Context) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showingID := c.Param("id")
	if showingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}
	released, err := h.Sessions.ReleaseAll(c.Request().Context(), showingID, ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release holds"})
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// CheckoutSeats handles POST /v1/showings/:id/checkout.  The body may
// name specific held seats; when omitted the session's full selection
// is checked out.  Validation failures (lapsed or foreign holds) are
// 409s naming the seats; a payment decline is 402; a fatal
// inconsistency after payment is a 500 carrying the booking so the
// client can reference it with support.
func (h *ReservationHandler) CheckoutSeats(c echo.Context) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showingID := c.Param("id")
	if showingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}
	var body struct {
		Seats        []string `json:"seats"`
		PaymentProof string   `json:"payment_proof"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	keys := make([]model.SeatKey, 0, len(body.Seats))
	for _, label := range body.Seats {
		keys = append(keys, model.SeatKey{ShowingID: showingID, Label: label})
	}

	booking, err := h.Checkout.Checkout(c.Request().Context(), ownerID, showingID, keys, body.PaymentProof)
	if err != nil {
		var val *reservation.ValidationError
		if errors.As(err, &val) {
			msg := "seats not held by this session"
			if errors.Is(val.Err, reservation.ErrHoldExpired) {
				msg = "seat holds expired, please reselect"
			}
			return c.JSON(http.StatusConflict, echo.Map{
				"error":     msg,
				"offending": labelsOf(val.Offending),
			})
		}
		var inc *reservation.InconsistencyError
		if errors.As(err, &inc) {
			// Payment went through but the sale did not complete for
			// every seat; hand the booking back for the support trail.
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error":   "checkout requires manual reconciliation",
				"booking": inc.Booking,
				"seats":   labelsOf(inc.FailedKeys),
			})
		}
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
		}
		// Only an actual gateway outcome is a 402; a store fault during
		// validation is an internal error, not a decline.
		if errors.Is(err, payment.ErrDeclined) || errors.Is(err, context.DeadlineExceeded) {
			return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment failed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking": booking})
}

// ListBookings handles GET /v1/my-bookings.  It returns the session
// owner's completed bookings, newest first.
func (h *ReservationHandler) ListBookings(c echo.Context) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.Checkout.Bookings(ownerID)})
}

func labelsOf(keys []model.SeatKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Label)
	}
	return out
}
