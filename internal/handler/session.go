// Package handler contains the HTTP handlers for the reservation API.
// Handlers are thin glue: they parse requests, call into the
// reservation core, and translate its typed errors to HTTP statuses.
// Nothing here holds seat state of its own.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cinepass/seat-reservation/internal/utils"
)

// SessionHandler issues anonymous session tokens.  A token is the
// opaque owner identity every hold and checkout is scoped to; the UI
// requests one before the user starts picking seats.
type SessionHandler struct {
	JWTSecret     string
	SessionTTLMin int
}

// CreateSession handles POST /v1/sessions.  It mints a fresh owner ID
// wrapped in a signed token and returns both with the expiry.
func (h *SessionHandler) CreateSession(c echo.Context) error {
	tok, err := utils.NewSessionToken(h.JWTSecret, h.SessionTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue session token"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"token":      tok.Token,
		"owner_id":   tok.OwnerID,
		"expires_at": tok.Exp.Format(time.RFC3339),
	})
}

// getOwnerID extracts the owner_id injected by the session middleware.
func getOwnerID(c echo.Context) (string, error) {
	if v, ok := c.Get("owner_id").(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("missing owner_id in context")
}
