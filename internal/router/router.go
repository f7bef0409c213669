// Package router wires the HTTP routes of the reservation API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/cinepass/seat-reservation/internal/config"
	"github.com/cinepass/seat-reservation/internal/handler"
	"github.com/cinepass/seat-reservation/internal/middleware"
)

// Register mounts every route on the provided Echo instance.  Seat maps
// and their change stream are public so guests can browse availability;
// everything that claims or converts seats requires a session token.
// The Redis-backed rate limiter wraps the mutating routes and may be
// nil-backed, in which case it passes through.
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client, sessions *handler.SessionHandler, seats *handler.SeatsHandler, reservations *handler.ReservationHandler) {
	e.GET("/healthz", handler.Health)

	// Session issuance is open: a guest picks up a token before
	// selecting seats.
	e.POST("/v1/sessions", sessions.CreateSession)

	// Public seat map endpoints.
	e.GET("/v1/showings/:id/seats", seats.GetSeats)
	e.GET("/v1/showings/:id/seats/stream", seats.StreamSeats)
	e.POST("/v1/showings/:id/seats", seats.ProvisionSeats)

	// Reservation flow: session token required, rate limited.
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	g := e.Group("/v1", middleware.SessionAuth(cfg.JWTSecret), limiter)
	g.POST("/showings/:id/hold", reservations.HoldSeats)
	g.DELETE("/showings/:id/hold", reservations.ReleaseHolds)
	g.DELETE("/showings/:id/hold/:label", reservations.DeselectSeat)
	g.POST("/showings/:id/checkout", reservations.CheckoutSeats)
	g.GET("/my-bookings", reservations.ListBookings)
}
