package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/cinepass/seat-reservation/internal/config"
	"github.com/cinepass/seat-reservation/internal/database"
	"github.com/cinepass/seat-reservation/internal/handler"
	"github.com/cinepass/seat-reservation/internal/model"
	"github.com/cinepass/seat-reservation/internal/payment"
	"github.com/cinepass/seat-reservation/internal/queue"
	"github.com/cinepass/seat-reservation/internal/reservation"
	"github.com/cinepass/seat-reservation/internal/router"
	queuepub "github.com/cinepass/seat-reservation/internal/service"
	"github.com/cinepass/seat-reservation/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and seat streaming degrade")
	}

	// The seat store implementation is chosen once here; the core never
	// branches on it again.
	var seatStore store.SeatStore
	switch cfg.StoreDriver {
	case "memory":
		seatStore = store.NewMemoryStore()
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		seatStore = store.NewMySQLStore(db, rdb)
	default:
		log.Fatalf("unknown SEAT_STORE_DRIVER: %q", cfg.StoreDriver)
	}

	machine := reservation.NewStateMachine(seatStore, cfg.HoldTTL)
	sessions := reservation.NewSessionManager(machine)
	coordinator := reservation.NewCoordinator(
		machine,
		sessions,
		payment.NewSimulated(cfg.PaymentDelay),
		cfg.PaymentTimeout,
		uint32(cfg.TaxPercent),
		publishBooking,
	)

	// Reclaim abandoned holds in the background for the lifetime of the
	// process.
	sweeper := reservation.NewSweeper(machine, sessions, cfg.SweepInterval)
	go sweeper.Run(context.Background())

	// Consume booking.confirmed messages into the booking log.
	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			log.Printf("booking consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.Register(e, cfg, rdb,
		&handler.SessionHandler{JWTSecret: cfg.JWTSecret, SessionTTLMin: cfg.SessionTTLMin},
		handler.NewSeatsHandler(seatStore),
		handler.NewReservationHandler(sessions, coordinator),
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s store=%s hold_ttl=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.HoldTTL)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// publishBooking forwards a completed booking to the message broker.
// Failures are already logged by the publisher and deliberately do not
// affect the finished checkout.
func publishBooking(ctx context.Context, b model.Booking) {
	labels := make([]string, 0, len(b.Seats))
	for _, k := range b.Seats {
		labels = append(labels, k.Label)
	}
	_ = queuepub.PublishBookingConfirmed(ctx, queue.BookingConfirmedEvent{
		BookingID:     b.ID,
		OwnerID:       b.OwnerID,
		ShowingID:     b.ShowingID,
		SeatLabels:    labels,
		SubtotalCents: b.SubtotalCents,
		TaxCents:      b.TaxCents,
		TotalCents:    b.TotalCents,
		PaymentRef:    b.PaymentRef,
		ConfirmedAt:   b.CreatedAt.Format(time.RFC3339),
	})
}
