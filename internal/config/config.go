// Package config loads application configuration from environment
// variables.  Everything that governs reservation behavior — the hold
// timeout, the sweep interval, tax, payment simulation — is explicit
// configuration here rather than a constant buried in business logic.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field maps to an
// environment variable; required variables are enforced by must() and
// missing values abort startup.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	JWTSecret      string        // secret used to sign session tokens
	SessionTTLMin  int           // session token time-to-live in minutes
	StoreDriver    string        // seat store backend: "memory" or "mysql"
	DBUser         string        // database username (mysql driver only)
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	HoldTTL        time.Duration // how long a seat hold lives before expiry
	SweepInterval  time.Duration // how often the expiry sweeper scans
	TaxPercent     int           // fixed sales-tax percentage, applied once at booking
	PaymentDelay   time.Duration // simulated payment gateway latency
	PaymentTimeout time.Duration // upper bound on the payment step
}

// Load reads configuration from the environment.  Database settings are
// only required when the mysql store driver is selected, so a memory
// backed instance starts with nothing but APP_ENV, APP_PORT and
// JWT_SECRET set.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		JWTSecret:      must("JWT_SECRET"),
		SessionTTLMin:  envInt("SESSION_TTL_MIN", 120),
		StoreDriver:    envStr("SEAT_STORE_DRIVER", "memory"),
		HoldTTL:        envDur("HOLD_TTL", 5*time.Minute),
		SweepInterval:  envDur("SWEEP_INTERVAL", 30*time.Second),
		TaxPercent:     envInt("TAX_PERCENT", 13),
		PaymentDelay:   envDur("PAYMENT_DELAY", 10*time.Second),
		PaymentTimeout: envDur("PAYMENT_TIMEOUT", 30*time.Second),
	}
	if cfg.StoreDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	if cfg.TaxPercent < 0 {
		log.Printf("config: negative TAX_PERCENT %d, clamping to 0", cfg.TaxPercent)
		cfg.TaxPercent = 0
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and
// exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", k, v)
	}
	return n
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", k, v)
	}
	return dur
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return d
}
