package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// DatabasePath is the SQLite database file path.
	DatabasePath string
	// MasterSecret signs and verifies JWT bearer tokens.
	MasterSecret string
	Debug        bool
	LogLevel     string
	// AllowedOrigins configures CORS for the REST API.
	AllowedOrigins []string

	// IdempotencyRetention bounds how long client operation tokens are
	// remembered. A retry arriving after eviction may be applied twice.
	IdempotencyRetention time.Duration
	// SubscriberQueueDepth bounds the per-subscriber outbound queue. A
	// subscriber that falls this far behind is dropped and must resync.
	SubscriberQueueDepth int

	// RateLimitRPS and RateLimitBurst bound per-actor mutating REST calls.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr                 *string
	DatabasePath         *string
	MasterSecret         *string
	Debug                *bool
	IdempotencyRetention *time.Duration
	SubscriberQueueDepth *int
}

// Load loads server configuration from the environment (and an optional
// .env file) and applies any explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	port := 3010
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./quill.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	masterSecret := os.Getenv("QUILL_MASTER_SECRET")
	if overrides.MasterSecret != nil {
		masterSecret = *overrides.MasterSecret
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("QUILL_MASTER_SECRET environment variable is required")
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	retention := 10 * time.Minute
	if raw := os.Getenv("IDEMPOTENCY_RETENTION"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			retention = d
		}
	}
	if overrides.IdempotencyRetention != nil {
		retention = *overrides.IdempotencyRetention
	}

	queueDepth := 256
	if raw := os.Getenv("SUBSCRIBER_QUEUE_DEPTH"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			queueDepth = n
		}
	}
	if overrides.SubscriberQueueDepth != nil {
		queueDepth = *overrides.SubscriberQueueDepth
	}

	rps := 25.0
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			rps = v
		}
	}
	burst := 50
	if raw := os.Getenv("RATE_LIMIT_BURST"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			burst = n
		}
	}

	return &Config{
		Addr:                 addr,
		DatabasePath:         dbPath,
		MasterSecret:         masterSecret,
		Debug:                debug,
		LogLevel:             os.Getenv("LOG_LEVEL"),
		AllowedOrigins:       []string{"*"}, // For self-hosted, allow all origins
		IdempotencyRetention: retention,
		SubscriberQueueDepth: queueDepth,
		RateLimitRPS:         rps,
		RateLimitBurst:       burst,
	}, nil
}
