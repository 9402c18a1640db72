// Package config loads server configuration from environment variables.
//
// Optional variables:
//   - SIEVE_DB_PATH: SQLite database file (default "sieve.db").
//   - SIEVE_HTTP_ADDR: listen address for the HTTP server (default ":8080").
//   - SIEVE_LOG_LEVEL: debug, info, warn or error (default "info").
//   - SIEVE_RESET_DB: drop and recreate the tables on startup
//     (default "false").
//   - SIEVE_SHUTDOWN_TIMEOUT: grace period for in-flight requests on
//     shutdown (default "10s", must be > 0 if set).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asaidimu/go-sieve/logging"
)

const (
	defaultDBPath          = "sieve.db"
	defaultHTTPAddr        = ":8080"
	defaultLogLevel        = "info"
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the runtime configuration for the sieve server.
type Config struct {
	DBPath          string
	HTTPAddr        string
	LogLevel        string
	ResetDB         bool
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// appropriate. It returns an error if a value fails validation.
func Load() (Config, error) {
	logLevel := strings.ToLower(envOrDefault("SIEVE_LOG_LEVEL", defaultLogLevel))
	if _, err := logging.ParseLevel(logLevel); err != nil {
		return Config{}, fmt.Errorf("parse SIEVE_LOG_LEVEL: %w", err)
	}

	resetDB := false
	if value := strings.TrimSpace(os.Getenv("SIEVE_RESET_DB")); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse SIEVE_RESET_DB: %w", err)
		}
		resetDB = parsed
	}

	shutdownTimeout := defaultShutdownTimeout
	if value := strings.TrimSpace(os.Getenv("SIEVE_SHUTDOWN_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse SIEVE_SHUTDOWN_TIMEOUT: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("SIEVE_SHUTDOWN_TIMEOUT must be > 0")
		}
		shutdownTimeout = parsed
	}

	return Config{
		DBPath:          envOrDefault("SIEVE_DB_PATH", defaultDBPath),
		HTTPAddr:        envOrDefault("SIEVE_HTTP_ADDR", defaultHTTPAddr),
		LogLevel:        logLevel,
		ResetDB:         resetDB,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
