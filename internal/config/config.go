package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port             int
	LogLevel         string
	CORSOrigin       string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Storage
	DBDriver    string // sqlite | postgres
	DatabaseURL string
	ProfileID   string // empty: first profile by creation time

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxWriters     int

	// Events
	AMQPURL      string // empty: publishing disabled
	AMQPExchange string

	// Observability
	OTLPEndpoint string // empty: no exporter
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:             getEnvInt("PORT", 4000),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CORSOrigin:       getEnv("CORS_ORIGIN", "*"),
		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", "./data/ledger.db"),
		ProfileID:   getEnv("PROFILE_ID", ""),

		MaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("DB_INITIAL_BACKOFF", 50*time.Millisecond),
		MaxWriters:     getEnvInt("DB_MAX_WRITERS", 4),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("invalid DB_DRIVER '%s': must be one of [sqlite postgres]", c.DBDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL cannot be empty")
	}

	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("invalid DB_MAX_RETRIES %d: must not be negative", c.MaxRetries))
	}
	if c.MaxWriters < 1 {
		errs = append(errs, fmt.Sprintf("invalid DB_MAX_WRITERS %d: must be at least 1", c.MaxWriters))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
