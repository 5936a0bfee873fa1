// Package config handles service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Backends
	DatabaseURL   string // PostgreSQL URL, required
	RedisAddr     string
	NATSURL       string
	NATSName      string
	MetricsAddr   string
	RunMigrations bool
	OTelEndpoint  string // OTLP gRPC collector; empty disables tracing

	// Moderation
	HistoryWindow   int           // recent messages fed to the classifier
	PlatformTimeout time.Duration // per platform command
	VerifyTTL       time.Duration // lifetime of a verification challenge
}

// Defaults.
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultRedisAddr       = "localhost:6379"
	DefaultNATSURL         = "nats://localhost:4222"
	DefaultNATSName        = "automod"
	DefaultMetricsAddr     = ":9102"
	DefaultHistoryWindow   = 5
	DefaultPlatformTimeout = 5 * time.Second
	DefaultVerifyTTL       = 10 * time.Minute
)

// Load reads configuration from environment variables.
// It loads a .env file first if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       getEnv("REDIS_ADDR", DefaultRedisAddr),
		NATSURL:         getEnv("NATS_URL", DefaultNATSURL),
		NATSName:        getEnv("NATS_NAME", DefaultNATSName),
		MetricsAddr:     getEnv("METRICS_ADDR", DefaultMetricsAddr),
		RunMigrations:   getEnvBool("RUN_MIGRATIONS", true),
		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HistoryWindow:   getEnvInt("HISTORY_WINDOW", DefaultHistoryWindow),
		PlatformTimeout: getEnvDuration("PLATFORM_TIMEOUT", DefaultPlatformTimeout),
		VerifyTTL:       getEnvDuration("VERIFY_TTL", DefaultVerifyTTL),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("HISTORY_WINDOW must not be negative"))
	}
	if c.PlatformTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PLATFORM_TIMEOUT must be positive"))
	}
	if c.VerifyTTL <= 0 {
		errs = append(errs, fmt.Errorf("VERIFY_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
