// Package config loads the environment-variable configuration surface
// spec.md §6 and SPEC_FULL.md §6 describe, failing fast with a
// ConfigurationError on anything malformed — grounded on the os.Getenv
// style the teacher's cmd/control main.go uses, centralised into one
// validated struct instead of scattered inline lookups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	lferrors "github.com/lineflow/scheduler/internal/errors"
)

// Config is the full environment-variable surface for cmd/control.
type Config struct {
	DatabaseURL string
	RedisAddr   string
	RedisPassword string

	LeaderLockTTL  time.Duration
	IdempotencyTTL time.Duration

	GatewayTimeout    time.Duration
	GatewayMaxRetries int

	FactoryEventListenPort int
	FactoryEventRateLimit  float64

	ShiftStart time.Duration // offset from midnight UTC
	ShiftEnd   time.Duration

	AIModelName string
	AIAPIKey    string
	AITimeout   time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string

	TelegramBotToken    string
	TelegramWebhookBase string

	MetricsAddr string
}

// Load reads and validates the configuration from the process environment.
func Load() (Config, error) {
	var c Config
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	if c.DatabaseURL == "" {
		return Config{}, &lferrors.ConfigurationError{Field: "DATABASE_URL", Reason: "must be set"}
	}

	c.RedisAddr = envDefault("REDIS_ADDR", "localhost:6379")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")

	var err error
	if c.LeaderLockTTL, err = envDuration("LEADER_LOCK_TTL", 15*time.Second); err != nil {
		return Config{}, err
	}
	if c.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if c.GatewayTimeout, err = envDuration("GATEWAY_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if c.GatewayMaxRetries, err = envInt("GATEWAY_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if c.GatewayMaxRetries < 1 {
		return Config{}, &lferrors.ConfigurationError{Field: "GATEWAY_MAX_RETRIES", Reason: "must be >= 1"}
	}

	if c.FactoryEventListenPort, err = envInt("FACTORY_EVENT_PORT", 8080); err != nil {
		return Config{}, err
	}
	if c.FactoryEventRateLimit, err = envFloat("FACTORY_EVENT_RATE_LIMIT", 1.0); err != nil {
		return Config{}, err
	}

	shiftStartHour, err := envInt("SHIFT_START_HOUR", 8)
	if err != nil {
		return Config{}, err
	}
	shiftEndHour, err := envInt("SHIFT_END_HOUR", 16)
	if err != nil {
		return Config{}, err
	}
	if shiftStartHour < 0 || shiftStartHour > 23 || shiftEndHour <= shiftStartHour || shiftEndHour > 24 {
		return Config{}, &lferrors.ConfigurationError{Field: "SHIFT_START_HOUR/SHIFT_END_HOUR", Reason: "must describe a non-empty same-day window"}
	}
	c.ShiftStart = time.Duration(shiftStartHour) * time.Hour
	c.ShiftEnd = time.Duration(shiftEndHour) * time.Hour

	c.AIModelName = envDefault("AI_MODEL_NAME", "gemini-2.0-flash")
	c.AIAPIKey = os.Getenv("AI_API_KEY")
	if c.AITimeout, err = envDuration("AI_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}

	c.SMTPHost = os.Getenv("SMTP_HOST")
	c.SMTPPort = envDefault("SMTP_PORT", "587")
	c.SMTPUser = os.Getenv("SMTP_USER")
	c.SMTPPassword = os.Getenv("SMTP_PASSWORD")

	c.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.TelegramWebhookBase = envDefault("TELEGRAM_WEBHOOK_BASE", "https://api.telegram.org")

	c.MetricsAddr = envDefault("METRICS_ADDR", ":9090")

	return c, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &lferrors.ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid duration %q: %v", v, err)}
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &lferrors.ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid integer %q: %v", v, err)}
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &lferrors.ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid number %q: %v", v, err)}
	}
	return f, nil
}
