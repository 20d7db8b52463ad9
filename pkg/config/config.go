// Package config loads process configuration from environment variables
// (optionally via a .env file), following the same getEnvOrDefault/Validate
// idiom as pkg/database.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived settings the orchestrator needs.
type Config struct {
	SubstrateAPIURL       string
	SubstrateServiceSecret string

	LLMProviderAPIKey string

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string

	TrialCap int

	CBFailureThreshold int
	CBCooldown         time.Duration
	CBHalfOpenProbes   int

	QueueWorkerCount int
	SSEIdleTimeout   time.Duration

	HTTPPort int

	TicketRetentionDays int
	CleanupInterval     time.Duration
}

// Load reads a .env file if present (ignored if missing) and then builds a
// Config from the environment, applying defaults and validating required fields.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		SubstrateAPIURL:        os.Getenv("SUBSTRATE_API_URL"),
		SubstrateServiceSecret: os.Getenv("SUBSTRATE_SERVICE_SECRET"),
		LLMProviderAPIKey:      firstNonEmpty(os.Getenv("LLM_PROVIDER_API_KEY"), os.Getenv("ANTHROPIC_API_KEY")),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		JWTIssuer:              getEnvOrDefault("JWT_ISSUER", ""),
		JWTAudience:            getEnvOrDefault("JWT_AUDIENCE", ""),
		TrialCap:               getEnvIntOrDefault("TRIAL_CAP", 10),
		CBFailureThreshold:     getEnvIntOrDefault("CB_FAILURE_THRESHOLD", 5),
		CBHalfOpenProbes:       getEnvIntOrDefault("CB_HALF_OPEN_PROBES", 3),
		QueueWorkerCount:       getEnvIntOrDefault("QUEUE_WORKER_COUNT", 4),
		HTTPPort:               getEnvIntOrDefault("HTTP_PORT", 8080),
		TicketRetentionDays:    getEnvIntOrDefault("TICKET_RETENTION_DAYS", 90),
	}

	cooldown, err := getEnvDurationOrDefault("CB_COOLDOWN_SECONDS", 60*time.Second, true)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CB_COOLDOWN_SECONDS: %w", err)
	}
	cfg.CBCooldown = cooldown

	idle, err := getEnvDurationOrDefault("SSE_IDLE_TIMEOUT", 10*time.Minute, false)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SSE_IDLE_TIMEOUT: %w", err)
	}
	cfg.SSEIdleTimeout = idle

	cleanupInterval, err := getEnvDurationOrDefault("CLEANUP_INTERVAL", 1*time.Hour, false)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CLEANUP_INTERVAL: %w", err)
	}
	cfg.CleanupInterval = cleanupInterval

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields are present.
func (c Config) Validate() error {
	if c.SubstrateAPIURL == "" {
		return fmt.Errorf("SUBSTRATE_API_URL is required")
	}
	if c.SubstrateServiceSecret == "" {
		return fmt.Errorf("SUBSTRATE_SERVICE_SECRET is required")
	}
	if c.LLMProviderAPIKey == "" {
		return fmt.Errorf("LLM_PROVIDER_API_KEY or ANTHROPIC_API_KEY is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TrialCap < 1 {
		return fmt.Errorf("TRIAL_CAP must be at least 1")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDurationOrDefault reads an integer-seconds env var (asSeconds=true)
// or a Go duration string, defaulting to def when unset.
func getEnvDurationOrDefault(key string, def time.Duration, asSeconds bool) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	if asSeconds {
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(val)
}
