package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUBSTRATE_API_URL", "http://substrate.internal")
	t.Setenv("SUBSTRATE_SERVICE_SECRET", "secret")
	t.Setenv("LLM_PROVIDER_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadAppliesDefaultsWhenOptionalVarsUnset(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.TrialCap)
	assert.Equal(t, 5, cfg.CBFailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CBCooldown)
	assert.Equal(t, 10*time.Minute, cfg.SSEIdleTimeout)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 90, cfg.TicketRetentionDays)
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLoadFallsBackToAnthropicAPIKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LLM_PROVIDER_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-anthropic", cfg.LLMProviderAPIKey)
}

func TestLoadParsesDurationStringOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CLEANUP_INTERVAL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.CleanupInterval)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SSE_IDLE_TIMEOUT", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	t.Setenv("SUBSTRATE_API_URL", "")
	t.Setenv("SUBSTRATE_SERVICE_SECRET", "")
	t.Setenv("LLM_PROVIDER_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsTrialCapBelowOne(t *testing.T) {
	cfg := Config{
		SubstrateAPIURL:        "x",
		SubstrateServiceSecret: "x",
		LLMProviderAPIKey:      "x",
		JWTSecret:              "x",
		TrialCap:               0,
	}
	err := cfg.Validate()
	require.Error(t, err)
}
