package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("CONFIRMATION_SECRET", "0123456789abcdef0123")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 8, cfg.GatewayMaxConcurrency)
	assert.Equal(t, 720*time.Hour, cfg.ConfirmationTTL)
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.False(t, cfg.CloudWatchEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 3, cfg.LowStockThreshold)
	assert.Equal(t, 20, cfg.RateLimitPerMinute)
}

func TestLoadConfig_MissingSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIRMATION_SECRET", "short")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIRMATION_SECRET")
}

func TestLoadConfig_PostgresRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_USER", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_*")
}

func TestLoadConfig_RateLimitMustBePositive(t *testing.T) {
	for _, key := range []string{"RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_BURST"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "0")

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
