package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CUSTODY_ACCOUNT", "GCUSTODY")
	t.Setenv("ADMIN_OWNER", "GOWNER")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 7090, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, StoreDriverMemory, cfg.DB.Driver)
	assert.Equal(t, "GOWNER", cfg.Platform.FeeCollector)
	assert.Equal(t, 50, cfg.Platform.MaxApplications)
	assert.Equal(t, 5*time.Second, cfg.Platform.LedgerUnit)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Platform.LedgerGenesis)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PLATFORM_FEE_BP", "250")
	t.Setenv("WHITELISTED_TOKENS", "USDC, EURC,,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ADMIN_FEE_COLLECTOR", "GFEES")
	t.Setenv("MARKETPLACE_MAX_APPLICATIONS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(250), cfg.Platform.FeeBP)
	assert.Equal(t, []string{"USDC", "EURC"}, cfg.Platform.WhitelistedTokens)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "GFEES", cfg.Platform.FeeCollector)
	assert.Zero(t, cfg.Platform.MaxApplications)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"postgres without dsn", "STORE_DRIVER", "postgres"},
		{"unknown driver", "STORE_DRIVER", "sqlite"},
		{"no secret", "JWT_ACCESS_SECRET", ""},
		{"no custody", "CUSTODY_ACCOUNT", ""},
		{"no owner", "ADMIN_OWNER", ""},
		{"fee too high", "PLATFORM_FEE_BP", "1001"},
		{"bad genesis", "LEDGER_GENESIS", "yesterday"},
		{"bad ttl", "IDEMPOTENCY_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
