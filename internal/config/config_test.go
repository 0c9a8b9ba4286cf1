package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://indexer:pw@localhost:5432/potlock")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NEAR_RPC_URL", "http://localhost:8545")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:8545"}, cfg.RPCEndpoints)
	assert.Equal(t, 50, cfg.RPCRPS)
	assert.Equal(t, 100, cfg.RPCBurst)
	assert.Equal(t, "donation-usd-jobs", cfg.DonationTopic)
	assert.Equal(t, "payout-usd-jobs", cfg.PayoutTopic)
	assert.Equal(t, "price-workers", cfg.ConsumerGroup)
	assert.Equal(t, 8, cfg.StreamPrefetch)
	assert.Equal(t, time.Second, cfg.StreamPollInterval)
	assert.Equal(t, time.Second, cfg.BackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, 24*time.Hour, cfg.PriceCacheWindow)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HTTPEnabled)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Zero(t, cfg.StartHeight)
	assert.False(t, cfg.StartFromLatest)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NEAR_RPC_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL")
}

func TestLoadSplitsRPCEndpoints(t *testing.T) {
	setRequired(t)
	t.Setenv("NEAR_RPC_URL", "http://a:8545, http://b:8545 ,,http://c:8545")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:8545", "http://b:8545", "http://c:8545"}, cfg.RPCEndpoints)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RPC_RPS", "10")
	t.Setenv("START_HEIGHT", "115000000")
	t.Setenv("START_FROM_LATEST", "true")
	t.Setenv("STREAM_POLL_INTERVAL", "250ms")
	t.Setenv("BACKOFF_MAX", "2m")
	t.Setenv("WS_URL", "https://node.example.com")
	t.Setenv("HTTP_ENABLED", "1")
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.RPCRPS)
	assert.Equal(t, uint64(115_000_000), cfg.StartHeight)
	assert.True(t, cfg.StartFromLatest)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamPollInterval)
	assert.Equal(t, 2*time.Minute, cfg.BackoffMax)
	assert.Equal(t, "https://node.example.com", cfg.WSURL)
	assert.True(t, cfg.HTTPEnabled)
	assert.Equal(t, "secret", cfg.AdminToken)
}
