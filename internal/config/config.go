// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the indexer.
type Config struct {

	// NEAR RPC
	RPCEndpoints []string
	RPCRPS       int
	RPCBurst     int

	// PostgreSQL
	PostgresURL string

	// Redis
	RedisURL      string
	DonationTopic string
	PayoutTopic   string
	ConsumerGroup string

	// Stream position (used only when no checkpoint exists)
	StartHeight     uint64
	StartFromLatest bool

	// Streamer
	StreamPrefetch     int
	StreamPollInterval time.Duration

	// Coordinator backoff
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Prices
	PriceAPIURL      string
	PriceCacheWindow time.Duration

	// WebSocket head listener (enabled when WS_URL is set)
	WSURL            string
	WSMaxRetries     int
	WSReconnectDelay time.Duration

	// Logging
	LogLevel string

	// HTTP API
	HTTPEnabled bool
	HTTPAddr    string
	AdminToken  string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		RPCRPS:             50,
		RPCBurst:           100,
		DonationTopic:      "donation-usd-jobs",
		PayoutTopic:        "payout-usd-jobs",
		ConsumerGroup:      "price-workers",
		StreamPrefetch:     8,
		StreamPollInterval: time.Second,
		BackoffInitial:     time.Second,
		BackoffMax:         30 * time.Second,
		PriceCacheWindow:   24 * time.Hour,
		WSMaxRetries:       25,
		WSReconnectDelay:   time.Second,
		LogLevel:           "info",
	}

	// Required
	cfg.PostgresURL = os.Getenv("POSTGRES_URL")
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	rpcURLs := os.Getenv("NEAR_RPC_URL")
	if rpcURLs == "" {
		return nil, fmt.Errorf("NEAR_RPC_URL is required")
	}
	for _, u := range strings.Split(rpcURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.RPCEndpoints = append(cfg.RPCEndpoints, u)
		}
	}
	if len(cfg.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("NEAR_RPC_URL is required")
	}

	// Optional overrides
	if v := os.Getenv("RPC_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCRPS = n
		}
	}

	if v := os.Getenv("RPC_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCBurst = n
		}
	}

	if v := os.Getenv("DONATION_TOPIC"); v != "" {
		cfg.DonationTopic = v
	}

	if v := os.Getenv("PAYOUT_TOPIC"); v != "" {
		cfg.PayoutTopic = v
	}

	if v := os.Getenv("CONSUMER_GROUP"); v != "" {
		cfg.ConsumerGroup = v
	}

	if v := os.Getenv("START_HEIGHT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.StartHeight = n
		}
	}

	if v := os.Getenv("START_FROM_LATEST"); v != "" {
		cfg.StartFromLatest = v == "true" || v == "1"
	}

	if v := os.Getenv("STREAM_PREFETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamPrefetch = n
		}
	}

	if v := os.Getenv("STREAM_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StreamPollInterval = d
		}
	}

	if v := os.Getenv("BACKOFF_INITIAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackoffInitial = d
		}
	}

	if v := os.Getenv("BACKOFF_MAX"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackoffMax = d
		}
	}

	cfg.PriceAPIURL = os.Getenv("PRICE_API_URL")

	if v := os.Getenv("PRICE_CACHE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PriceCacheWindow = d
		}
	}

	cfg.WSURL = os.Getenv("WS_URL")

	if v := os.Getenv("WS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WSMaxRetries = n
		}
	}

	if v := os.Getenv("WS_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WSReconnectDelay = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// HTTP API Configuration
	if v := os.Getenv("HTTP_ENABLED"); v != "" {
		cfg.HTTPEnabled = v == "true" || v == "1"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		cfg.AdminToken = "devtoken"
	}

	return cfg, nil
}
