// Package prices resolves historical USD prices for tokens. Lookups
// consult the token_historical_prices cache first; only misses reach
// the external API, and every fetched observation is written back so
// replays of the same window stay local.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrRateLimited reports an HTTP 429 from the price API. Callers nack
// and retry later instead of hammering the endpoint.
var ErrRateLimited = fmt.Errorf("price api rate limited")

// Store is the cache the client reads through.
type Store interface {
	NearestHistoricalPrice(ctx context.Context, tokenID string, at time.Time, window time.Duration) (string, bool, error)
	InsertHistoricalPrice(ctx context.Context, tokenID string, at time.Time, priceUSD string) error
}

// Config configures the price client.
type Config struct {
	BaseURL     string        // default: https://api.coingecko.com/api/v3
	Timeout     time.Duration // default: 10s
	CacheWindow time.Duration // default: 24h
}

// Client looks up USD prices with a DB-backed cache.
type Client struct {
	http    *http.Client
	baseURL string
	store   Store
	window  time.Duration
}

// New creates a price client.
func New(store Store, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheWindow <= 0 {
		cfg.CacheWindow = 24 * time.Hour
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		store:   store,
		window:  cfg.CacheWindow,
	}
}

// historyResponse is the subset of the coin history payload we read.
type historyResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// PriceAt returns the USD price of a token around the given time. A
// cached observation within the window short-circuits the API call.
// (price, found, err): an asset the API has no data for is not an
// error, just not found.
func (c *Client) PriceAt(ctx context.Context, tokenID, coingeckoID string, at time.Time) (string, bool, error) {
	price, found, err := c.store.NearestHistoricalPrice(ctx, tokenID, at, c.window)
	if err != nil {
		return "", false, fmt.Errorf("price cache lookup: %w", err)
	}
	if found {
		slog.Debug("price cache hit", "token", tokenID, "at", at, "price_usd", price)
		return price, true, nil
	}

	if coingeckoID == "" {
		return "", false, nil
	}

	price, found, err = c.fetch(ctx, coingeckoID, at)
	if err != nil || !found {
		return "", false, err
	}

	if err := c.store.InsertHistoricalPrice(ctx, tokenID, at, price); err != nil {
		// The price is still usable; the next lookup just pays the
		// API call again.
		slog.Warn("price cache write failed", "token", tokenID, "err", err)
	}
	return price, true, nil
}

// contractCoinResponse is the subset of the contract lookup payload.
type contractCoinResponse struct {
	ID string `json:"id"`
}

// CoinIDByContract resolves the external price id for a token contract
// on the NEAR asset platform. A contract the API has never listed is
// not an error, just not found.
func (c *Client) CoinIDByContract(ctx context.Context, contractAddress string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/coins/near-protocol/contract/%s",
		c.baseURL, url.PathEscape(contractAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("price api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("price api rate limited", "contract", contractAddress)
		return "", false, ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("price api status %d: %s", resp.StatusCode, string(body))
	}

	var coin contractCoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&coin); err != nil {
		return "", false, fmt.Errorf("decode contract lookup: %w", err)
	}
	if coin.ID == "" {
		return "", false, nil
	}
	return coin.ID, true, nil
}

// fetch calls the coin history endpoint for the observation date.
func (c *Client) fetch(ctx context.Context, coingeckoID string, at time.Time) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/history?date=%s",
		c.baseURL, url.PathEscape(coingeckoID), at.UTC().Format("02-01-2006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("price api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("price api rate limited", "coingecko_id", coingeckoID)
		return "", false, ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("price api status %d: %s", resp.StatusCode, string(body))
	}

	var hist historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return "", false, fmt.Errorf("decode price response: %w", err)
	}

	usd, ok := hist.MarketData.CurrentPrice["usd"]
	if !ok {
		return "", false, nil
	}
	return strconv.FormatFloat(usd, 'f', -1, 64), true, nil
}
