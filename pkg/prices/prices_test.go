package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	cached   map[string]string // tokenID -> price
	inserted map[string]string
	readErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{cached: map[string]string{}, inserted: map[string]string{}}
}

func (f *fakeStore) NearestHistoricalPrice(ctx context.Context, tokenID string, at time.Time, window time.Duration) (string, bool, error) {
	if f.readErr != nil {
		return "", false, f.readErr
	}
	price, ok := f.cached[tokenID]
	return price, ok, nil
}

func (f *fakeStore) InsertHistoricalPrice(ctx context.Context, tokenID string, at time.Time, priceUSD string) error {
	f.inserted[tokenID] = priceUSD
	return nil
}

func TestPriceAtCacheHitSkipsAPI(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.cached["near"] = "3.42"

	c := New(store, Config{BaseURL: srv.URL})
	price, found, err := c.PriceAt(context.Background(), "near", "near", time.Now())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3.42", price)
	assert.Equal(t, int64(0), hits.Load())
}

func TestPriceAtFetchesAndCachesOnMiss(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/usn/history", r.URL.Path)
		assert.Equal(t, "01-03-2024", r.URL.Query().Get("date"))
		fmt.Fprint(w, `{"market_data": {"current_price": {"usd": 0.998, "eur": 0.91}}}`)
	}))
	defer srv.Close()

	store := newFakeStore()
	c := New(store, Config{BaseURL: srv.URL})

	price, found, err := c.PriceAt(context.Background(), "usn.near", "usn", at)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "0.998", price)
	assert.Equal(t, "0.998", store.inserted["usn.near"])
}

func TestPriceAtNoCoingeckoID(t *testing.T) {
	c := New(newFakeStore(), Config{BaseURL: "http://unused.invalid"})
	price, found, err := c.PriceAt(context.Background(), "mystery.near", "", time.Now())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, price)
}

func TestPriceAtRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(newFakeStore(), Config{BaseURL: srv.URL})
	_, _, err := c.PriceAt(context.Background(), "near", "near", time.Now())
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestPriceAtUnknownAssetIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	store := newFakeStore()
	c := New(store, Config{BaseURL: srv.URL})

	price, found, err := c.PriceAt(context.Background(), "obscure.near", "obscure", time.Now())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, price)
	assert.Empty(t, store.inserted)
}

func TestPriceAtMissingUSDQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"market_data": {"current_price": {"eur": 1.5}}}`)
	}))
	defer srv.Close()

	_, found, err := New(newFakeStore(), Config{BaseURL: srv.URL}).
		PriceAt(context.Background(), "near", "near", time.Now())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCoinIDByContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/near-protocol/contract/usn.near", r.URL.Path)
		fmt.Fprint(w, `{"id": "usn", "symbol": "usn"}`)
	}))
	defer srv.Close()

	c := New(newFakeStore(), Config{BaseURL: srv.URL})
	id, found, err := c.CoinIDByContract(context.Background(), "usn.near")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "usn", id)
}

func TestCoinIDByContractUnlistedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	id, found, err := New(newFakeStore(), Config{BaseURL: srv.URL}).
		CoinIDByContract(context.Background(), "mystery.near")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestCoinIDByContractRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, _, err := New(newFakeStore(), Config{BaseURL: srv.URL}).
		CoinIDByContract(context.Background(), "usn.near")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestPriceAtCacheReadError(t *testing.T) {
	store := newFakeStore()
	store.readErr = fmt.Errorf("connection refused")

	_, _, err := New(store, Config{}).PriceAt(context.Background(), "near", "near", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price cache lookup")
}
