package near

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(endpoints ...string) *Client {
	return NewWithOpts(Opts{
		Endpoints: endpoints,
		RPS:       1000,
		Burst:     1000,
		Timeout:   2 * time.Second,
	})
}

func TestChainHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/head", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]uint64{"height": 120_500_000})
	}))
	defer srv.Close()

	height, err := testClient(srv.URL).ChainHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(120_500_000), height)
}

func TestBlockByHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/block", r.URL.Path)

		var req struct {
			Height uint64 `json:"height"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, uint64(120_000_000), req.Height)

		w.Write([]byte(`{
			"block": {
				"height": 120000000,
				"hash": "9wV2nZ",
				"timestamp_nanosec": "1709294400000000000"
			},
			"shards": []
		}`))
	}))
	defer srv.Close()

	block, err := testClient(srv.URL).BlockByHeight(context.Background(), 120_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(120_000_000), block.Header.Height)
	assert.Equal(t, "9wV2nZ", block.Header.Hash)
	assert.Equal(t,
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		block.Header.Time().UTC())
}

func TestBlockByHeightNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).BlockByHeight(context.Background(), 999_999_999)
	require.ErrorIs(t, err, ErrBlockNotReady)
}

func TestBlockByHeightMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"block": {"height": 55, "timestamp_nanosec": "1"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).BlockByHeight(context.Background(), 56)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requested height 56, got 55")
}

func TestViewFunction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/view-function", r.URL.Path)

		var req struct {
			ContractID string `json:"contract_id"`
			Method     string `json:"method_name"`
			ArgsBase64 string `json:"args_base64"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "donate.potlock.near", req.ContractID)
		assert.Equal(t, "get_config", req.Method)

		args, err := base64.StdEncoding.DecodeString(req.ArgsBase64)
		require.NoError(t, err)
		assert.JSONEq(t, `{"from_index": 0}`, string(args))

		w.Write([]byte(`{"result": {"protocol_fee_basis_points": 250}}`))
	}))
	defer srv.Close()

	var out struct {
		ProtocolFeeBasisPoints int `json:"protocol_fee_basis_points"`
	}
	err := testClient(srv.URL).ViewFunction(context.Background(),
		"donate.potlock.near", "get_config",
		map[string]int{"from_index": 0}, &out)
	require.NoError(t, err)
	assert.Equal(t, 250, out.ProtocolFeeBasisPoints)
}

func TestViewFunctionErrorCarriesContractAndMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := testClient(srv.URL).ViewFunction(context.Background(),
		"v1.potfactory.potlock.near", "no_such_method", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v1.potfactory.potlock.near.no_such_method")
	assert.Contains(t, err.Error(), "method not found")
}

func TestFailoverToSecondEndpoint(t *testing.T) {
	var badHits atomic.Int64
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]uint64{"height": 42})
	}))
	defer good.Close()

	height, err := testClient(bad.URL, good.URL).ChainHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)
	assert.Equal(t, int64(1), badHits.Load())
}

func TestCircuitBreakerSkipsOpenEndpoint(t *testing.T) {
	var badHits atomic.Int64
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]uint64{"height": 7})
	}))
	defer good.Close()

	c := NewWithOpts(Opts{
		Endpoints:       []string{bad.URL, good.URL},
		RPS:             1000,
		Burst:           1000,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})

	for i := 0; i < 4; i++ {
		_, err := c.ChainHead(context.Background())
		require.NoError(t, err)
	}
	// Two failures trip the breaker; later calls go straight to the
	// healthy endpoint.
	assert.Equal(t, int64(2), badHits.Load())
}

func TestDedupEndpoints(t *testing.T) {
	c := testClient("http://a", "http://b", "http://a")
	assert.Equal(t, []string{"http://a", "http://b"}, c.endpoints)
}
