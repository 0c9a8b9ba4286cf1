package near

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockGateway serves /v1/block from an in-memory height set, with
// optional one-shot failures per height.
type blockGateway struct {
	mu       sync.Mutex
	blocks   map[uint64]bool
	failOnce map[uint64]bool
	srv      *httptest.Server
}

func newBlockGateway(heights ...uint64) *blockGateway {
	g := &blockGateway{
		blocks:   map[uint64]bool{},
		failOnce: map[uint64]bool{},
	}
	for _, h := range heights {
		g.blocks[h] = true
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.handle))
	return g
}

func (g *blockGateway) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Height uint64 `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	fail := g.failOnce[req.Height]
	if fail {
		delete(g.failOnce, req.Height)
	}
	have := g.blocks[req.Height]
	g.mu.Unlock()

	if fail {
		http.Error(w, "transient", http.StatusInternalServerError)
		return
	}
	if !have {
		w.Write([]byte(`{}`))
		return
	}
	fmt.Fprintf(w, `{"block": {"height": %d, "timestamp_nanosec": "%d"}, "shards": []}`,
		req.Height, req.Height*1_000_000_000)
}

func (g *blockGateway) add(height uint64) {
	g.mu.Lock()
	g.blocks[height] = true
	g.mu.Unlock()
}

func (g *blockGateway) client() *Client {
	return NewWithOpts(Opts{Endpoints: []string{g.srv.URL}, RPS: 1000, Burst: 1000})
}

func TestStreamerDeliversInOrder(t *testing.T) {
	g := newBlockGateway(100, 101, 102)
	defer g.srv.Close()

	s := NewStreamer(g.client(), StreamerConfig{PollInterval: 10 * time.Millisecond})
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Seek(ctx, 100)
	for want := uint64(100); want <= 102; want++ {
		block, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, block.Header.Height)
	}
}

func TestStreamerNextBeforeSeek(t *testing.T) {
	g := newBlockGateway()
	defer g.srv.Close()

	s := NewStreamer(g.client(), StreamerConfig{})
	_, err := s.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Next before Seek")
}

func TestStreamerSetHeadWakesPoll(t *testing.T) {
	g := newBlockGateway()
	defer g.srv.Close()

	// A poll interval far beyond the test deadline: only the head
	// notification can unblock the fetch loop.
	s := NewStreamer(g.client(), StreamerConfig{PollInterval: time.Hour})
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Seek(ctx, 500)

	// Let the fetch loop hit "not ready" and park on the head channel.
	time.Sleep(50 * time.Millisecond)

	g.add(500)
	s.SetHead(500)

	block, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), block.Header.Height)
}

func TestStreamerRetriesSameHeightAfterError(t *testing.T) {
	g := newBlockGateway(200)
	defer g.srv.Close()

	g.mu.Lock()
	g.failOnce[200] = true
	g.mu.Unlock()

	s := NewStreamer(g.client(), StreamerConfig{RetryDelay: 10 * time.Millisecond})
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Seek(ctx, 200)

	_, err := s.Next(ctx)
	require.Error(t, err)

	block, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), block.Header.Height)
}

func TestStreamerSetHeadIgnoresStaleHeights(t *testing.T) {
	g := newBlockGateway()
	defer g.srv.Close()

	s := NewStreamer(g.client(), StreamerConfig{})
	s.SetHead(100)
	s.SetHead(90)
	assert.Equal(t, uint64(100), s.headHint.Load())
}
