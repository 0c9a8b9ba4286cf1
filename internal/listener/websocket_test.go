package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{
			name: "http scheme",
			base: "http://node.example.com",
			want: "ws://node.example.com/v1/subscribe-head",
		},
		{
			name: "https upgrades to wss",
			base: "https://node.example.com",
			want: "wss://node.example.com/v1/subscribe-head",
		},
		{
			name: "wss passthrough",
			base: "wss://node.example.com",
			want: "wss://node.example.com/v1/subscribe-head",
		},
		{
			name: "host with port",
			base: "http://127.0.0.1:8545",
			want: "ws://127.0.0.1:8545/v1/subscribe-head",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{URL: tt.base}, nil)
			got, err := l.buildURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunForwardsHeads(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/subscribe-head", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, msg := range []string{
			`{"height": 120000001, "hash": "aa"}`,
			`not json`,
			`{"height": 120000002, "hash": "bb"}`,
		} {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	heads := make(chan uint64, 8)
	l := New(Config{URL: srv.URL, MaxRetries: 3, ReconnectDelay: 10 * time.Millisecond},
		func(height uint64) { heads <- height })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	want := []uint64{120_000_001, 120_000_002}
	for _, w := range want {
		select {
		case h := <-heads:
			assert.Equal(t, w, h)
		case <-time.After(5 * time.Second):
			t.Fatal("head never forwarded")
		}
	}

	cancel()
	l.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	l := New(Config{
		URL:            "http://127.0.0.1:1", // nothing listens here
		MaxRetries:     2,
		ReconnectDelay: time.Millisecond,
	}, func(uint64) {})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
}
