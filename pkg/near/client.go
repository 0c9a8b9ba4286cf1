package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	headPath          = "/v1/head"
	blockByHeightPath = "/v1/block"
	viewFunctionPath  = "/v1/view-function"
)

// Client is a wrapper around an http.Client with circuit-breaker and
// token-bucket rate limiting, speaking to a NEAR-compatible view/block
// gateway.
type Client struct {
	endpoints []string
	client    *http.Client

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new Client.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewWithOpts creates a new Client with the given options.
func NewWithOpts(o Opts) *Client {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}

	c := &Client{
		endpoints:        dedup(o.Endpoints),
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

func dedup(ss []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

func (c *Client) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

func (c *Client) acquire() {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return
		}
		time.Sleep(c.refillEvery / 2)
	}
}

func (c *Client) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

func (c *Client) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		ep := c.endpoints[i%len(c.endpoints)]
		if c.isOpen(ep) {
			continue
		}

		c.acquire()

		var body *bytes.Reader
		if payload != nil {
			b, mErr := json.Marshal(payload)
			if mErr != nil {
				return mErr
			}
			body = bytes.NewReader(b)
		} else {
			body = bytes.NewReader(nil)
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, ep+path, body)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			c.noteFailure(ep)
			resp.Body.Close()
			continue
		}
		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(raw))
			continue
		}

		if out != nil {
			rawBody, err := io.ReadAll(resp.Body)
			if err != nil {
				resp.Body.Close()
				lastErr = err
				continue
			}

			slog.Debug("rpc", "path", path, "len", len(rawBody))

			if err := json.Unmarshal(rawBody, out); err != nil {
				resp.Body.Close()
				lastErr = fmt.Errorf("json unmarshal: %w (body: %s)", err, string(rawBody[:min(200, len(rawBody))]))
				continue
			}
		}

		resp.Body.Close()
		return nil
	}

	return lastErr
}

// blockRequest is the request body for height-based queries.
type blockRequest struct {
	Height uint64 `json:"height"`
}

// ChainHead returns the current chain height.
func (c *Client) ChainHead(ctx context.Context) (uint64, error) {
	var resp struct {
		Height uint64 `json:"height"`
	}
	if err := c.doJSON(ctx, http.MethodGet, headPath, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

// ErrBlockNotReady is returned by BlockByHeight when the requested
// height has not been produced yet.
var ErrBlockNotReady = fmt.Errorf("block not ready")

// BlockByHeight fetches the full block payload at the given height.
func (c *Client) BlockByHeight(ctx context.Context, height uint64) (*Block, error) {
	var resp Block
	if err := c.doJSON(ctx, http.MethodPost, blockByHeightPath, blockRequest{Height: height}, &resp); err != nil {
		return nil, err
	}
	if resp.Header.Height != height {
		if resp.Header.Height == 0 {
			return nil, ErrBlockNotReady
		}
		return nil, fmt.Errorf("requested height %d, got %d", height, resp.Header.Height)
	}
	return &resp, nil
}

// viewRequest is the request body for contract view calls.
type viewRequest struct {
	ContractID string `json:"contract_id"`
	Method     string `json:"method_name"`
	ArgsBase64 string `json:"args_base64"`
}

// ViewFunction calls a read-only contract method through the gateway
// and unmarshals its JSON result into out. Non-2xx responses come back
// as errors carrying status and body; callers log and continue.
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args any, out any) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal view args: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	req := viewRequest{
		ContractID: contractID,
		Method:     method,
		ArgsBase64: base64.StdEncoding.EncodeToString(argsJSON),
	}
	if err := c.doJSON(ctx, http.MethodPost, viewFunctionPath, req, &resp); err != nil {
		return fmt.Errorf("view %s.%s: %w", contractID, method, err)
	}

	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("view %s.%s: decode result: %w", contractID, method, err)
		}
	}
	return nil
}
