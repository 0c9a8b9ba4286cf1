package near

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// StreamerConfig configures a Streamer.
type StreamerConfig struct {
	PollInterval time.Duration // wait between head polls when caught up (default: 1s)
	Prefetch     int           // blocks fetched ahead of the consumer (default: 8)
	RetryDelay   time.Duration // pause after a failed fetch (default: 2s)
}

type fetchResult struct {
	block *Block
	err   error
}

// Streamer yields blocks strictly in height order. A single fetch
// goroutine runs ahead of the consumer through a bounded channel, so
// delivery order always matches chain order regardless of buffering.
type Streamer struct {
	client *Client
	cfg    StreamerConfig

	headHint atomic.Uint64 // latest height seen via listener, 0 = unknown
	headCh   chan struct{}

	mu      sync.Mutex
	results chan fetchResult
	cancel  context.CancelFunc
}

// NewStreamer creates a Streamer over the given client.
func NewStreamer(client *Client, cfg StreamerConfig) *Streamer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Streamer{
		client: client,
		cfg:    cfg,
		headCh: make(chan struct{}, 1),
	}
}

// SetHead records a newer chain head observed out of band (e.g. from
// the websocket listener) so the fetch loop wakes up early instead of
// waiting out its poll interval.
func (s *Streamer) SetHead(height uint64) {
	for {
		cur := s.headHint.Load()
		if height <= cur {
			return
		}
		if s.headHint.CompareAndSwap(cur, height) {
			select {
			case s.headCh <- struct{}{}:
			default:
			}
			return
		}
	}
}

// Seek starts (or restarts) the fetch pipeline at the given height.
func (s *Streamer) Seek(ctx context.Context, height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.results = make(chan fetchResult, s.cfg.Prefetch)
	go s.fetchLoop(fetchCtx, height, s.results)
}

// Next returns the next block in height order. It blocks until a block
// is available, and returns the fetch error when the pipeline hit one;
// the pipeline keeps retrying the same height, so the caller may simply
// call Next again after backing off.
func (s *Streamer) Next(ctx context.Context) (*Block, error) {
	s.mu.Lock()
	results := s.results
	s.mu.Unlock()

	if results == nil {
		return nil, errors.New("streamer: Next before Seek")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		return res.block, res.err
	}
}

// Stop tears down the fetch pipeline.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Streamer) fetchLoop(ctx context.Context, from uint64, out chan<- fetchResult) {
	height := from
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, err := s.client.BlockByHeight(ctx, height)
		switch {
		case errors.Is(err, ErrBlockNotReady):
			// Caught up. Wait for a head notification or the poll tick.
			select {
			case <-ctx.Done():
				return
			case <-s.headCh:
			case <-time.After(s.cfg.PollInterval):
			}
			continue

		case err != nil:
			select {
			case <-ctx.Done():
				return
			case out <- fetchResult{err: err}:
			}
			slog.Warn("block fetch failed", "height", height, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.RetryDelay):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case out <- fetchResult{block: block}:
		}
		height++
	}
}
