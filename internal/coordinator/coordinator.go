// Package coordinator drives the main indexing loop: resume position,
// ordered block consumption, checkpointing, and backoff on source
// errors.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"github.com/potlock-network/potlock-indexer/pkg/near"
)

// State is the coordinator's lifecycle phase, exposed for the admin
// status endpoint.
type State string

const (
	StateInitializing State = "initializing"
	StateStreaming    State = "streaming"
	StateErrorBackoff State = "error_backoff"
	StateStopped      State = "stopped"
)

// BlockSource yields blocks strictly in height order after a Seek.
type BlockSource interface {
	Seek(ctx context.Context, height uint64)
	Next(ctx context.Context) (*near.Block, error)
	Stop()
}

// BlockApplier applies one block's events to the entity store.
type BlockApplier interface {
	ApplyBlock(ctx context.Context, block *near.Block)
}

// ProgressStore persists the resume position and per-height progress.
type ProgressStore interface {
	GetCheckpoint(ctx context.Context) (*models.Checkpoint, bool, error)
	UpsertCheckpoint(ctx context.Context, height uint64, blockTime time.Time) error
	RecordIndexed(ctx context.Context, height uint64, indexingTimeMs float64) error
}

// HeadFunc returns the current chain head height.
type HeadFunc func(ctx context.Context) (uint64, error)

// StartOptions pins the start height when no checkpoint exists. With a
// checkpoint present both fields are ignored and the stream resumes at
// checkpoint+1.
type StartOptions struct {
	FromHeight uint64
	FromLatest bool
}

// ErrNoStartHeight is returned when there is neither a checkpoint nor
// an explicit start option. Silently defaulting to genesis or to the
// head would be a guess either way, so startup refuses instead.
var ErrNoStartHeight = errors.New("no checkpoint found and no start height given")

// Config tunes the error backoff.
type Config struct {
	InitialBackoff time.Duration // default: 1s
	MaxBackoff     time.Duration // default: 30s
}

// Coordinator runs the fetch → apply → checkpoint loop.
type Coordinator struct {
	source BlockSource
	apply  BlockApplier
	store  ProgressStore
	head   HeadFunc
	cfg    Config

	mu     sync.RWMutex
	state  State
	height atomic.Uint64 // last fully applied height
}

// New creates a Coordinator.
func New(source BlockSource, applier BlockApplier, store ProgressStore, head HeadFunc, cfg Config) *Coordinator {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Coordinator{
		source: source,
		apply:  applier,
		store:  store,
		head:   head,
		cfg:    cfg,
		state:  StateInitializing,
	}
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// CurrentHeight returns the last fully applied block height.
func (c *Coordinator) CurrentHeight() uint64 {
	return c.height.Load()
}

// resolveStart decides where the stream begins. Checkpoint wins over
// everything; without one the caller must have said where to start.
func (c *Coordinator) resolveStart(ctx context.Context, opts StartOptions) (uint64, error) {
	cp, found, err := c.store.GetCheckpoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	if found {
		c.height.Store(cp.BlockHeight)
		slog.Info("resuming from checkpoint", "checkpoint_height", cp.BlockHeight)
		return cp.BlockHeight + 1, nil
	}

	switch {
	case opts.FromHeight > 0:
		slog.Info("starting from explicit height", "height", opts.FromHeight)
		return opts.FromHeight, nil
	case opts.FromLatest:
		h, err := c.head(ctx)
		if err != nil {
			return 0, fmt.Errorf("get chain head: %w", err)
		}
		slog.Info("starting from chain head", "height", h)
		return h, nil
	default:
		return 0, ErrNoStartHeight
	}
}

// Run resolves the start height and executes the indexing loop until
// the context is cancelled. Cancellation is the only way out once the
// loop is running; source errors back off (capped) and retry
// indefinitely.
func (c *Coordinator) Run(ctx context.Context, opts StartOptions) error {
	start, err := c.resolveStart(ctx, opts)
	if err != nil {
		c.setState(StateStopped)
		return err
	}
	return c.runFrom(ctx, start)
}

// runFrom is the loop body once the start height is known.
func (c *Coordinator) runFrom(ctx context.Context, start uint64) error {
	c.setState(StateInitializing)
	defer c.setState(StateStopped)

	c.source.Seek(ctx, start)
	defer c.source.Stop()

	backoff := c.cfg.InitialBackoff
	for {
		block, err := c.source.Next(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.setState(StateErrorBackoff)
			slog.Warn("block source error, backing off",
				"backoff", backoff, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}
		c.setState(StateStreaming)
		backoff = c.cfg.InitialBackoff

		applyStart := time.Now()
		c.apply.ApplyBlock(ctx, block)
		elapsed := time.Since(applyStart)

		height := block.Header.Height
		if err := c.store.UpsertCheckpoint(ctx, height, block.Header.Time()); err != nil {
			// The block is applied; on restart it replays and every
			// handler upsert converges to the same rows.
			slog.Error("checkpoint write failed", "height", height, "err", err)
		}
		if err := c.store.RecordIndexed(ctx, height, float64(elapsed.Milliseconds())); err != nil {
			slog.Warn("index progress write failed", "height", height, "err", err)
		}
		c.height.Store(height)
	}
}
