// Package backfill finds heights missing from index progress and
// reindexes them. Blocks are fetched with bounded concurrency but
// applied strictly in height order, so backfilled batches observe the
// same ordering guarantees as live streaming.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/potlock-network/potlock-indexer/internal/indexer"
	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
	"github.com/potlock-network/potlock-indexer/pkg/near"
	"golang.org/x/sync/errgroup"
)

// Result contains the results of a backfill operation.
type Result struct {
	TotalMissing   uint64
	TotalProcessed uint64
	TotalSucceeded uint64
	TotalFailed    uint64
	Duration       time.Duration
	Errors         []error
}

// Backfiller handles reindexing of missing blocks.
type Backfiller struct {
	rpc     *near.Client
	store   *postgres.Store
	indexer *indexer.Indexer
	config  *Config
}

// New creates a new Backfiller.
func New(rpcClient *near.Client, store *postgres.Store, idx *indexer.Indexer, cfg *Config) *Backfiller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Backfiller{
		rpc:     rpcClient,
		store:   store,
		indexer: idx,
		config:  cfg,
	}
}

// resolveRange determines the height range to scan.
func (b *Backfiller) resolveRange(ctx context.Context) (uint64, uint64, error) {
	start := b.config.StartHeight
	if start == 0 {
		start = 1
	}

	end := b.config.EndHeight
	if end == 0 {
		last, err := b.store.LastIndexed(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("get last indexed height: %w", err)
		}
		end = last
	}
	if end == 0 {
		head, err := b.rpc.ChainHead(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("get chain head: %w", err)
		}
		end = head
		slog.Info("fetched chain head from RPC", "height", end)
	}
	if end < start {
		return 0, 0, fmt.Errorf("empty backfill range: start %d, end %d", start, end)
	}
	return start, end, nil
}

// Run executes the backfill operation.
func (b *Backfiller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	startHeight, endHeight, err := b.resolveRange(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("starting backfill",
		"start_height", startHeight,
		"end_height", endHeight,
		"batch_size", b.config.BatchSize,
		"concurrency", b.config.Concurrency,
		"dry_run", b.config.DryRun,
	)

	stats, err := GetGapStats(ctx, b.store, startHeight, endHeight)
	if err != nil {
		return nil, fmt.Errorf("get gap stats: %w", err)
	}

	slog.Info("gap analysis complete",
		"total_expected", stats.TotalExpected,
		"total_indexed", stats.TotalIndexed,
		"total_missing", stats.TotalMissing,
		"first_missing", stats.FirstMissing,
		"last_missing", stats.LastMissing,
	)

	result.TotalMissing = stats.TotalMissing

	if stats.TotalMissing == 0 {
		slog.Info("no missing blocks found")
		result.Duration = time.Since(start)
		return result, nil
	}

	if b.config.DryRun {
		slog.Info("dry run complete, no blocks indexed")
		result.Duration = time.Since(start)
		return result, nil
	}

	var processed, succeeded, failed atomic.Uint64

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go b.reportProgress(progressCtx, stats.TotalMissing, &processed, &succeeded, &failed)

	currentStart := startHeight
	for currentStart <= endHeight {
		if ctx.Err() != nil {
			break
		}

		heights, err := b.store.MissingHeights(ctx, currentStart, endHeight, b.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("find missing heights: %w", err)
		}
		if len(heights) == 0 {
			break
		}

		slog.Debug("processing batch",
			"batch_start", heights[0],
			"batch_end", heights[len(heights)-1],
			"batch_size", len(heights),
		)

		// Fetch the batch concurrently; apply below keeps height order.
		blocks := make([]*near.Block, len(heights))
		fetchErrs := make([]error, len(heights))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(b.config.Concurrency)
		for i, height := range heights {
			i, height := i, height
			g.Go(func() error {
				block, err := b.rpc.BlockByHeight(gCtx, height)
				if err != nil {
					fetchErrs[i] = fmt.Errorf("height %d: %w", height, err)
					return nil
				}
				blocks[i] = block
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			break
		}

		for i, height := range heights {
			if ctx.Err() != nil {
				break
			}
			processed.Add(1)

			if fetchErrs[i] != nil {
				failed.Add(1)
				result.Errors = append(result.Errors, fetchErrs[i])
				slog.Error("failed to fetch block", "height", height, "err", fetchErrs[i])
				continue
			}

			applyStart := time.Now()
			b.indexer.ApplyBlock(ctx, blocks[i])
			if err := b.store.RecordIndexed(ctx, height, float64(time.Since(applyStart).Milliseconds())); err != nil {
				failed.Add(1)
				result.Errors = append(result.Errors, fmt.Errorf("height %d: %w", height, err))
				slog.Error("failed to record progress", "height", height, "err", err)
				continue
			}
			succeeded.Add(1)
		}

		currentStart = heights[len(heights)-1] + 1
	}

	result.TotalProcessed = processed.Load()
	result.TotalSucceeded = succeeded.Load()
	result.TotalFailed = failed.Load()
	result.Duration = time.Since(start)

	slog.Info("backfill complete",
		"total_missing", result.TotalMissing,
		"total_processed", result.TotalProcessed,
		"total_succeeded", result.TotalSucceeded,
		"total_failed", result.TotalFailed,
		"duration", result.Duration,
	)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// reportProgress logs progress at regular intervals.
func (b *Backfiller) reportProgress(ctx context.Context, total uint64, processed, succeeded, failed *atomic.Uint64) {
	ticker := time.NewTicker(b.config.ProgressInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := processed.Load()
			s := succeeded.Load()
			f := failed.Load()

			elapsed := time.Since(startTime)
			rate := float64(p) / elapsed.Seconds()

			var eta time.Duration
			if rate > 0 && p < total {
				remaining := total - p
				eta = time.Duration(float64(remaining)/rate) * time.Second
			}

			progress := float64(p) / float64(total) * 100

			slog.Info("backfill progress",
				"processed", p,
				"total", total,
				"progress_pct", fmt.Sprintf("%.1f%%", progress),
				"succeeded", s,
				"failed", f,
				"rate_per_sec", fmt.Sprintf("%.1f", rate),
				"eta", eta.Round(time.Second),
			)
		}
	}
}

// CheckHealth performs a quick gap check and returns stats.
func (b *Backfiller) CheckHealth(ctx context.Context) (*GapStats, error) {
	startHeight := b.config.StartHeight
	if startHeight == 0 {
		startHeight = 1
	}

	endHeight, err := b.store.LastIndexed(ctx)
	if err != nil {
		return nil, fmt.Errorf("get last indexed height: %w", err)
	}
	if endHeight == 0 {
		return &GapStats{}, nil
	}

	return GetGapStats(ctx, b.store, startHeight, endHeight)
}
