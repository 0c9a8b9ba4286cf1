package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/potlock-network/potlock-indexer/internal/backfill"
	"github.com/potlock-network/potlock-indexer/internal/config"
	"github.com/potlock-network/potlock-indexer/internal/indexer"
	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
	"github.com/potlock-network/potlock-indexer/pkg/near"
)

func main() {
	// Parse flags
	dryRun := flag.Bool("dry-run", false, "Only report gaps, don't index")
	startHeight := flag.Uint64("start", 0, "Start height (default: 1)")
	endHeight := flag.Uint64("end", 0, "End height (default: last indexed height)")
	batchSize := flag.Int("batch", 0, "Batch size (default: 1000)")
	concurrency := flag.Int("concurrency", 0, "Number of concurrent block fetches (default: 10)")
	statsOnly := flag.Bool("stats", false, "Only show gap statistics")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load base configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	slog.Info("potlock-indexer backfill starting")

	// Connect to PostgreSQL
	store, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Create RPC client
	rpc := near.NewWithOpts(near.Opts{
		Endpoints: cfg.RPCEndpoints,
		RPS:       cfg.RPCRPS,
		Burst:     cfg.RPCBurst,
	})

	// Create indexer. Backfill re-enqueues no price jobs; USD fields
	// for replayed donations are filled by the next live pass.
	idx := indexer.New(store, rpc, indexer.NopTaskQueue{})

	// Build backfill config
	backfillCfg := backfill.LoadConfig()

	// Override with flags if provided
	if *dryRun {
		backfillCfg.DryRun = true
	}
	if *startHeight > 0 {
		backfillCfg.StartHeight = *startHeight
	}
	if *endHeight > 0 {
		backfillCfg.EndHeight = *endHeight
	}
	if *batchSize > 0 {
		backfillCfg.BatchSize = *batchSize
	}
	if *concurrency > 0 {
		backfillCfg.Concurrency = *concurrency
	}

	bf := backfill.New(rpc, store, idx, backfillCfg)

	// Stats only mode
	if *statsOnly {
		stats, err := bf.CheckHealth(ctx)
		if err != nil {
			slog.Error("failed to check health", "err", err)
			os.Exit(1)
		}

		fmt.Printf("Gap Statistics:\n")
		fmt.Printf("  Total Expected: %d\n", stats.TotalExpected)
		fmt.Printf("  Total Indexed:  %d\n", stats.TotalIndexed)
		fmt.Printf("  Total Missing:  %d\n", stats.TotalMissing)
		if stats.TotalMissing > 0 {
			fmt.Printf("  First Missing:  %d\n", stats.FirstMissing)
			fmt.Printf("  Last Missing:   %d\n", stats.LastMissing)
			completionPct := float64(stats.TotalIndexed) / float64(stats.TotalExpected) * 100
			fmt.Printf("  Completion:     %.2f%%\n", completionPct)

			gaps, err := store.FindGaps(ctx)
			if err != nil {
				slog.Error("failed to find gaps", "err", err)
				os.Exit(1)
			}
			if len(gaps) > 0 {
				fmt.Printf("\n  Interior gaps (%d):\n", len(gaps))
				for _, g := range gaps {
					fmt.Printf("    %d-%d (%d blocks)\n", g.From, g.To, g.To-g.From+1)
				}
			}
		} else {
			fmt.Printf("  Completion:     100%%\n")
		}
		os.Exit(0)
	}

	result, err := bf.Run(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("backfill failed", "err", err)
		os.Exit(1)
	}

	// Print summary
	fmt.Printf("\nBackfill Summary:\n")
	fmt.Printf("  Total Missing:   %d\n", result.TotalMissing)
	fmt.Printf("  Total Processed: %d\n", result.TotalProcessed)
	fmt.Printf("  Total Succeeded: %d\n", result.TotalSucceeded)
	fmt.Printf("  Total Failed:    %d\n", result.TotalFailed)
	fmt.Printf("  Duration:        %s\n", result.Duration)

	if result.TotalFailed > 0 {
		fmt.Printf("\n  Failed blocks (%d):\n", len(result.Errors))
		for i, err := range result.Errors {
			if i >= 5 {
				fmt.Printf("    ... and %d more\n", len(result.Errors)-5)
				break
			}
			fmt.Printf("    - %v\n", err)
		}
		os.Exit(1)
	}

	slog.Info("backfill complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
