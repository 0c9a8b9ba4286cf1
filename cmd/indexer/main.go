package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/potlock-network/potlock-indexer/internal/api"
	"github.com/potlock-network/potlock-indexer/internal/api/handler"
	"github.com/potlock-network/potlock-indexer/internal/backfill"
	"github.com/potlock-network/potlock-indexer/internal/config"
	"github.com/potlock-network/potlock-indexer/internal/coordinator"
	"github.com/potlock-network/potlock-indexer/internal/indexer"
	"github.com/potlock-network/potlock-indexer/internal/listener"
	"github.com/potlock-network/potlock-indexer/internal/publisher"
	"github.com/potlock-network/potlock-indexer/internal/worker"
	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
	"github.com/potlock-network/potlock-indexer/pkg/near"
	"github.com/potlock-network/potlock-indexer/pkg/prices"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	slog.Info("starting potlock-indexer",
		"rpc_endpoints", len(cfg.RPCEndpoints),
		"ws_enabled", cfg.WSURL != "",
		"http_enabled", cfg.HTTPEnabled,
	)

	// Connect to PostgreSQL
	store, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		slog.Error("failed to init schema", "err", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis url", "err", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Create RPC client
	rpc := near.NewWithOpts(near.Opts{
		Endpoints: cfg.RPCEndpoints,
		RPS:       cfg.RPCRPS,
		Burst:     cfg.RPCBurst,
	})

	// Create publisher
	pub, err := publisher.New(redisClient, cfg.DonationTopic, cfg.PayoutTopic)
	if err != nil {
		slog.Error("failed to create publisher", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	// Create indexer
	idx := indexer.New(store, rpc, pub)

	// Create worker
	priceClient := prices.New(store, prices.Config{
		BaseURL:     cfg.PriceAPIURL,
		CacheWindow: cfg.PriceCacheWindow,
	})
	wrk, err := worker.New(worker.Config{
		RedisClient:   redisClient,
		Store:         store,
		Prices:        priceClient,
		DonationTopic: cfg.DonationTopic,
		PayoutTopic:   cfg.PayoutTopic,
		ConsumerGroup: cfg.ConsumerGroup,
	})
	if err != nil {
		slog.Error("failed to create worker", "err", err)
		os.Exit(1)
	}
	defer wrk.Close()

	// Create streamer and coordinator
	streamer := near.NewStreamer(rpc, near.StreamerConfig{
		PollInterval: cfg.StreamPollInterval,
		Prefetch:     cfg.StreamPrefetch,
	})
	coord := coordinator.New(streamer, idx, store, rpc.ChainHead, coordinator.Config{
		InitialBackoff: cfg.BackoffInitial,
		MaxBackoff:     cfg.BackoffMax,
	})
	mgr := coordinator.NewManager(ctx, coord)

	if err := mgr.Start(coordinator.StartOptions{
		FromHeight: cfg.StartHeight,
		FromLatest: cfg.StartFromLatest,
	}); err != nil {
		slog.Error("failed to start indexing", "err", err)
		os.Exit(1)
	}

	// Run all components
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting worker")
		return wrk.Run(ctx)
	})

	// Optional: websocket head feed wakes the streamer early
	if cfg.WSURL != "" {
		lst := listener.New(listener.Config{
			URL:            cfg.WSURL,
			MaxRetries:     cfg.WSMaxRetries,
			ReconnectDelay: cfg.WSReconnectDelay,
		}, streamer.SetHead)
		g.Go(func() error {
			if err := lst.Run(ctx); err != nil && ctx.Err() == nil {
				// The streamer's polling covers for a dead feed.
				slog.Warn("head listener stopped", "err", err)
			}
			return nil
		})
	}

	// Optional: admin API
	if cfg.HTTPEnabled {
		zlog, err := zap.NewProduction()
		if err != nil {
			slog.Error("failed to create zap logger", "err", err)
			os.Exit(1)
		}
		defer zlog.Sync()

		reindex := func(ctx context.Context, start, end uint64) error {
			bfCfg := backfill.LoadConfig()
			bfCfg.StartHeight = start
			bfCfg.EndHeight = end
			_, err := backfill.New(rpc, store, idx, bfCfg).Run(ctx)
			return err
		}

		h := handler.NewHandler(mgr, store, queueStats{wrk}, reindex, zlog, cfg.AdminToken)
		srv := api.NewServer(h, zlog, cfg.HTTPAddr)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("indexer error", "err", err)
		os.Exit(1)
	}

	mgr.Stop()
	slog.Info("shutdown complete")
}

// queueStats adapts the worker's stats to the API handler's shape.
type queueStats struct {
	wrk *worker.Worker
}

func (q queueStats) QueueStats(ctx context.Context) ([]handler.QueueStats, error) {
	all, err := q.wrk.QueueStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]handler.QueueStats, 0, len(all))
	for _, s := range all {
		out = append(out, handler.QueueStats{
			Topic:        s.Topic,
			StreamLength: s.StreamLength,
			Pending:      s.Pending,
			Consumers:    s.Consumers,
		})
	}
	return out, nil
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
