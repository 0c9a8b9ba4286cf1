// Package worker consumes deferred USD-resolution jobs from Redis
// Streams. Jobs carry only an entity id; the worker re-reads the row,
// resolves the token price and overwrites the derived USD fields, so
// redelivery of the same job converges on the same state.
package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
	"github.com/potlock-network/potlock-indexer/pkg/prices"
	"github.com/redis/go-redis/v9"
)

// Config configures the worker.
type Config struct {
	RedisClient   redis.UniversalClient
	Store         *postgres.Store
	Prices        *prices.Client
	DonationTopic string
	PayoutTopic   string
	ConsumerGroup string
	RetryDelay    time.Duration // delay before redelivering a failed job
}

// QueueStats holds queue statistics for one stream.
type QueueStats struct {
	Topic        string
	StreamLength int64
	Pending      int64
	Consumers    int64
}

// Worker consumes price-resolution jobs and fills USD amounts.
type Worker struct {
	router        *message.Router
	store         *postgres.Store
	prices        *prices.Client
	redisClient   redis.UniversalClient
	donationTopic string
	payoutTopic   string
	consumerGroup string
	retryDelay    time.Duration
}

// New creates a new Worker.
func New(cfg Config) (*Worker, error) {
	logger := watermill.NewSlogLogger(nil)

	sub, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        cfg.RedisClient,
			ConsumerGroup: cfg.ConsumerGroup,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}

	w := &Worker{
		router:        router,
		store:         cfg.Store,
		prices:        cfg.Prices,
		redisClient:   cfg.RedisClient,
		donationTopic: cfg.DonationTopic,
		payoutTopic:   cfg.PayoutTopic,
		consumerGroup: cfg.ConsumerGroup,
		retryDelay:    cfg.RetryDelay,
	}

	router.AddNoPublisherHandler(
		"resolve-donation-usd",
		cfg.DonationTopic,
		sub,
		w.wrap(w.resolveDonation),
	)
	router.AddNoPublisherHandler(
		"resolve-payout-usd",
		cfg.PayoutTopic,
		sub,
		w.wrap(w.resolvePayout),
	)

	return w, nil
}

// wrap decodes the 8-byte id payload and applies the common ack/nack
// policy: malformed payloads are acked so they never loop, real
// failures are returned for redelivery after a delay.
func (w *Worker) wrap(fn func(ctx context.Context, id uint64) error) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()

		if len(msg.Payload) != 8 {
			slog.Warn("worker invalid payload",
				"msg_uuid", msg.UUID,
				"len", len(msg.Payload),
			)
			return nil // ack invalid messages to avoid infinite retry
		}
		id := binary.BigEndian.Uint64(msg.Payload)

		if err := fn(msg.Context(), id); err != nil {
			slog.Error("worker job failed",
				"id", id,
				"msg_uuid", msg.UUID,
				"duration_ms", time.Since(start).Milliseconds(),
				"err", err,
			)
			// Delay before retry to avoid hammering on errors
			time.Sleep(w.retryDelay)
			return err // will be redelivered
		}

		slog.Debug("worker job done",
			"id", id,
			"msg_uuid", msg.UUID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}

// resolveDonation fills the USD columns of one donation.
func (w *Worker) resolveDonation(ctx context.Context, donationID uint64) error {
	d, found, err := w.store.GetDonation(ctx, donationID)
	if err != nil {
		return err
	}
	if !found {
		slog.Warn("donation-usd job for unknown donation", "donation_id", donationID)
		return nil
	}

	price, decimals, ok, err := w.tokenPrice(ctx, d.TokenID, d.DonatedAt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("no usd price for donation token",
			"donation_id", donationID, "token", d.TokenID)
		return nil
	}

	usd := models.DonationUSDAmounts{}
	if usd.TotalAmountUSD, err = usdValue(d.TotalAmount, decimals, price); err != nil {
		return fmt.Errorf("total_amount: %w", err)
	}
	if usd.NetAmountUSD, err = usdValue(d.NetAmount, decimals, price); err != nil {
		return fmt.Errorf("net_amount: %w", err)
	}
	if usd.ProtocolFeeUSD, err = usdValue(d.ProtocolFee, decimals, price); err != nil {
		return fmt.Errorf("protocol_fee: %w", err)
	}
	if d.ReferrerFee != nil {
		v, err := usdValue(*d.ReferrerFee, decimals, price)
		if err != nil {
			return fmt.Errorf("referrer_fee: %w", err)
		}
		usd.ReferrerFeeUSD = &v
	}
	if d.ChefFee != nil {
		v, err := usdValue(*d.ChefFee, decimals, price)
		if err != nil {
			return fmt.Errorf("chef_fee: %w", err)
		}
		usd.ChefFeeUSD = &v
	}

	return w.store.SetDonationUSD(ctx, donationID, usd)
}

// resolvePayout fills the USD amount of one payout. Unpaid payouts are
// priced at the current time, paid ones at their transfer time.
func (w *Worker) resolvePayout(ctx context.Context, payoutID uint64) error {
	p, found, err := w.store.GetPayout(ctx, payoutID)
	if err != nil {
		return err
	}
	if !found {
		slog.Warn("payout-usd job for unknown payout", "payout_id", payoutID)
		return nil
	}

	at := time.Now().UTC()
	if p.PaidAt != nil {
		at = *p.PaidAt
	}

	price, decimals, ok, err := w.tokenPrice(ctx, p.TokenID, at)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("no usd price for payout token",
			"payout_id", payoutID, "token", p.TokenID)
		return nil
	}

	amountUSD, err := usdValue(p.Amount, decimals, price)
	if err != nil {
		return fmt.Errorf("payout amount: %w", err)
	}
	return w.store.SetPayoutUSD(ctx, payoutID, amountUSD)
}

// tokenPrice resolves the token's USD price and decimals at a point in
// time. A token without a known external price id or decimals cannot
// be converted; that is a skip, not a retryable failure, except for
// rate limits which do get retried.
func (w *Worker) tokenPrice(ctx context.Context, tokenID string, at time.Time) (price string, decimals int, ok bool, err error) {
	tok, _, err := w.store.GetOrCreateToken(ctx, tokenID)
	if err != nil {
		return "", 0, false, err
	}

	decimals = nativeDecimals
	if tok.Decimals != nil {
		decimals = *tok.Decimals
	} else if tokenID != models.NativeTokenID {
		return "", 0, false, nil
	}

	cgID := ""
	switch {
	case tok.CoingeckoID != nil:
		cgID = *tok.CoingeckoID
	case tokenID == models.NativeTokenID:
		cgID = models.NativeTokenID
	default:
		// First job touching this token: resolve its price id by
		// contract address and persist it for later jobs.
		id, found, err := w.prices.CoinIDByContract(ctx, tokenID)
		if err != nil {
			if errors.Is(err, prices.ErrRateLimited) {
				return "", 0, false, err
			}
			return "", 0, false, fmt.Errorf("coin id lookup %s: %w", tokenID, err)
		}
		if found {
			if err := w.store.SetTokenCoingeckoID(ctx, tokenID, id); err != nil {
				slog.Warn("coingecko id write failed", "token", tokenID, "err", err)
			}
			cgID = id
		}
	}

	price, found, err := w.prices.PriceAt(ctx, tokenID, cgID, at)
	if err != nil {
		if errors.Is(err, prices.ErrRateLimited) {
			return "", 0, false, err
		}
		return "", 0, false, fmt.Errorf("price lookup %s: %w", tokenID, err)
	}
	return price, decimals, found, nil
}

// Run starts the worker. It blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Close closes the worker.
func (w *Worker) Close() error {
	return w.router.Close()
}

// QueueStats returns current statistics for both job streams.
func (w *Worker) QueueStats(ctx context.Context) ([]QueueStats, error) {
	var all []QueueStats
	for _, topic := range []string{w.donationTopic, w.payoutTopic} {
		stats := QueueStats{Topic: topic}

		length, err := w.redisClient.XLen(ctx, topic).Result()
		if err != nil {
			return nil, err
		}
		stats.StreamLength = length

		groups, err := w.redisClient.XInfoGroups(ctx, topic).Result()
		if err != nil {
			// Stream might not exist yet
			all = append(all, stats)
			continue
		}
		for _, g := range groups {
			if g.Name == w.consumerGroup {
				stats.Pending = g.Pending
				stats.Consumers = g.Consumers
				break
			}
		}
		all = append(all, stats)
	}
	return all, nil
}

// LogQueueStats logs current queue statistics.
func (w *Worker) LogQueueStats(ctx context.Context) {
	all, err := w.QueueStats(ctx)
	if err != nil {
		slog.Warn("worker queue stats error", "err", err)
		return
	}
	for _, stats := range all {
		slog.Info("worker queue stats",
			"topic", stats.Topic,
			"stream_length", stats.StreamLength,
			"pending", stats.Pending,
			"consumers", stats.Consumers,
		)
	}
}
