// Package publisher submits deferred USD-resolution jobs to Redis
// Streams. Delivery is at-least-once; the worker's writes are
// idempotent overwrites, so duplicates are harmless.
package publisher

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// Publisher publishes price-resolution job ids to Redis Streams.
type Publisher struct {
	pub           message.Publisher
	redisClient   redis.UniversalClient
	donationTopic string
	payoutTopic   string
}

// New creates a new Publisher.
func New(redisClient redis.UniversalClient, donationTopic, payoutTopic string) (*Publisher, error) {
	logger := watermill.NewSlogLogger(nil)

	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		pub:           pub,
		redisClient:   redisClient,
		donationTopic: donationTopic,
		payoutTopic:   payoutTopic,
	}, nil
}

// EnqueueDonationUSD submits a donation-USD resolution job.
func (p *Publisher) EnqueueDonationUSD(ctx context.Context, donationID uint64) error {
	return p.publishID(p.donationTopic, donationID)
}

// EnqueuePayoutUSD submits a payout-USD resolution job.
func (p *Publisher) EnqueuePayoutUSD(ctx context.Context, payoutID uint64) error {
	return p.publishID(p.payoutTopic, payoutID)
}

// publishID publishes an entity id as an 8-byte payload.
func (p *Publisher) publishID(topic string, id uint64) error {
	start := time.Now()

	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, id)

	msgUUID := watermill.NewUUID()
	msg := message.NewMessage(msgUUID, payload)

	err := p.pub.Publish(topic, msg)
	duration := time.Since(start)

	if err != nil {
		slog.Error("redis publish failed",
			"topic", topic,
			"id", id,
			"msg_uuid", msgUUID,
			"duration_ms", duration.Milliseconds(),
			"err", err,
		)
		return err
	}

	slog.Debug("redis publish ok",
		"topic", topic,
		"id", id,
		"msg_uuid", msgUUID,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// QueueLength returns the number of messages in a job stream.
func (p *Publisher) QueueLength(ctx context.Context, topic string) (int64, error) {
	return p.redisClient.XLen(ctx, topic).Result()
}

// DonationTopic returns the donation-USD stream topic name.
func (p *Publisher) DonationTopic() string {
	return p.donationTopic
}

// PayoutTopic returns the payout-USD stream topic name.
func (p *Publisher) PayoutTopic() string {
	return p.payoutTopic
}
