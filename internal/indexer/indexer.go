// Package indexer applies decoded domain events to the entity store.
// One handler per event kind; every handler is idempotent under
// at-least-once delivery, so replaying a block never double-counts.
package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
	"github.com/potlock-network/potlock-indexer/pkg/near"
)

// TaskQueue is the deferred-work collaborator. Jobs are delivered
// at-least-once and must be idempotent downstream.
type TaskQueue interface {
	EnqueueDonationUSD(ctx context.Context, donationID uint64) error
	EnqueuePayoutUSD(ctx context.Context, payoutID uint64) error
}

// NopTaskQueue discards jobs. The backfill CLI uses it so replayed
// blocks do not flood the price queue.
type NopTaskQueue struct{}

func (NopTaskQueue) EnqueueDonationUSD(context.Context, uint64) error { return nil }
func (NopTaskQueue) EnqueuePayoutUSD(context.Context, uint64) error   { return nil }

// Indexer routes events to their handlers and performs the entity
// upserts.
type Indexer struct {
	store    *postgres.Store
	rpc      *near.Client
	tasks    TaskQueue
	handlers map[decoder.EventKind]handlerFunc
}

type handlerFunc func(ctx context.Context, ev decoder.Event) error

// New creates an Indexer and wires the dispatch table.
func New(store *postgres.Store, rpc *near.Client, tasks TaskQueue) *Indexer {
	idx := &Indexer{
		store: store,
		rpc:   rpc,
		tasks: tasks,
	}
	idx.handlers = map[decoder.EventKind]handlerFunc{
		decoder.KindPotDeploy:               idx.handlePotDeploy,
		decoder.KindPotConfigUpdate:         idx.handlePotConfigUpdate,
		decoder.KindNewApplication:          idx.handleNewApplication,
		decoder.KindApplicationStatusChange: idx.handleApplicationStatusChange,
		decoder.KindSetPayouts:              idx.handleSetPayouts,
		decoder.KindTransferPayout:          idx.handleTransferPayout,
		decoder.KindPayoutChallenge:         idx.handlePayoutChallenge,
		decoder.KindChallengeResponse:       idx.handleChallengeResponse,
		decoder.KindDirectDonation:          idx.handleDirectDonation,
		decoder.KindPotDonation:             idx.handlePotDonation,
		decoder.KindListCreate:              idx.handleListCreate,
		decoder.KindListRegistrationBatch:   idx.handleListRegistrationBatch,
		decoder.KindListRegistrationUpdate:  idx.handleListRegistrationUpdate,
		decoder.KindListUpvote:              idx.handleListUpvote,
		decoder.KindRoundCreate:             idx.handleRoundUpsert,
		decoder.KindRoundUpdate:             idx.handleRoundUpsert,
		decoder.KindVote:                    idx.handleVote,
		decoder.KindProviderRegister:        idx.handleProviderUpsert,
		decoder.KindProviderUpdate:          idx.handleProviderUpsert,
		decoder.KindStampAdd:                idx.handleStampAdd,
		decoder.KindBlacklistAdd:            idx.handleBlacklistAdd,
		decoder.KindGroupUpsert:             idx.handleGroupUpsert,
	}
	return idx
}

// HandledKinds returns the kinds present in the dispatch table; the
// exhaustiveness test checks it against decoder.Kinds.
func (idx *Indexer) HandledKinds() []decoder.EventKind {
	kinds := make([]decoder.EventKind, 0, len(idx.handlers))
	for k := range idx.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// ApplyBlock decodes a block and applies its events in order. A
// handler failure is logged with context and the remaining events still
// apply; one bad event never aborts the block or the stream.
func (idx *Indexer) ApplyBlock(ctx context.Context, block *near.Block) {
	start := time.Now()
	events := decoder.DecodeBlock(block)

	for _, ev := range events {
		handler, ok := idx.handlers[ev.Kind]
		if !ok {
			// Decoder only emits known kinds; reaching here is a bug.
			slog.Error("no handler for event kind", "kind", ev.Kind)
			continue
		}
		if err := handler(ctx, ev); err != nil {
			slog.Error("event handler failed",
				"kind", ev.Kind,
				"receipt_id", ev.Ctx.ReceiptID,
				"receiver", ev.Ctx.ReceiverID,
				"height", ev.Ctx.BlockHeight,
				"err", err,
			)
		}
	}

	slog.Debug("applied block",
		"height", block.Header.Height,
		"events", len(events),
		"duration", time.Since(start),
	)
}
