package indexer

import (
	"context"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// recordActivity upserts the audit row for an event. The raw decoded
// payload is the action_result; together with the type it forms the
// dedup key, so a replayed event collapses into the existing row.
func (idx *Indexer) recordActivity(ctx context.Context, ev decoder.Event, typ models.ActivityType) error {
	if _, _, err := idx.store.GetOrCreateAccount(ctx, ev.Ctx.SignerID); err != nil {
		return err
	}
	if _, _, err := idx.store.GetOrCreateAccount(ctx, ev.Ctx.ReceiverID); err != nil {
		return err
	}

	return idx.store.UpsertActivity(ctx, &models.Activity{
		SignerID:     ev.Ctx.SignerID,
		ReceiverID:   ev.Ctx.ReceiverID,
		Timestamp:    ev.Ctx.BlockTime,
		ActionResult: ev.Payload,
		TxHash:       ev.Ctx.TxHash,
		Type:         typ,
	})
}
