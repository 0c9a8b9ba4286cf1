package indexer

import (
	"context"
	"log/slog"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// A child event can reference a pot, list or round that was deployed
// before the indexing start height, so no create event for it was ever
// seen. These resolvers materialize the missing parent on first
// reference: from authoritative contract state when the view call
// succeeds, otherwise as a minimal row that later events enrich. A
// child event never fails on a foreign key to a pre-start parent.

func (idx *Indexer) ensurePot(ctx context.Context, ev decoder.Event, potID string) error {
	exists, err := idx.store.PotExists(ctx, potID)
	if err != nil || exists {
		return err
	}

	if _, _, err := idx.store.GetOrCreateAccount(ctx, potID); err != nil {
		return err
	}
	if err := idx.refreshPotConfig(ctx, potID); err == nil {
		return nil
	}

	slog.Warn("materializing minimal pot", "pot", potID)
	return idx.store.UpsertPot(ctx, &models.Pot{
		AccountID:               potID,
		DeployerID:              potID,
		OwnerID:                 potID,
		MinMatchingPoolDonation: "0",
		DeployedAt:              ev.Ctx.BlockTime,
	})
}

func (idx *Indexer) ensureList(ctx context.Context, ev decoder.Event, listID uint64) error {
	exists, err := idx.store.ListExists(ctx, listID)
	if err != nil || exists {
		return err
	}

	args := struct {
		ListID uint64 `json:"list_id"`
	}{ListID: listID}
	var payload listPayload
	if err := idx.rpc.ViewFunction(ctx, ev.Ctx.ReceiverID, "get_list", args, &payload); err == nil && payload.ID == listID {
		return idx.applyList(ctx, ev, payload)
	}

	slog.Warn("materializing minimal list", "list_id", listID)
	owner := ev.Ctx.SignerID
	if _, _, err := idx.store.GetOrCreateAccount(ctx, owner); err != nil {
		return err
	}
	return idx.store.CreateList(ctx, &models.List{
		ID:               listID,
		OwnerID:          owner,
		DefaultRegStatus: models.RegistrationPending,
		CreatedAt:        ev.Ctx.BlockTime,
		UpdatedAt:        ev.Ctx.BlockTime,
	})
}

func (idx *Indexer) ensureRound(ctx context.Context, ev decoder.Event, roundID uint64) error {
	exists, err := idx.store.RoundExists(ctx, roundID)
	if err != nil || exists {
		return err
	}

	args := struct {
		RoundID uint64 `json:"round_id"`
	}{RoundID: roundID}
	var payload roundPayload
	if err := idx.rpc.ViewFunction(ctx, ev.Ctx.ReceiverID, "get_round", args, &payload); err == nil && payload.ID == roundID {
		return idx.applyRound(ctx, ev, payload)
	}

	slog.Warn("materializing minimal round", "round_id", roundID)
	owner := ev.Ctx.SignerID
	if _, _, err := idx.store.GetOrCreateAccount(ctx, owner); err != nil {
		return err
	}
	return idx.store.UpsertRound(ctx, &models.Round{
		ID:                  roundID,
		DeployerID:          owner,
		OwnerID:             owner,
		ExpectedAmount:      "0",
		CurrentVaultBalance: "0",
		VaultTotalDeposits:  "0",
		CreatedAt:           ev.Ctx.BlockTime,
		UpdatedAt:           ev.Ctx.BlockTime,
	})
}
