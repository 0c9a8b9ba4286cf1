package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

type payoutEntry struct {
	ProjectID string `json:"project_id"`
	Amount    string `json:"amount"`
}

type setPayoutsPayload struct {
	Payouts []payoutEntry `json:"payouts"`
}

// handleSetPayouts bulk-creates payout rows with paid_at null, skipping
// duplicates, then refreshes the pot's cooldown deadline from
// authoritative config.
func (idx *Indexer) handleSetPayouts(ctx context.Context, ev decoder.Event) error {
	var payload setPayoutsPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode set payouts payload: %w", err)
	}

	potID := ev.Ctx.ReceiverID
	if err := idx.ensurePot(ctx, ev, potID); err != nil {
		return err
	}
	if _, _, err := idx.store.GetOrCreateAccount(ctx, models.NativeTokenID); err != nil {
		return err
	}
	if _, _, err := idx.store.GetOrCreateToken(ctx, models.NativeTokenID); err != nil {
		return err
	}

	payouts := make([]models.PotPayout, 0, len(payload.Payouts))
	for _, entry := range payload.Payouts {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, entry.ProjectID); err != nil {
			return err
		}
		payouts = append(payouts, models.PotPayout{
			PotID:       potID,
			RecipientID: entry.ProjectID,
			Amount:      entry.Amount,
			TokenID:     models.NativeTokenID,
		})
	}
	if err := idx.store.BulkInsertPayouts(ctx, payouts); err != nil {
		return err
	}

	// Best-effort refresh; a failed view call leaves the old deadline.
	var cfg potConfig
	if err := idx.rpc.ViewFunction(ctx, potID, "get_config", struct{}{}, &cfg); err != nil {
		slog.Warn("cooldown refresh failed", "pot", potID, "err", err)
	} else if cfg.CooldownEndMs > 0 {
		if err := idx.store.SetPotCooldownEnd(ctx, potID, msTime(cfg.CooldownEndMs)); err != nil {
			return err
		}
	}

	return idx.recordActivity(ctx, ev, models.ActivityProcessPayouts)
}

type transferPayoutPayload struct {
	ProjectID   string `json:"project_id"`
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
}

func (p transferPayoutPayload) recipient() string {
	if p.RecipientID != "" {
		return p.RecipientID
	}
	return p.ProjectID
}

// handleTransferPayout fulfils the matching payout row, queues its USD
// conversion and re-checks the pot's all-paid-out flag against
// authoritative config.
func (idx *Indexer) handleTransferPayout(ctx context.Context, ev decoder.Event) error {
	var payload transferPayoutPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode transfer payout payload: %w", err)
	}

	potID := ev.Ctx.ReceiverID
	if err := idx.ensurePot(ctx, ev, potID); err != nil {
		return err
	}
	for _, id := range []string{payload.recipient(), models.NativeTokenID} {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}
	if _, _, err := idx.store.GetOrCreateToken(ctx, models.NativeTokenID); err != nil {
		return err
	}

	payoutID, err := idx.store.MarkPayoutPaid(ctx, potID, payload.recipient(), payload.Amount, models.NativeTokenID, ev.Ctx.TxHash, ev.Ctx.BlockTime)
	if err != nil {
		return err
	}

	var cfg potConfig
	if err := idx.rpc.ViewFunction(ctx, potID, "get_config", struct{}{}, &cfg); err != nil {
		slog.Warn("all_paid_out refresh failed", "pot", potID, "err", err)
	} else if err := idx.store.SetPotAllPaidOut(ctx, potID, cfg.AllPaidOut); err != nil {
		return err
	}

	if err := idx.recordActivity(ctx, ev, models.ActivityTransferPayout); err != nil {
		return err
	}

	// USD conversion happens off the ingestion path.
	if err := idx.tasks.EnqueuePayoutUSD(ctx, payoutID); err != nil {
		slog.Warn("enqueue payout price job failed", "payout_id", payoutID, "err", err)
	}
	return nil
}

type challengePayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (p challengePayload) text() string {
	if p.Reason != "" {
		return p.Reason
	}
	return p.Message
}

// handlePayoutChallenge update-or-creates the challenge keyed by
// (challenger, pot).
func (idx *Indexer) handlePayoutChallenge(ctx context.Context, ev decoder.Event) error {
	var payload challengePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode challenge payload: %w", err)
	}

	if _, _, err := idx.store.GetOrCreateAccount(ctx, ev.Ctx.SignerID); err != nil {
		return err
	}
	if err := idx.ensurePot(ctx, ev, ev.Ctx.ReceiverID); err != nil {
		return err
	}

	if err := idx.store.UpsertPayoutChallenge(ctx, &models.PotPayoutChallenge{
		ChallengerID: ev.Ctx.SignerID,
		PotID:        ev.Ctx.ReceiverID,
		Message:      payload.text(),
		CreatedAt:    ev.Ctx.BlockTime,
	}); err != nil {
		return err
	}

	return idx.recordActivity(ctx, ev, models.ActivityChallengePayout)
}

type challengeResponsePayload struct {
	ChallengerID     string `json:"challenger_id"`
	Notes            string `json:"notes"`
	Message          string `json:"message"`
	ResolveChallenge bool   `json:"resolve_challenge"`
}

// handleChallengeResponse appends the admin response keyed by
// (challenger, pot, created_at).
func (idx *Indexer) handleChallengeResponse(ctx context.Context, ev decoder.Event) error {
	var payload challengeResponsePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode challenge response payload: %w", err)
	}

	for _, id := range []string{payload.ChallengerID, ev.Ctx.SignerID} {
		if id == "" {
			continue
		}
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}
	if err := idx.ensurePot(ctx, ev, ev.Ctx.ReceiverID); err != nil {
		return err
	}

	msg := payload.Notes
	if msg == "" {
		msg = payload.Message
	}

	return idx.store.UpsertChallengeResponse(ctx, &models.PotPayoutChallengeAdminResponse{
		ChallengerID: payload.ChallengerID,
		PotID:        ev.Ctx.ReceiverID,
		AdminID:      ev.Ctx.SignerID,
		Message:      msg,
		ResolveChall: payload.ResolveChallenge,
		CreatedAt:    ev.Ctx.BlockTime,
		TxHash:       ev.Ctx.TxHash,
	})
}
