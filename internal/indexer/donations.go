package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

type donationPayload struct {
	ID           int64  `json:"id"`
	DonorID      string `json:"donor_id"`
	TotalAmount  string `json:"total_amount"`
	NetAmount    string `json:"net_amount"`
	FTID         string `json:"ft_id"`
	TokenID      string `json:"token_id"`
	Message      string `json:"message"`
	DonatedAtMs  uint64 `json:"donated_at_ms"`
	RecipientID  string `json:"recipient_id"`
	ProjectID    string `json:"project_id"`
	ProtocolFee  string `json:"protocol_fee"`
	ReferrerID   string `json:"referrer_id"`
	ReferrerFee  string `json:"referrer_fee"`
	ChefID       string `json:"chef_id"`
	ChefFee      string `json:"chef_fee"`
	MatchingPool bool   `json:"matching_pool"`
}

func (p donationPayload) token() string {
	if p.FTID != "" {
		return p.FTID
	}
	if p.TokenID != "" {
		return p.TokenID
	}
	return models.NativeTokenID
}

func (p donationPayload) recipient() string {
	if p.RecipientID != "" {
		return p.RecipientID
	}
	return p.ProjectID
}

func (idx *Indexer) handleDirectDonation(ctx context.Context, ev decoder.Event) error {
	return idx.applyDonation(ctx, ev, nil)
}

func (idx *Indexer) handlePotDonation(ctx context.Context, ev decoder.Event) error {
	potID := ev.Ctx.ReceiverID
	return idx.applyDonation(ctx, ev, &potID)
}

// applyDonation resolves every referenced account, fills token metadata
// for first-seen tokens, computes the net amount when the payload omits
// it, upserts the donation keyed by (on_chain_id, pot), records the
// audit activity and enqueues USD resolution as deferred work.
func (idx *Indexer) applyDonation(ctx context.Context, ev decoder.Event, potID *string) error {
	var payload donationPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode donation payload: %w", err)
	}

	donor := payload.DonorID
	if donor == "" {
		donor = ev.Ctx.SignerID
	}

	accounts := []string{donor, ev.Ctx.SignerID, ev.Ctx.ReceiverID}
	if r := payload.recipient(); r != "" {
		accounts = append(accounts, r)
	}
	if payload.ReferrerID != "" {
		accounts = append(accounts, payload.ReferrerID)
	}
	if payload.ChefID != "" {
		accounts = append(accounts, payload.ChefID)
	}
	for _, id := range accounts {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}

	tokenID := payload.token()
	if _, _, err := idx.store.GetOrCreateAccount(ctx, tokenID); err != nil {
		return err
	}
	_, tokenCreated, err := idx.store.GetOrCreateToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if tokenCreated && tokenID != models.NativeTokenID {
		// Metadata failure only leaves fields null for later backfill.
		idx.fetchTokenMetadata(ctx, tokenID)
	}

	netAmount := payload.NetAmount
	if netAmount == "" || netAmount == "0" {
		netAmount, err = computeNetAmount(payload.TotalAmount, payload.ProtocolFee, payload.ReferrerFee, payload.ChefFee)
		if err != nil {
			return fmt.Errorf("net amount for donation %d: %w", payload.ID, err)
		}
	}

	donatedAt := ev.Ctx.BlockTime
	if t := msTime(payload.DonatedAtMs); t != nil {
		donatedAt = *t
	}

	if potID != nil {
		if err := idx.ensurePot(ctx, ev, *potID); err != nil {
			return err
		}
	}

	donation := &models.Donation{
		OnChainID:    payload.ID,
		DonorID:      donor,
		TotalAmount:  payload.TotalAmount,
		NetAmount:    netAmount,
		TokenID:      tokenID,
		PotID:        potID,
		MatchingPool: payload.MatchingPool,
		Message:      strPtr(payload.Message),
		DonatedAt:    donatedAt,
		RecipientID:  strPtr(payload.recipient()),
		ProtocolFee:  orZero(payload.ProtocolFee),
		ReferrerID:   strPtr(payload.ReferrerID),
		ReferrerFee:  strPtr(payload.ReferrerFee),
		ChefID:       strPtr(payload.ChefID),
		ChefFee:      strPtr(payload.ChefFee),
		TxHash:       ev.Ctx.TxHash,
	}
	donationID, err := idx.store.UpsertDonation(ctx, donation)
	if err != nil {
		return err
	}

	if err := idx.recordActivity(ctx, ev, donationActivityType(potID, payload.MatchingPool)); err != nil {
		return err
	}

	// USD conversion happens off the ingestion path.
	if err := idx.tasks.EnqueueDonationUSD(ctx, donationID); err != nil {
		slog.Warn("enqueue donation price job failed", "donation_id", donationID, "err", err)
	}
	return nil
}

// donationActivityType picks the audit type: direct donations, pot
// matching-pool donations and pot public donations are distinct.
func donationActivityType(potID *string, matchingPool bool) models.ActivityType {
	switch {
	case potID == nil:
		return models.ActivityDonateDirect
	case matchingPool:
		return models.ActivityDonatePotMatchingPool
	default:
		return models.ActivityDonatePotPublic
	}
}

// ftMetadata is the token contract's metadata view shape.
type ftMetadata struct {
	Decimals int     `json:"decimals"`
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Icon     *string `json:"icon"`
}

// fetchTokenMetadata fills token metadata from ft_metadata. Failures
// are logged and swallowed; the donation proceeds with a bare token.
func (idx *Indexer) fetchTokenMetadata(ctx context.Context, tokenID string) {
	var meta ftMetadata
	if err := idx.rpc.ViewFunction(ctx, tokenID, "ft_metadata", struct{}{}, &meta); err != nil {
		slog.Warn("token metadata fetch failed", "token", tokenID, "err", err)
		return
	}
	if err := idx.store.UpdateTokenMetadata(ctx, tokenID, meta.Decimals, meta.Name, meta.Symbol, meta.Icon); err != nil {
		slog.Warn("token metadata update failed", "token", tokenID, "err", err)
	}
}
