package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// ensureRegistry makes sure the receipt's receiver exists as a trust
// registry before any provider, stamp or blacklist row references it.
func (idx *Indexer) ensureRegistry(ctx context.Context, ev decoder.Event) error {
	for _, id := range []string{ev.Ctx.ReceiverID, ev.Ctx.SignerID} {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}
	return idx.store.UpsertNadabotRegistry(ctx, &models.NadabotRegistry{
		AccountID: ev.Ctx.ReceiverID,
		OwnerID:   ev.Ctx.ReceiverID,
		CreatedAt: ev.Ctx.BlockTime,
		UpdatedAt: ev.Ctx.BlockTime,
	})
}

type providerPayload struct {
	ID            uint64  `json:"id"`
	ProviderID    uint64  `json:"provider_id"`
	ContractID    string  `json:"contract_id"`
	MethodName    string  `json:"method_name"`
	Name          string  `json:"provider_name"`
	Description   *string `json:"description"`
	Status        string  `json:"status"`
	AdminNotes    *string `json:"admin_notes"`
	DefaultWeight uint64  `json:"default_weight"`
	GasAttached   *uint64 `json:"gas"`
	SubmittedAtMs uint64  `json:"submitted_at_ms"`
	StampCount    uint64  `json:"stamp_count"`
	AccountIDArg  string  `json:"account_id_arg_name"`
	ExternalURL   *string `json:"external_url"`
	IconURL       *string `json:"icon_url"`
}

func (p providerPayload) onChainID() uint64 {
	if p.ProviderID != 0 {
		return p.ProviderID
	}
	return p.ID
}

// handleProviderUpsert serves both registration and update events; the
// store substitutes a counter-backed id for the sentinel placeholder.
func (idx *Indexer) handleProviderUpsert(ctx context.Context, ev decoder.Event) error {
	var envelope struct {
		Provider *providerPayload `json:"provider"`
	}
	var payload providerPayload
	if err := json.Unmarshal(ev.Payload, &envelope); err == nil && envelope.Provider != nil {
		payload = *envelope.Provider
	} else if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode provider payload: %w", err)
	}

	if err := idx.ensureRegistry(ctx, ev); err != nil {
		return err
	}

	accountIDArg := payload.AccountIDArg
	if accountIDArg == "" {
		accountIDArg = "account_id"
	}

	_, err := idx.store.UpsertProvider(ctx, &models.Provider{
		OnChainID:     payload.onChainID(),
		RegistryID:    ev.Ctx.ReceiverID,
		ContractID:    payload.ContractID,
		MethodName:    payload.MethodName,
		Name:          payload.Name,
		Description:   payload.Description,
		Status:        payload.Status,
		AdminNotes:    payload.AdminNotes,
		DefaultWeight: payload.DefaultWeight,
		GasAttached:   payload.GasAttached,
		SubmittedAt:   orBlockTime(msTime(payload.SubmittedAtMs), ev),
		StampCount:    payload.StampCount,
		AccountIDArg:  accountIDArg,
		ExternalURL:   payload.ExternalURL,
		IconURL:       payload.IconURL,
	})
	return err
}

type stampPayload struct {
	UserID        string `json:"user_id"`
	ProviderID    uint64 `json:"provider_id"`
	ValidatedAtMs uint64 `json:"validated_at_ms"`
}

// handleStampAdd records a verification proof. The payload references
// the provider by on-chain id; resolution goes through the registry so
// sentinel-substituted providers still match.
func (idx *Indexer) handleStampAdd(ctx context.Context, ev decoder.Event) error {
	var envelope struct {
		Stamp *stampPayload `json:"stamp"`
	}
	var payload stampPayload
	if err := json.Unmarshal(ev.Payload, &envelope); err == nil && envelope.Stamp != nil {
		payload = *envelope.Stamp
	} else if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode stamp payload: %w", err)
	}

	userID := payload.UserID
	if userID == "" {
		userID = ev.Ctx.SignerID
	}
	if err := idx.ensureRegistry(ctx, ev); err != nil {
		return err
	}
	if _, _, err := idx.store.GetOrCreateAccount(ctx, userID); err != nil {
		return err
	}

	provider, found, err := idx.store.ProviderByOnChainID(ctx, ev.Ctx.ReceiverID, payload.ProviderID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("stamp for unknown provider %d in %s", payload.ProviderID, ev.Ctx.ReceiverID)
	}

	return idx.store.UpsertStamp(ctx, &models.Stamp{
		UserID:     userID,
		ProviderID: provider.ID,
		VerifiedAt: orBlockTime(msTime(payload.ValidatedAtMs), ev),
	})
}

type blacklistPayload struct {
	Accounts []string `json:"accounts"`
	Account  string   `json:"account_id"`
	Reason   *string  `json:"reason"`
}

func (p blacklistPayload) accounts() []string {
	if len(p.Accounts) > 0 {
		return p.Accounts
	}
	if p.Account != "" {
		return []string{p.Account}
	}
	return nil
}

// handleBlacklistAdd bars one or more accounts from the registry.
func (idx *Indexer) handleBlacklistAdd(ctx context.Context, ev decoder.Event) error {
	var payload blacklistPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode blacklist payload: %w", err)
	}
	if err := idx.ensureRegistry(ctx, ev); err != nil {
		return err
	}

	for _, accountID := range payload.accounts() {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, accountID); err != nil {
			return err
		}
		err := idx.store.UpsertBlacklistEntry(ctx, &models.BlackList{
			RegistryID: ev.Ctx.ReceiverID,
			AccountID:  accountID,
			Reason:     payload.Reason,
			CreatedAt:  ev.Ctx.BlockTime,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type groupPayload struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Rule      json.RawMessage `json:"rule"`
	Providers []uint64        `json:"providers"`
}

// groupRule normalizes the on-chain rule enum, which arrives either as
// a bare string ("Highest") or an object ({"Sum": 100}).
func groupRule(raw json.RawMessage) (*string, *uint64) {
	if len(raw) == 0 {
		return nil, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return &name, nil
	}
	var obj map[string]uint64
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			return &k, &v
		}
	}
	return nil, nil
}

// handleGroupUpsert creates or refreshes a provider group and replaces
// its member set. Members referencing unknown providers are skipped.
func (idx *Indexer) handleGroupUpsert(ctx context.Context, ev decoder.Event) error {
	var envelope struct {
		Group *groupPayload `json:"group"`
	}
	var payload groupPayload
	if err := json.Unmarshal(ev.Payload, &envelope); err == nil && envelope.Group != nil {
		payload = *envelope.Group
	} else if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode group payload: %w", err)
	}

	if err := idx.ensureRegistry(ctx, ev); err != nil {
		return err
	}

	var memberIDs []uint64
	for _, onChainID := range payload.Providers {
		provider, found, err := idx.store.ProviderByOnChainID(ctx, ev.Ctx.ReceiverID, onChainID)
		if err != nil {
			return err
		}
		if !found {
			slog.Warn("group member references unknown provider",
				"registry", ev.Ctx.ReceiverID, "group", payload.ID, "provider", onChainID)
			continue
		}
		memberIDs = append(memberIDs, provider.ID)
	}

	ruleType, ruleVal := groupRule(payload.Rule)
	return idx.store.UpsertGroup(ctx, &models.Group{
		ID:         payload.ID,
		RegistryID: ev.Ctx.ReceiverID,
		Name:       payload.Name,
		RuleType:   ruleType,
		RuleVal:    ruleVal,
		CreatedAt:  ev.Ctx.BlockTime,
		UpdatedAt:  ev.Ctx.BlockTime,
	}, memberIDs)
}
