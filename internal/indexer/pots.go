package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// potConfig is the contract's config shape, used both in deploy
// payloads and get_config view results.
type potConfig struct {
	Owner                   string   `json:"owner"`
	Admins                  []string `json:"admins"`
	Chef                    string   `json:"chef"`
	PotName                 string   `json:"pot_name"`
	PotDescription          string   `json:"pot_description"`
	MaxProjects             uint64   `json:"max_projects"`
	BaseCurrency            string   `json:"base_currency"`
	ApplicationStartMs      uint64   `json:"application_start_ms"`
	ApplicationEndMs        uint64   `json:"application_end_ms"`
	PublicRoundStartMs      uint64   `json:"public_round_start_ms"`
	PublicRoundEndMs        uint64   `json:"public_round_end_ms"`
	DeployedBy              string   `json:"deployed_by"`
	RegistryProvider        string   `json:"registry_provider"`
	MinMatchingPoolDonation string   `json:"min_matching_pool_donation_amount"`
	SybilWrapperProvider    string   `json:"sybil_wrapper_provider"`
	CustomSybilChecks       string   `json:"custom_sybil_checks"`
	CustomMinThreshold      *uint64  `json:"custom_min_threshold_score"`
	ReferralFeeMatchingBPS  uint64   `json:"referral_fee_matching_pool_basis_points"`
	ReferralFeePublicBPS    uint64   `json:"referral_fee_public_round_basis_points"`
	ChefFeeBPS              uint64   `json:"chef_fee_basis_points"`
	CooldownEndMs           uint64   `json:"cooldown_end_ms"`
	CooldownPeriodMs        *uint64  `json:"cooldown_period_ms"`
	AllPaidOut              bool     `json:"all_paid_out"`
	ProtocolConfigProvider  string   `json:"protocol_config_provider"`
	TotalMatchingPool       string   `json:"total_matching_pool"`
	MatchingPoolBalance     string   `json:"matching_pool_balance"`
}

// potDeployPayload wraps the config with the deployed pot account.
type potDeployPayload struct {
	PotAccountID string     `json:"pot_account_id"`
	Config       *potConfig `json:"pot_config"`
	// Flat variants: some emitters inline the config fields.
	potConfig
}

func (p *potDeployPayload) config() *potConfig {
	if p.Config != nil {
		return p.Config
	}
	return &p.potConfig
}

// handlePotDeploy creates the pot, or treats a replayed deploy for an
// existing pot as a config update against authoritative RPC state.
func (idx *Indexer) handlePotDeploy(ctx context.Context, ev decoder.Event) error {
	var payload potDeployPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode pot deploy payload: %w", err)
	}

	cfg := payload.config()
	potID := payload.PotAccountID
	if potID == "" {
		potID = ev.Ctx.ReceiverID
	}

	exists, err := idx.store.PotExists(ctx, potID)
	if err != nil {
		return err
	}
	if exists {
		// A pot is deployed once; seeing it again means we replayed or
		// missed a config update. Refetch the authoritative config.
		return idx.refreshPotConfig(ctx, potID)
	}

	if err := idx.upsertPotFromConfig(ctx, ev, potID, cfg); err != nil {
		return err
	}

	return idx.recordActivity(ctx, ev, models.ActivityDeployPot)
}

// handlePotConfigUpdate overwrites the pot's config in place from the
// authoritative view call; the pot is never recreated.
func (idx *Indexer) handlePotConfigUpdate(ctx context.Context, ev decoder.Event) error {
	if err := idx.refreshPotConfig(ctx, ev.Ctx.ReceiverID); err != nil {
		return err
	}
	return idx.recordActivity(ctx, ev, models.ActivityUpdatePotConfig)
}

// refreshPotConfig fetches get_config from the pot contract and
// overwrites the stored configuration. RPC failure is logged and
// returned; the caller's event fails alone without stopping the block.
func (idx *Indexer) refreshPotConfig(ctx context.Context, potID string) error {
	var cfg potConfig
	if err := idx.rpc.ViewFunction(ctx, potID, "get_config", struct{}{}, &cfg); err != nil {
		slog.Warn("pot config fetch failed", "pot", potID, "err", err)
		return err
	}
	return idx.applyPotConfig(ctx, potID, &cfg)
}

func (idx *Indexer) upsertPotFromConfig(ctx context.Context, ev decoder.Event, potID string, cfg *potConfig) error {
	deployer := cfg.DeployedBy
	if deployer == "" {
		deployer = ev.Ctx.SignerID
	}

	// Every referenced address resolves via get-or-create; an event is
	// never failed because an account has not been seen yet.
	for _, id := range []string{potID, cfg.Owner, deployer, ev.Ctx.SignerID} {
		if id == "" {
			continue
		}
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}
	if cfg.Chef != "" {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, cfg.Chef); err != nil {
			return err
		}
	}

	var factoryID *string
	if ev.Ctx.SignerID != "" && ev.Ctx.ReceiverID != potID {
		// Deploys come through the factory contract as receiver.
		if _, _, err := idx.store.GetOrCreateAccount(ctx, ev.Ctx.ReceiverID); err != nil {
			return err
		}
		if err := idx.store.UpsertPotFactory(ctx, &models.PotFactory{
			AccountID:  ev.Ctx.ReceiverID,
			OwnerID:    ev.Ctx.ReceiverID,
			DeployedAt: ev.Ctx.BlockTime,
		}); err != nil {
			return err
		}
		factoryID = &ev.Ctx.ReceiverID
	}

	pot := &models.Pot{
		AccountID:                potID,
		FactoryID:                factoryID,
		DeployerID:               deployer,
		OwnerID:                  cfg.Owner,
		ChefID:                   strPtr(cfg.Chef),
		Name:                     cfg.PotName,
		Description:              cfg.PotDescription,
		MaxApprovedApplicants:    cfg.MaxProjects,
		BaseCurrency:             strPtr(cfg.BaseCurrency),
		ApplicationStart:         msTime(cfg.ApplicationStartMs),
		ApplicationEnd:           msTime(cfg.ApplicationEndMs),
		MatchingRoundStart:       msTime(cfg.PublicRoundStartMs),
		MatchingRoundEnd:         msTime(cfg.PublicRoundEndMs),
		RegistryProviderID:       strPtr(cfg.RegistryProvider),
		MinMatchingPoolDonation:  orZero(cfg.MinMatchingPoolDonation),
		SybilWrapperProviderID:   strPtr(cfg.SybilWrapperProvider),
		CustomSybilChecks:        strPtr(cfg.CustomSybilChecks),
		CustomMinThreshold:       cfg.CustomMinThreshold,
		ReferralFeeMatchingBPS:   cfg.ReferralFeeMatchingBPS,
		ReferralFeePublicBPS:     cfg.ReferralFeePublicBPS,
		ChefFeeBPS:               cfg.ChefFeeBPS,
		CooldownPeriodMs:         cfg.CooldownPeriodMs,
		ProtocolConfigProviderID: strPtr(cfg.ProtocolConfigProvider),
		DeployedAt:               ev.Ctx.BlockTime,
	}
	if err := idx.store.UpsertPot(ctx, pot); err != nil {
		return err
	}

	if len(cfg.Admins) > 0 {
		for _, admin := range cfg.Admins {
			if _, _, err := idx.store.GetOrCreateAccount(ctx, admin); err != nil {
				return err
			}
		}
		if err := idx.store.ReplacePotAdmins(ctx, potID, cfg.Admins); err != nil {
			return err
		}
	}
	return nil
}

// applyPotConfig is upsertPotFromConfig for view-call refreshes, where
// the receipt context is not the deploy receipt.
func (idx *Indexer) applyPotConfig(ctx context.Context, potID string, cfg *potConfig) error {
	for _, id := range []string{cfg.Owner, cfg.DeployedBy} {
		if id == "" {
			continue
		}
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}
	if cfg.Chef != "" {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, cfg.Chef); err != nil {
			return err
		}
	}

	deployer := cfg.DeployedBy
	if deployer == "" {
		deployer = cfg.Owner
	}

	pot := &models.Pot{
		AccountID:                potID,
		DeployerID:               deployer,
		OwnerID:                  cfg.Owner,
		ChefID:                   strPtr(cfg.Chef),
		Name:                     cfg.PotName,
		Description:              cfg.PotDescription,
		MaxApprovedApplicants:    cfg.MaxProjects,
		BaseCurrency:             strPtr(cfg.BaseCurrency),
		ApplicationStart:         msTime(cfg.ApplicationStartMs),
		ApplicationEnd:           msTime(cfg.ApplicationEndMs),
		MatchingRoundStart:       msTime(cfg.PublicRoundStartMs),
		MatchingRoundEnd:         msTime(cfg.PublicRoundEndMs),
		RegistryProviderID:       strPtr(cfg.RegistryProvider),
		MinMatchingPoolDonation:  orZero(cfg.MinMatchingPoolDonation),
		SybilWrapperProviderID:   strPtr(cfg.SybilWrapperProvider),
		CustomSybilChecks:        strPtr(cfg.CustomSybilChecks),
		CustomMinThreshold:       cfg.CustomMinThreshold,
		ReferralFeeMatchingBPS:   cfg.ReferralFeeMatchingBPS,
		ReferralFeePublicBPS:     cfg.ReferralFeePublicBPS,
		ChefFeeBPS:               cfg.ChefFeeBPS,
		CooldownPeriodMs:         cfg.CooldownPeriodMs,
		ProtocolConfigProviderID: strPtr(cfg.ProtocolConfigProvider),
		DeployedAt:               time.Now().UTC(),
	}
	if err := idx.store.UpsertPot(ctx, pot); err != nil {
		return err
	}

	if cfg.CooldownEndMs > 0 {
		if err := idx.store.SetPotCooldownEnd(ctx, potID, msTime(cfg.CooldownEndMs)); err != nil {
			return err
		}
	}
	if err := idx.store.SetPotAllPaidOut(ctx, potID, cfg.AllPaidOut); err != nil {
		return err
	}

	if len(cfg.Admins) > 0 {
		for _, admin := range cfg.Admins {
			if _, _, err := idx.store.GetOrCreateAccount(ctx, admin); err != nil {
				return err
			}
		}
		if err := idx.store.ReplacePotAdmins(ctx, potID, cfg.Admins); err != nil {
			return err
		}
	}
	return nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
