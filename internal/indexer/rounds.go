package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

type roundPayload struct {
	ID                  uint64          `json:"id"`
	Owner               string          `json:"owner"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Contacts            json.RawMessage `json:"contacts"`
	ExpectedAmount      string          `json:"expected_amount"`
	CurrentVaultBalance string          `json:"current_vault_balance"`
	VaultTotalDeposits  string          `json:"vault_total_deposits"`
	UseWhitelist        bool            `json:"use_whitelist"`
	UseVault            bool            `json:"use_vault"`
	NumPicksPerVoter    uint64          `json:"num_picks_per_voter"`
	MaxParticipants     uint64          `json:"max_participants"`
	ApplicationStartMs  uint64          `json:"application_start_ms"`
	ApplicationEndMs    uint64          `json:"application_end_ms"`
	VotingStartMs       uint64          `json:"voting_start_ms"`
	VotingEndMs         uint64          `json:"voting_end_ms"`
	ApprovedApplicants  uint64          `json:"approved_applicants_count"`
}

// handleRoundUpsert serves both round creation and round updates: the
// round is keyed by on-chain id and its config is overwritten in place.
func (idx *Indexer) handleRoundUpsert(ctx context.Context, ev decoder.Event) error {
	// Round payloads may arrive wrapped in a round_detail envelope.
	var envelope struct {
		RoundDetail *roundPayload `json:"round_detail"`
	}
	var payload roundPayload
	if err := json.Unmarshal(ev.Payload, &envelope); err == nil && envelope.RoundDetail != nil {
		payload = *envelope.RoundDetail
	} else if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode round payload: %w", err)
	}

	return idx.applyRound(ctx, ev, payload)
}

// applyRound maps a round payload onto the stored row. Used both for
// round events and for rounds materialized from a get_round view call.
func (idx *Indexer) applyRound(ctx context.Context, ev decoder.Event, payload roundPayload) error {
	owner := payload.Owner
	if owner == "" {
		owner = ev.Ctx.SignerID
	}
	for _, id := range []string{owner, ev.Ctx.SignerID} {
		if _, _, err := idx.store.GetOrCreateAccount(ctx, id); err != nil {
			return err
		}
	}

	return idx.store.UpsertRound(ctx, &models.Round{
		ID:                  payload.ID,
		DeployerID:          ev.Ctx.SignerID,
		OwnerID:             owner,
		Name:                payload.Name,
		Description:         payload.Description,
		ContactsJSON:        payload.Contacts,
		ExpectedAmount:      orZero(payload.ExpectedAmount),
		CurrentVaultBalance: orZero(payload.CurrentVaultBalance),
		VaultTotalDeposits:  orZero(payload.VaultTotalDeposits),
		UseWhitelist:        payload.UseWhitelist,
		UseVault:            payload.UseVault,
		NumPicksPerVoter:    payload.NumPicksPerVoter,
		MaxParticipants:     payload.MaxParticipants,
		ApplicationStart:    msTime(payload.ApplicationStartMs),
		ApplicationEnd:      msTime(payload.ApplicationEndMs),
		VotingStart:         msTime(payload.VotingStartMs),
		VotingEnd:           msTime(payload.VotingEndMs),
		ApprovedApplicants:  payload.ApprovedApplicants,
		CreatedAt:           ev.Ctx.BlockTime,
		UpdatedAt:           ev.Ctx.BlockTime,
	})
}

type votePick struct {
	PairID       uint64 `json:"pair_id"`
	VotedProject uint64 `json:"voted_project"`
	ProjectID    uint64 `json:"project_id"`
}

func (p votePick) project() uint64 {
	if p.VotedProject != 0 {
		return p.VotedProject
	}
	return p.ProjectID
}

type votePayload struct {
	RoundID uint64     `json:"round_id"`
	Voter   string     `json:"voter"`
	Picks   []votePick `json:"picks"`
}

// handleVote upserts the vote keyed by (round, voter, voted_at) with
// its pair picks; referenced projects are get-or-created first.
func (idx *Indexer) handleVote(ctx context.Context, ev decoder.Event) error {
	var payload votePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode vote payload: %w", err)
	}

	voter := payload.Voter
	if voter == "" {
		voter = ev.Ctx.SignerID
	}
	if _, _, err := idx.store.GetOrCreateAccount(ctx, voter); err != nil {
		return err
	}
	if err := idx.ensureRound(ctx, ev, payload.RoundID); err != nil {
		return err
	}

	pairs := make([]models.VotePair, 0, len(payload.Picks))
	for _, pick := range payload.Picks {
		if err := idx.store.GetOrCreateProject(ctx, &models.Project{
			ID:        pick.project(),
			OwnerID:   voter,
			CreatedAt: ev.Ctx.BlockTime,
		}); err != nil {
			return err
		}
		pairs = append(pairs, models.VotePair{
			PairID:    pick.PairID,
			ProjectID: pick.project(),
		})
	}

	return idx.store.UpsertVote(ctx, &models.Vote{
		RoundID: payload.RoundID,
		VoterID: voter,
		VotedAt: ev.Ctx.BlockTime,
		TxHash:  ev.Ctx.TxHash,
	}, pairs)
}
