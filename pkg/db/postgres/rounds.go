package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initRounds creates the round, project and vote tables.
func (s *Store) initRounds(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS rounds (
			id BIGINT PRIMARY KEY,
			factory_id TEXT,
			deployer_id TEXT NOT NULL REFERENCES accounts(id),
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			contacts JSONB,
			expected_amount TEXT NOT NULL DEFAULT '0',
			current_vault_balance TEXT NOT NULL DEFAULT '0',
			vault_total_deposits TEXT NOT NULL DEFAULT '0',
			use_whitelist BOOLEAN NOT NULL DEFAULT FALSE,
			use_vault BOOLEAN NOT NULL DEFAULT FALSE,
			num_picks_per_voter BIGINT NOT NULL DEFAULT 0,
			max_participants BIGINT NOT NULL DEFAULT 0,
			application_start TIMESTAMP WITH TIME ZONE,
			application_end TIMESTAMP WITH TIME ZONE,
			voting_start TIMESTAMP WITH TIME ZONE,
			voting_end TIMESTAMP WITH TIME ZONE,
			approved_applicants_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS projects (
			id BIGINT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS votes (
			id BIGSERIAL PRIMARY KEY,
			round_id BIGINT NOT NULL REFERENCES rounds(id),
			voter_id TEXT NOT NULL REFERENCES accounts(id),
			voted_at TIMESTAMP WITH TIME ZONE NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			UNIQUE (round_id, voter_id, voted_at)
		);

		CREATE TABLE IF NOT EXISTS vote_pairs (
			id BIGSERIAL PRIMARY KEY,
			vote_id BIGINT NOT NULL REFERENCES votes(id),
			pair_id BIGINT NOT NULL,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			UNIQUE (vote_id, pair_id)
		);
	`
	return s.Exec(ctx, query)
}

// RoundExists reports whether a round row exists for the on-chain id.
func (s *Store) RoundExists(ctx context.Context, id uint64) (bool, error) {
	var exists bool
	err := s.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rounds WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("round exists %d: %w", id, err)
	}
	return exists, nil
}

// UpsertRound creates a round or overwrites its configuration.
func (s *Store) UpsertRound(ctx context.Context, r *models.Round) error {
	return s.Exec(ctx, `
		INSERT INTO rounds (
			id, factory_id, deployer_id, owner_id, name, description, contacts,
			expected_amount, current_vault_balance, vault_total_deposits,
			use_whitelist, use_vault, num_picks_per_voter, max_participants,
			application_start, application_end, voting_start, voting_end,
			approved_applicants_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			contacts = EXCLUDED.contacts,
			expected_amount = EXCLUDED.expected_amount,
			current_vault_balance = EXCLUDED.current_vault_balance,
			vault_total_deposits = EXCLUDED.vault_total_deposits,
			use_whitelist = EXCLUDED.use_whitelist,
			use_vault = EXCLUDED.use_vault,
			num_picks_per_voter = EXCLUDED.num_picks_per_voter,
			max_participants = EXCLUDED.max_participants,
			application_start = EXCLUDED.application_start,
			application_end = EXCLUDED.application_end,
			voting_start = EXCLUDED.voting_start,
			voting_end = EXCLUDED.voting_end,
			approved_applicants_count = EXCLUDED.approved_applicants_count,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.FactoryID, r.DeployerID, r.OwnerID, r.Name, r.Description, r.ContactsJSON,
		r.ExpectedAmount, r.CurrentVaultBalance, r.VaultTotalDeposits,
		r.UseWhitelist, r.UseVault, r.NumPicksPerVoter, r.MaxParticipants,
		r.ApplicationStart, r.ApplicationEnd, r.VotingStart, r.VotingEnd,
		r.ApprovedApplicants, r.CreatedAt, r.UpdatedAt)
}

// GetOrCreateProject resolves a project by on-chain id.
func (s *Store) GetOrCreateProject(ctx context.Context, p *models.Project) error {
	return s.Exec(ctx, `
		INSERT INTO projects (id, owner_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.OwnerID, p.Name, p.CreatedAt)
}

// UpsertVote records a vote keyed by (round, voter, voted_at) along
// with its pair picks in one transaction. Replay is a no-op.
func (s *Store) UpsertVote(ctx context.Context, v *models.Vote, pairs []models.VotePair) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		var voteID uint64
		err := tx.QueryRow(ctx, `
			INSERT INTO votes (round_id, voter_id, voted_at, tx_hash)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (round_id, voter_id, voted_at) DO UPDATE SET tx_hash = EXCLUDED.tx_hash
			RETURNING id
		`, v.RoundID, v.VoterID, v.VotedAt, v.TxHash).Scan(&voteID)
		if err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}

		for _, p := range pairs {
			_, err := tx.Exec(ctx, `
				INSERT INTO vote_pairs (vote_id, pair_id, project_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (vote_id, pair_id) DO NOTHING
			`, voteID, p.PairID, p.ProjectID)
			if err != nil {
				return fmt.Errorf("insert vote pair %d: %w", p.PairID, err)
			}
		}
		return nil
	})
}
