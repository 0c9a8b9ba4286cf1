package postgres

import (
	"context"
	"fmt"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initAccounts creates the accounts table.
func (s *Store) initAccounts(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			total_donations_in_usd NUMERIC NOT NULL DEFAULT 0,
			total_donations_out_usd NUMERIC NOT NULL DEFAULT 0,
			total_matching_pool_allocations_usd NUMERIC NOT NULL DEFAULT 0,
			donors_count BIGINT NOT NULL DEFAULT 0,
			near_social_profile_data JSONB
		);
	`
	return s.Exec(ctx, query)
}

// GetOrCreateAccount resolves an address to an account row, creating it
// with defaults when it has never been seen. Returns whether the row
// was created by this call. Safe under concurrent callers: the insert
// is a no-op on conflict and the row is read back either way.
func (s *Store) GetOrCreateAccount(ctx context.Context, id string) (*models.Account, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return nil, false, fmt.Errorf("insert account %s: %w", id, err)
	}
	created := tag.RowsAffected() > 0

	acct := &models.Account{}
	err = s.QueryRow(ctx, `
		SELECT id, total_donations_in_usd::TEXT, total_donations_out_usd::TEXT,
		       total_matching_pool_allocations_usd::TEXT, donors_count, near_social_profile_data
		FROM accounts WHERE id = $1
	`, id).Scan(
		&acct.ID,
		&acct.TotalDonationsInUSD,
		&acct.TotalDonationsOutUSD,
		&acct.TotalMatchingPoolAllocksUSD,
		&acct.DonorsCount,
		&acct.NearSocialProfileData,
	)
	if err != nil {
		return nil, false, fmt.Errorf("select account %s: %w", id, err)
	}
	return acct, created, nil
}

// UpdateAccountTotals overwrites the aggregate fields. Called by the
// external recompute job, never during ingestion.
func (s *Store) UpdateAccountTotals(ctx context.Context, id, inUSD, outUSD, matchingUSD string, donors uint64) error {
	return s.Exec(ctx, `
		UPDATE accounts
		SET total_donations_in_usd = $2::NUMERIC,
		    total_donations_out_usd = $3::NUMERIC,
		    total_matching_pool_allocations_usd = $4::NUMERIC,
		    donors_count = $5
		WHERE id = $1
	`, id, inUSD, outUSD, matchingUSD, donors)
}

// SetAccountSocialProfile stores the social-profile blob fetched from
// the social contract.
func (s *Store) SetAccountSocialProfile(ctx context.Context, id string, profile []byte) error {
	return s.Exec(ctx, `
		UPDATE accounts SET near_social_profile_data = $2 WHERE id = $1
	`, id, profile)
}
