package postgres

import (
	"context"
	"fmt"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initDonations creates the donations table. The on-chain id is scoped
// by pot: pot donations are unique within (on_chain_id, pot_id), while
// direct donations (pot_id NULL) get their own partial unique index.
func (s *Store) initDonations(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS donations (
			id BIGSERIAL PRIMARY KEY,
			on_chain_id BIGINT NOT NULL,
			donor_id TEXT NOT NULL REFERENCES accounts(id),
			total_amount TEXT NOT NULL,
			total_amount_usd NUMERIC,
			net_amount TEXT NOT NULL,
			net_amount_usd NUMERIC,
			token_id TEXT NOT NULL REFERENCES tokens(account_id),
			pot_id TEXT REFERENCES pots(account_id),
			matching_pool BOOLEAN NOT NULL DEFAULT FALSE,
			message TEXT,
			donated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			recipient_id TEXT REFERENCES accounts(id),
			protocol_fee TEXT NOT NULL DEFAULT '0',
			protocol_fee_usd NUMERIC,
			referrer_id TEXT REFERENCES accounts(id),
			referrer_fee TEXT,
			referrer_fee_usd NUMERIC,
			chef_id TEXT REFERENCES accounts(id),
			chef_fee TEXT,
			chef_fee_usd NUMERIC,
			tx_hash TEXT NOT NULL DEFAULT ''
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_donations_chain_pot
			ON donations(on_chain_id, pot_id) WHERE pot_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_donations_chain_direct
			ON donations(on_chain_id) WHERE pot_id IS NULL;
		CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations(donor_id);
		CREATE INDEX IF NOT EXISTS idx_donations_recipient ON donations(recipient_id);
		CREATE INDEX IF NOT EXISTS idx_donations_pot ON donations(pot_id);
	`
	return s.Exec(ctx, query)
}

// UpsertDonation creates or refreshes a donation keyed by
// (on_chain_id, pot) and returns the local row id. USD fields are never
// touched here; the price worker owns them.
func (s *Store) UpsertDonation(ctx context.Context, d *models.Donation) (uint64, error) {
	var id uint64
	var err error
	if d.PotID != nil {
		err = s.QueryRow(ctx, `
			INSERT INTO donations (
				on_chain_id, donor_id, total_amount, net_amount, token_id, pot_id,
				matching_pool, message, donated_at, recipient_id, protocol_fee,
				referrer_id, referrer_fee, chef_id, chef_fee, tx_hash
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (on_chain_id, pot_id) WHERE pot_id IS NOT NULL DO UPDATE SET
				message = EXCLUDED.message,
				tx_hash = EXCLUDED.tx_hash
			RETURNING id
		`, d.OnChainID, d.DonorID, d.TotalAmount, d.NetAmount, d.TokenID, d.PotID,
			d.MatchingPool, d.Message, d.DonatedAt, d.RecipientID, d.ProtocolFee,
			d.ReferrerID, d.ReferrerFee, d.ChefID, d.ChefFee, d.TxHash).Scan(&id)
	} else {
		err = s.QueryRow(ctx, `
			INSERT INTO donations (
				on_chain_id, donor_id, total_amount, net_amount, token_id, pot_id,
				matching_pool, message, donated_at, recipient_id, protocol_fee,
				referrer_id, referrer_fee, chef_id, chef_fee, tx_hash
			) VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (on_chain_id) WHERE pot_id IS NULL DO UPDATE SET
				message = EXCLUDED.message,
				tx_hash = EXCLUDED.tx_hash
			RETURNING id
		`, d.OnChainID, d.DonorID, d.TotalAmount, d.NetAmount, d.TokenID,
			d.MatchingPool, d.Message, d.DonatedAt, d.RecipientID, d.ProtocolFee,
			d.ReferrerID, d.ReferrerFee, d.ChefID, d.ChefFee, d.TxHash).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert donation %d: %w", d.OnChainID, err)
	}
	return id, nil
}

// GetDonation fetches a donation by local id (price worker).
func (s *Store) GetDonation(ctx context.Context, id uint64) (*models.Donation, bool, error) {
	d := &models.Donation{}
	err := s.QueryRow(ctx, `
		SELECT id, on_chain_id, donor_id, total_amount, total_amount_usd::TEXT,
		       net_amount, net_amount_usd::TEXT, token_id, pot_id, matching_pool,
		       message, donated_at, recipient_id, protocol_fee, protocol_fee_usd::TEXT,
		       referrer_id, referrer_fee, referrer_fee_usd::TEXT,
		       chef_id, chef_fee, chef_fee_usd::TEXT, tx_hash
		FROM donations WHERE id = $1
	`, id).Scan(
		&d.ID, &d.OnChainID, &d.DonorID, &d.TotalAmount, &d.TotalAmountUSD,
		&d.NetAmount, &d.NetAmountUSD, &d.TokenID, &d.PotID, &d.MatchingPool,
		&d.Message, &d.DonatedAt, &d.RecipientID, &d.ProtocolFee, &d.ProtocolFeeUSD,
		&d.ReferrerID, &d.ReferrerFee, &d.ReferrerFeeUSD,
		&d.ChefID, &d.ChefFee, &d.ChefFeeUSD, &d.TxHash,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get donation %d: %w", id, err)
	}
	return d, true, nil
}

// SetDonationUSD writes all derived USD fields in one atomic update.
// Safe to re-run: the worker recomputes the same values.
func (s *Store) SetDonationUSD(ctx context.Context, id uint64, usd models.DonationUSDAmounts) error {
	return s.Exec(ctx, `
		UPDATE donations SET
			total_amount_usd = $2::NUMERIC,
			net_amount_usd = $3::NUMERIC,
			protocol_fee_usd = $4::NUMERIC,
			referrer_fee_usd = $5::NUMERIC,
			chef_fee_usd = $6::NUMERIC
		WHERE id = $1
	`, id, usd.TotalAmountUSD, usd.NetAmountUSD, usd.ProtocolFeeUSD, usd.ReferrerFeeUSD, usd.ChefFeeUSD)
}

// DonationTotalsForRecipient sums USD totals received by an account.
// Read path for the external stats recompute job.
func (s *Store) DonationTotalsForRecipient(ctx context.Context, accountID string) (*models.DonationTotals, error) {
	return s.donationTotals(ctx, `recipient_id`, accountID)
}

// DonationTotalsForDonor sums USD totals sent by an account.
func (s *Store) DonationTotalsForDonor(ctx context.Context, accountID string) (*models.DonationTotals, error) {
	return s.donationTotals(ctx, `donor_id`, accountID)
}

// DonationTotalsForPot sums USD totals within a pot.
func (s *Store) DonationTotalsForPot(ctx context.Context, potID string) (*models.DonationTotals, error) {
	return s.donationTotals(ctx, `pot_id`, potID)
}

func (s *Store) donationTotals(ctx context.Context, column, key string) (*models.DonationTotals, error) {
	t := &models.DonationTotals{}
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(total_amount_usd), 0)::TEXT,
		       COALESCE(SUM(net_amount_usd), 0)::TEXT,
		       COUNT(*),
		       COUNT(DISTINCT donor_id),
		       COALESCE(MAX(donated_at), 'epoch'::timestamptz)
		FROM donations WHERE %s = $1
	`, column)
	err := s.QueryRow(ctx, query, key).Scan(&t.TotalUSD, &t.NetUSD, &t.Count, &t.Donors, &t.LastAt)
	if err != nil {
		return nil, fmt.Errorf("donation totals by %s: %w", column, err)
	}
	return t, nil
}
