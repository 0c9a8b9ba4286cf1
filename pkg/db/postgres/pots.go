package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initPots creates the pot factory, pot, application, review, payout
// and challenge tables.
func (s *Store) initPots(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pot_factories (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id),
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			deployed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			source_metadata JSONB,
			protocol_fee_basis_points BIGINT NOT NULL DEFAULT 0,
			protocol_fee_recipient TEXT,
			require_whitelist BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS pots (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id),
			pot_factory_id TEXT REFERENCES pot_factories(account_id),
			deployer_id TEXT NOT NULL REFERENCES accounts(id),
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			chef_id TEXT REFERENCES accounts(id),
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			max_approved_applicants BIGINT NOT NULL DEFAULT 0,
			base_currency TEXT,
			application_start TIMESTAMP WITH TIME ZONE,
			application_end TIMESTAMP WITH TIME ZONE,
			matching_round_start TIMESTAMP WITH TIME ZONE,
			matching_round_end TIMESTAMP WITH TIME ZONE,
			registry_provider TEXT,
			min_matching_pool_donation_amount TEXT NOT NULL DEFAULT '0',
			sybil_wrapper_provider TEXT,
			custom_sybil_checks TEXT,
			custom_min_threshold_score BIGINT,
			referral_fee_matching_pool_basis_points BIGINT NOT NULL DEFAULT 0,
			referral_fee_public_round_basis_points BIGINT NOT NULL DEFAULT 0,
			chef_fee_basis_points BIGINT NOT NULL DEFAULT 0,
			total_matching_pool TEXT NOT NULL DEFAULT '0',
			total_matching_pool_usd NUMERIC,
			matching_pool_balance TEXT NOT NULL DEFAULT '0',
			matching_pool_donations_count BIGINT NOT NULL DEFAULT 0,
			total_public_donations TEXT NOT NULL DEFAULT '0',
			total_public_donations_usd NUMERIC,
			public_donations_count BIGINT NOT NULL DEFAULT 0,
			cooldown_end TIMESTAMP WITH TIME ZONE,
			cooldown_period_ms BIGINT,
			all_paid_out BOOLEAN NOT NULL DEFAULT FALSE,
			protocol_config_provider TEXT,
			deployed_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pot_admins (
			pot_id TEXT NOT NULL REFERENCES pots(account_id),
			account_id TEXT NOT NULL REFERENCES accounts(id),
			PRIMARY KEY (pot_id, account_id)
		);

		CREATE TABLE IF NOT EXISTS pot_applications (
			id BIGSERIAL PRIMARY KEY,
			pot_id TEXT NOT NULL REFERENCES pots(account_id),
			applicant_id TEXT NOT NULL REFERENCES accounts(id),
			message TEXT,
			status TEXT NOT NULL,
			submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE,
			tx_hash TEXT NOT NULL DEFAULT '',
			UNIQUE (pot_id, applicant_id)
		);

		CREATE TABLE IF NOT EXISTS pot_application_reviews (
			id BIGSERIAL PRIMARY KEY,
			application_id BIGINT NOT NULL REFERENCES pot_applications(id),
			reviewer_id TEXT NOT NULL REFERENCES accounts(id),
			notes TEXT,
			status TEXT NOT NULL,
			reviewed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			UNIQUE (application_id, reviewer_id, reviewed_at)
		);

		CREATE TABLE IF NOT EXISTS pot_payouts (
			id BIGSERIAL PRIMARY KEY,
			pot_id TEXT NOT NULL REFERENCES pots(account_id),
			recipient_id TEXT NOT NULL REFERENCES accounts(id),
			amount TEXT NOT NULL,
			amount_paid_usd NUMERIC,
			token_id TEXT NOT NULL REFERENCES tokens(account_id),
			paid_at TIMESTAMP WITH TIME ZONE,
			tx_hash TEXT,
			UNIQUE (pot_id, recipient_id, amount)
		);

		CREATE TABLE IF NOT EXISTS pot_payout_challenges (
			id BIGSERIAL PRIMARY KEY,
			challenger_id TEXT NOT NULL REFERENCES accounts(id),
			pot_id TEXT NOT NULL REFERENCES pots(account_id),
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (challenger_id, pot_id)
		);

		CREATE TABLE IF NOT EXISTS pot_payout_challenge_admin_responses (
			id BIGSERIAL PRIMARY KEY,
			challenger_id TEXT NOT NULL REFERENCES accounts(id),
			pot_id TEXT NOT NULL REFERENCES pots(account_id),
			admin_id TEXT NOT NULL REFERENCES accounts(id),
			message TEXT NOT NULL DEFAULT '',
			resolve_challenge BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			UNIQUE (challenger_id, pot_id, created_at)
		);
	`
	return s.Exec(ctx, query)
}

// UpsertPotFactory creates or refreshes a factory row.
func (s *Store) UpsertPotFactory(ctx context.Context, f *models.PotFactory) error {
	return s.Exec(ctx, `
		INSERT INTO pot_factories (
			account_id, owner_id, deployed_at, source_metadata,
			protocol_fee_basis_points, protocol_fee_recipient, require_whitelist
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (account_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			source_metadata = EXCLUDED.source_metadata,
			protocol_fee_basis_points = EXCLUDED.protocol_fee_basis_points,
			protocol_fee_recipient = EXCLUDED.protocol_fee_recipient,
			require_whitelist = EXCLUDED.require_whitelist
	`, f.AccountID, f.OwnerID, f.DeployedAt, f.SourceMetadata,
		f.ProtocolFeeBasis, f.ProtocolFeeRecip, f.RequireWhitelist)
}

// PotExists reports whether a pot row exists for the account.
func (s *Store) PotExists(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := s.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM pots WHERE account_id = $1)
	`, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pot exists %s: %w", accountID, err)
	}
	return exists, nil
}

// UpsertPot creates the pot or overwrites its configuration in place.
// Aggregate counters are only set on first insert; config updates never
// reset them.
func (s *Store) UpsertPot(ctx context.Context, p *models.Pot) error {
	return s.Exec(ctx, `
		INSERT INTO pots (
			account_id, pot_factory_id, deployer_id, owner_id, chef_id,
			name, description, max_approved_applicants, base_currency,
			application_start, application_end, matching_round_start, matching_round_end,
			registry_provider, min_matching_pool_donation_amount,
			sybil_wrapper_provider, custom_sybil_checks, custom_min_threshold_score,
			referral_fee_matching_pool_basis_points, referral_fee_public_round_basis_points,
			chef_fee_basis_points, cooldown_period_ms, protocol_config_provider, deployed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)
		ON CONFLICT (account_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			chef_id = EXCLUDED.chef_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			max_approved_applicants = EXCLUDED.max_approved_applicants,
			base_currency = EXCLUDED.base_currency,
			application_start = EXCLUDED.application_start,
			application_end = EXCLUDED.application_end,
			matching_round_start = EXCLUDED.matching_round_start,
			matching_round_end = EXCLUDED.matching_round_end,
			registry_provider = EXCLUDED.registry_provider,
			min_matching_pool_donation_amount = EXCLUDED.min_matching_pool_donation_amount,
			sybil_wrapper_provider = EXCLUDED.sybil_wrapper_provider,
			custom_sybil_checks = EXCLUDED.custom_sybil_checks,
			custom_min_threshold_score = EXCLUDED.custom_min_threshold_score,
			referral_fee_matching_pool_basis_points = EXCLUDED.referral_fee_matching_pool_basis_points,
			referral_fee_public_round_basis_points = EXCLUDED.referral_fee_public_round_basis_points,
			chef_fee_basis_points = EXCLUDED.chef_fee_basis_points,
			cooldown_period_ms = EXCLUDED.cooldown_period_ms,
			protocol_config_provider = EXCLUDED.protocol_config_provider
	`, p.AccountID, p.FactoryID, p.DeployerID, p.OwnerID, p.ChefID,
		p.Name, p.Description, p.MaxApprovedApplicants, p.BaseCurrency,
		p.ApplicationStart, p.ApplicationEnd, p.MatchingRoundStart, p.MatchingRoundEnd,
		p.RegistryProviderID, p.MinMatchingPoolDonation,
		p.SybilWrapperProviderID, p.CustomSybilChecks, p.CustomMinThreshold,
		p.ReferralFeeMatchingBPS, p.ReferralFeePublicBPS,
		p.ChefFeeBPS, p.CooldownPeriodMs, p.ProtocolConfigProviderID, p.DeployedAt)
}

// ReplacePotAdmins rewrites the admin set for a pot.
func (s *Store) ReplacePotAdmins(ctx context.Context, potID string, adminIDs []string) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pot_admins WHERE pot_id = $1`, potID); err != nil {
			return err
		}
		for _, admin := range adminIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO pot_admins (pot_id, account_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, potID, admin)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SetPotCooldownEnd refreshes the cooldown deadline from authoritative
// config.
func (s *Store) SetPotCooldownEnd(ctx context.Context, potID string, end *time.Time) error {
	return s.Exec(ctx, `UPDATE pots SET cooldown_end = $2 WHERE account_id = $1`, potID, end)
}

// SetPotAllPaidOut persists the all-paid-out flag.
func (s *Store) SetPotAllPaidOut(ctx context.Context, potID string, allPaidOut bool) error {
	return s.Exec(ctx, `UPDATE pots SET all_paid_out = $2 WHERE account_id = $1`, potID, allPaidOut)
}

// UpsertPotApplication creates or refreshes an application keyed by
// (pot, applicant) and returns the row id.
func (s *Store) UpsertPotApplication(ctx context.Context, a *models.PotApplication) (uint64, error) {
	var id uint64
	err := s.QueryRow(ctx, `
		INSERT INTO pot_applications (pot_id, applicant_id, message, status, submitted_at, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pot_id, applicant_id) DO UPDATE SET
			message = COALESCE(EXCLUDED.message, pot_applications.message)
		RETURNING id
	`, a.PotID, a.ApplicantID, a.Message, a.Status, a.SubmittedAt, a.TxHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert application %s/%s: %w", a.PotID, a.ApplicantID, err)
	}
	return id, nil
}

// GetPotApplication looks up an application by (pot, applicant).
func (s *Store) GetPotApplication(ctx context.Context, potID, applicantID string) (*models.PotApplication, bool, error) {
	app := &models.PotApplication{}
	err := s.QueryRow(ctx, `
		SELECT id, pot_id, applicant_id, message, status, submitted_at, updated_at, tx_hash
		FROM pot_applications WHERE pot_id = $1 AND applicant_id = $2
	`, potID, applicantID).Scan(
		&app.ID, &app.PotID, &app.ApplicantID, &app.Message,
		&app.Status, &app.SubmittedAt, &app.UpdatedAt, &app.TxHash,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get application %s/%s: %w", potID, applicantID, err)
	}
	return app, true, nil
}

// SetApplicationStatus updates the current status and appends the
// review record in one transaction. Re-delivery of the same review is a
// no-op via the (application, reviewer, reviewed_at) uniqueness.
func (s *Store) SetApplicationStatus(ctx context.Context, r *models.PotApplicationReview) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE pot_applications SET status = $2, updated_at = $3 WHERE id = $1
		`, r.ApplicationID, r.Status, r.ReviewedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO pot_application_reviews (application_id, reviewer_id, notes, status, reviewed_at, tx_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (application_id, reviewer_id, reviewed_at) DO NOTHING
		`, r.ApplicationID, r.ReviewerID, r.Notes, r.Status, r.ReviewedAt, r.TxHash)
		return err
	})
}

// ApplicationReviews returns the ordered review history.
func (s *Store) ApplicationReviews(ctx context.Context, applicationID uint64) ([]models.PotApplicationReview, error) {
	rows, err := s.Query(ctx, `
		SELECT id, application_id, reviewer_id, notes, status, reviewed_at, tx_hash
		FROM pot_application_reviews
		WHERE application_id = $1
		ORDER BY reviewed_at
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.PotApplicationReview
	for rows.Next() {
		var r models.PotApplicationReview
		if err := rows.Scan(&r.ID, &r.ApplicationID, &r.ReviewerID, &r.Notes, &r.Status, &r.ReviewedAt, &r.TxHash); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// BulkInsertPayouts inserts payout rows, silently skipping any that
// collide with the uniqueness constraint (idempotent re-delivery).
func (s *Store) BulkInsertPayouts(ctx context.Context, payouts []models.PotPayout) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, p := range payouts {
			_, err := tx.Exec(ctx, `
				INSERT INTO pot_payouts (pot_id, recipient_id, amount, token_id, paid_at)
				VALUES ($1, $2, $3, $4, NULL)
				ON CONFLICT (pot_id, recipient_id, amount) DO NOTHING
			`, p.PotID, p.RecipientID, p.Amount, p.TokenID)
			if err != nil {
				return fmt.Errorf("insert payout %s/%s: %w", p.PotID, p.RecipientID, err)
			}
		}
		return nil
	})
}

// MarkPayoutPaid fulfils a pending payout row and returns its id. A
// transfer whose set-payouts event was never seen creates the row on
// the spot.
func (s *Store) MarkPayoutPaid(ctx context.Context, potID, recipientID, amount, tokenID, txHash string, paidAt time.Time) (uint64, error) {
	var id uint64
	err := s.QueryRow(ctx, `
		INSERT INTO pot_payouts (pot_id, recipient_id, amount, token_id, paid_at, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pot_id, recipient_id, amount) DO UPDATE SET
			paid_at = EXCLUDED.paid_at,
			tx_hash = EXCLUDED.tx_hash
		RETURNING id
	`, potID, recipientID, amount, tokenID, paidAt, txHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("mark payout paid %s/%s: %w", potID, recipientID, err)
	}
	return id, nil
}

// SetPayoutUSD writes the derived USD amount (price worker).
func (s *Store) SetPayoutUSD(ctx context.Context, payoutID uint64, amountUSD string) error {
	return s.Exec(ctx, `
		UPDATE pot_payouts SET amount_paid_usd = $2::NUMERIC WHERE id = $1
	`, payoutID, amountUSD)
}

// GetPayout fetches a payout row by id (price worker).
func (s *Store) GetPayout(ctx context.Context, id uint64) (*models.PotPayout, bool, error) {
	p := &models.PotPayout{}
	err := s.QueryRow(ctx, `
		SELECT id, pot_id, recipient_id, amount, amount_paid_usd::TEXT, token_id, paid_at, tx_hash
		FROM pot_payouts WHERE id = $1
	`, id).Scan(&p.ID, &p.PotID, &p.RecipientID, &p.Amount, &p.AmountUSD, &p.TokenID, &p.PaidAt, &p.TxHash)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get payout %d: %w", id, err)
	}
	return p, true, nil
}

// UpsertPayoutChallenge creates or refreshes a challenge keyed by
// (challenger, pot).
func (s *Store) UpsertPayoutChallenge(ctx context.Context, c *models.PotPayoutChallenge) error {
	return s.Exec(ctx, `
		INSERT INTO pot_payout_challenges (challenger_id, pot_id, message, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (challenger_id, pot_id) DO UPDATE SET
			message = EXCLUDED.message
	`, c.ChallengerID, c.PotID, c.Message, c.CreatedAt)
}

// UpsertChallengeResponse appends an admin response keyed by
// (challenger, pot, created_at).
func (s *Store) UpsertChallengeResponse(ctx context.Context, r *models.PotPayoutChallengeAdminResponse) error {
	return s.Exec(ctx, `
		INSERT INTO pot_payout_challenge_admin_responses
			(challenger_id, pot_id, admin_id, message, resolve_challenge, created_at, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (challenger_id, pot_id, created_at) DO UPDATE SET
			message = EXCLUDED.message,
			resolve_challenge = EXCLUDED.resolve_challenge
	`, r.ChallengerID, r.PotID, r.AdminID, r.Message, r.ResolveChall, r.CreatedAt, r.TxHash)
}
