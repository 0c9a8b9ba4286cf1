package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initNadabot creates the trust/reputation sub-schema tables.
func (s *Store) initNadabot(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS nadabot_registries (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id),
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			source_metadata JSONB
		);

		CREATE TABLE IF NOT EXISTS providers (
			id BIGSERIAL PRIMARY KEY,
			on_chain_id BIGINT NOT NULL,
			registry_id TEXT NOT NULL REFERENCES nadabot_registries(account_id),
			contract_id TEXT NOT NULL,
			method_name TEXT NOT NULL,
			provider_name TEXT NOT NULL DEFAULT '',
			description TEXT,
			status TEXT NOT NULL DEFAULT '',
			admin_notes TEXT,
			default_weight BIGINT NOT NULL DEFAULT 0,
			gas BIGINT,
			submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
			stamp_count BIGINT NOT NULL DEFAULT 0,
			account_id_arg_name TEXT NOT NULL DEFAULT 'account_id',
			external_url TEXT,
			icon_url TEXT,
			UNIQUE (on_chain_id, registry_id)
		);

		CREATE TABLE IF NOT EXISTS stamps (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES accounts(id),
			provider_id BIGINT NOT NULL REFERENCES providers(id),
			verification_date TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (user_id, provider_id)
		);

		CREATE TABLE IF NOT EXISTS blacklists (
			id BIGSERIAL PRIMARY KEY,
			registry_id TEXT NOT NULL REFERENCES nadabot_registries(account_id),
			account_id TEXT NOT NULL REFERENCES accounts(id),
			reason TEXT,
			date_blacklisted TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (registry_id, account_id)
		);

		CREATE TABLE IF NOT EXISTS provider_groups (
			id BIGINT PRIMARY KEY,
			registry_id TEXT NOT NULL REFERENCES nadabot_registries(account_id),
			name TEXT NOT NULL DEFAULT '',
			rule_type TEXT,
			rule_val BIGINT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS provider_group_members (
			group_id BIGINT NOT NULL REFERENCES provider_groups(id),
			provider_id BIGINT NOT NULL REFERENCES providers(id),
			PRIMARY KEY (group_id, provider_id)
		);
	`
	return s.Exec(ctx, query)
}

// UpsertNadabotRegistry creates or refreshes a registry row.
func (s *Store) UpsertNadabotRegistry(ctx context.Context, r *models.NadabotRegistry) error {
	return s.Exec(ctx, `
		INSERT INTO nadabot_registries (account_id, owner_id, created_at, updated_at, source_metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			updated_at = EXCLUDED.updated_at,
			source_metadata = EXCLUDED.source_metadata
	`, r.AccountID, r.OwnerID, r.CreatedAt, r.UpdatedAt, r.SourceMetadata)
}

// UpsertProvider creates or refreshes a provider keyed by
// (on_chain_id, registry). A registration carrying the sentinel id gets
// a fresh id from the persisted counter inside the same transaction, so
// the substitution survives restarts and duplicate batches still yield
// distinct rows.
func (s *Store) UpsertProvider(ctx context.Context, p *models.Provider) (uint64, error) {
	var rowID uint64
	err := s.BeginFunc(ctx, func(tx pgx.Tx) error {
		onChainID := p.OnChainID
		if onChainID == models.ProviderSentinelID {
			next, err := nextCounterTx(ctx, tx, "provider_sentinel_id", providerSentinelCounterStart)
			if err != nil {
				return fmt.Errorf("sentinel counter: %w", err)
			}
			onChainID = next
		}

		return tx.QueryRow(ctx, `
			INSERT INTO providers (
				on_chain_id, registry_id, contract_id, method_name, provider_name,
				description, status, admin_notes, default_weight, gas, submitted_at,
				stamp_count, account_id_arg_name, external_url, icon_url
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (on_chain_id, registry_id) DO UPDATE SET
				provider_name = EXCLUDED.provider_name,
				description = EXCLUDED.description,
				status = EXCLUDED.status,
				admin_notes = EXCLUDED.admin_notes,
				default_weight = EXCLUDED.default_weight,
				external_url = EXCLUDED.external_url,
				icon_url = EXCLUDED.icon_url
			RETURNING id
		`, onChainID, p.RegistryID, p.ContractID, p.MethodName, p.Name,
			p.Description, p.Status, p.AdminNotes, p.DefaultWeight, p.GasAttached, p.SubmittedAt,
			p.StampCount, p.AccountIDArg, p.ExternalURL, p.IconURL).Scan(&rowID)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert provider %d: %w", p.OnChainID, err)
	}
	return rowID, nil
}

// ProviderByOnChainID looks up a provider within a registry.
func (s *Store) ProviderByOnChainID(ctx context.Context, registryID string, onChainID uint64) (*models.Provider, bool, error) {
	p := &models.Provider{}
	err := s.QueryRow(ctx, `
		SELECT id, on_chain_id, registry_id, contract_id, method_name, provider_name,
		       description, status, admin_notes, default_weight, gas, submitted_at,
		       stamp_count, account_id_arg_name, external_url, icon_url
		FROM providers WHERE registry_id = $1 AND on_chain_id = $2
	`, registryID, onChainID).Scan(
		&p.ID, &p.OnChainID, &p.RegistryID, &p.ContractID, &p.MethodName, &p.Name,
		&p.Description, &p.Status, &p.AdminNotes, &p.DefaultWeight, &p.GasAttached, &p.SubmittedAt,
		&p.StampCount, &p.AccountIDArg, &p.ExternalURL, &p.IconURL,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get provider %s/%d: %w", registryID, onChainID, err)
	}
	return p, true, nil
}

// UpsertStamp records a verification proof keyed by (user, provider)
// and bumps the provider's stamp count only when the row is new.
func (s *Store) UpsertStamp(ctx context.Context, st *models.Stamp) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO stamps (user_id, provider_id, verification_date)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, provider_id) DO NOTHING
		`, st.UserID, st.ProviderID, st.VerifiedAt)
		if err != nil {
			return fmt.Errorf("insert stamp: %w", err)
		}
		if tag.RowsAffected() > 0 {
			_, err = tx.Exec(ctx, `
				UPDATE providers SET stamp_count = stamp_count + 1 WHERE id = $1
			`, st.ProviderID)
		}
		return err
	})
}

// UpsertBlacklistEntry bars an account from a registry, keyed by
// (registry, account).
func (s *Store) UpsertBlacklistEntry(ctx context.Context, b *models.BlackList) error {
	return s.Exec(ctx, `
		INSERT INTO blacklists (registry_id, account_id, reason, date_blacklisted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (registry_id, account_id) DO UPDATE SET
			reason = EXCLUDED.reason
	`, b.RegistryID, b.AccountID, b.Reason, b.CreatedAt)
}

// UpsertGroup creates or refreshes a provider group along with its
// member set.
func (s *Store) UpsertGroup(ctx context.Context, g *models.Group, providerIDs []uint64) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO provider_groups (id, registry_id, name, rule_type, rule_val, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				rule_type = EXCLUDED.rule_type,
				rule_val = EXCLUDED.rule_val,
				updated_at = EXCLUDED.updated_at
		`, g.ID, g.RegistryID, g.Name, g.RuleType, g.RuleVal, g.CreatedAt, g.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert group %d: %w", g.ID, err)
		}

		for _, pid := range providerIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO provider_group_members (group_id, provider_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, g.ID, pid)
			if err != nil {
				return fmt.Errorf("insert group member %d: %w", pid, err)
			}
		}
		return nil
	})
}
