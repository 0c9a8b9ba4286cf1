package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initLists creates the list, registration and upvote tables.
func (s *Store) initLists(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS lists (
			id BIGINT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			name TEXT NOT NULL,
			description TEXT,
			cover_image_url TEXT,
			admin_only_registrations BOOLEAN NOT NULL DEFAULT FALSE,
			default_registration_status TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS list_admins (
			list_id BIGINT NOT NULL REFERENCES lists(id),
			account_id TEXT NOT NULL REFERENCES accounts(id),
			PRIMARY KEY (list_id, account_id)
		);

		CREATE TABLE IF NOT EXISTS list_registrations (
			id BIGINT PRIMARY KEY,
			list_id BIGINT NOT NULL REFERENCES lists(id),
			registrant_id TEXT NOT NULL REFERENCES accounts(id),
			registered_by TEXT NOT NULL REFERENCES accounts(id),
			status TEXT NOT NULL,
			submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			registrant_notes TEXT,
			admin_notes TEXT,
			tx_hash TEXT NOT NULL DEFAULT '',
			UNIQUE (list_id, registrant_id)
		);

		CREATE TABLE IF NOT EXISTS list_upvotes (
			id BIGSERIAL PRIMARY KEY,
			list_id BIGINT NOT NULL REFERENCES lists(id),
			account_id TEXT NOT NULL REFERENCES accounts(id),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (list_id, account_id)
		);
	`
	return s.Exec(ctx, query)
}

// ListExists reports whether a list row exists for the on-chain id.
func (s *Store) ListExists(ctx context.Context, id uint64) (bool, error) {
	var exists bool
	err := s.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM lists WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("list exists %d: %w", id, err)
	}
	return exists, nil
}

// CreateList inserts a new list. The on-chain id is globally new on a
// create event; a replayed create simply refreshes the row.
func (s *Store) CreateList(ctx context.Context, l *models.List) error {
	return s.Exec(ctx, `
		INSERT INTO lists (
			id, owner_id, name, description, cover_image_url,
			admin_only_registrations, default_registration_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			cover_image_url = EXCLUDED.cover_image_url,
			admin_only_registrations = EXCLUDED.admin_only_registrations,
			default_registration_status = EXCLUDED.default_registration_status,
			updated_at = EXCLUDED.updated_at
	`, l.ID, l.OwnerID, l.Name, l.Description, l.CoverImageURL,
		l.AdminOnlyRegs, l.DefaultRegStatus, l.CreatedAt, l.UpdatedAt)
}

// BulkInsertRegistrations performs an idempotent batch insert,
// tolerating partial duplicates from replayed batch payloads.
func (s *Store) BulkInsertRegistrations(ctx context.Context, regs []models.ListRegistration) error {
	return s.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, r := range regs {
			_, err := tx.Exec(ctx, `
				INSERT INTO list_registrations (
					id, list_id, registrant_id, registered_by, status,
					submitted_at, updated_at, registrant_notes, admin_notes, tx_hash
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (list_id, registrant_id) DO NOTHING
			`, r.ID, r.ListID, r.RegistrantID, r.RegisteredBy, r.Status,
				r.SubmittedAt, r.UpdatedAt, r.RegistrantNotes, r.AdminNotes, r.TxHash)
			if err != nil {
				return fmt.Errorf("insert registration %d: %w", r.ID, err)
			}
		}
		return nil
	})
}

// UpdateRegistration applies a targeted status update by on-chain
// registration id.
func (s *Store) UpdateRegistration(ctx context.Context, id uint64, status models.RegistrationStatus, notes *string) error {
	return s.Exec(ctx, `
		UPDATE list_registrations
		SET status = $2, admin_notes = COALESCE($3, admin_notes), updated_at = NOW()
		WHERE id = $1
	`, id, status, notes)
}

// GetRegistration looks up a registration by on-chain id.
func (s *Store) GetRegistration(ctx context.Context, id uint64) (*models.ListRegistration, bool, error) {
	r := &models.ListRegistration{}
	err := s.QueryRow(ctx, `
		SELECT id, list_id, registrant_id, registered_by, status,
		       submitted_at, updated_at, registrant_notes, admin_notes, tx_hash
		FROM list_registrations WHERE id = $1
	`, id).Scan(&r.ID, &r.ListID, &r.RegistrantID, &r.RegisteredBy, &r.Status,
		&r.SubmittedAt, &r.UpdatedAt, &r.RegistrantNotes, &r.AdminNotes, &r.TxHash)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get registration %d: %w", id, err)
	}
	return r, true, nil
}

// UpsertUpvote records an upvote keyed by (list, account).
func (s *Store) UpsertUpvote(ctx context.Context, u *models.ListUpvote) error {
	return s.Exec(ctx, `
		INSERT INTO list_upvotes (list_id, account_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (list_id, account_id) DO NOTHING
	`, u.ListID, u.AccountID, u.CreatedAt)
}
