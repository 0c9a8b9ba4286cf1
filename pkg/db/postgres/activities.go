package postgres

import (
	"context"
	"fmt"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initActivities creates the activities table. The (action_result,
// type) uniqueness is carried over from the original schema: it acts as
// event-level dedup but also collapses two real activities with
// byte-identical payloads of the same type.
func (s *Store) initActivities(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS activities (
			id BIGSERIAL PRIMARY KEY,
			signer_id TEXT NOT NULL REFERENCES accounts(id),
			receiver_id TEXT NOT NULL REFERENCES accounts(id),
			ts TIMESTAMP WITH TIME ZONE NOT NULL,
			action_result JSONB,
			tx_hash TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			UNIQUE (action_result, type)
		);

		CREATE INDEX IF NOT EXISTS idx_activities_signer ON activities(signer_id);
		CREATE INDEX IF NOT EXISTS idx_activities_ts ON activities(ts);
	`
	return s.Exec(ctx, query)
}

// UpsertActivity records an audit row; a re-delivered event with the
// same payload and type is a no-op.
func (s *Store) UpsertActivity(ctx context.Context, a *models.Activity) error {
	err := s.Exec(ctx, `
		INSERT INTO activities (signer_id, receiver_id, ts, action_result, tx_hash, type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (action_result, type) DO NOTHING
	`, a.SignerID, a.ReceiverID, a.Timestamp, a.ActionResult, a.TxHash, a.Type)
	if err != nil {
		return fmt.Errorf("upsert activity %s: %w", a.Type, err)
	}
	return nil
}

// CountActivities returns the number of audit rows of a given type.
func (s *Store) CountActivities(ctx context.Context, typ models.ActivityType) (uint64, error) {
	var n uint64
	err := s.QueryRow(ctx, `SELECT COUNT(*) FROM activities WHERE type = $1`, typ).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}
