package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initCheckpoint creates the singleton checkpoint table.
func (s *Store) initCheckpoint(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS block_heights (
			id INT PRIMARY KEY,
			block_height BIGINT NOT NULL,
			block_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
	`
	return s.Exec(ctx, query)
}

// GetCheckpoint reads the last-processed checkpoint. found=false means
// no checkpoint has ever been written, which is a valid outcome
// distinct from height 0, never an error.
func (s *Store) GetCheckpoint(ctx context.Context) (*models.Checkpoint, bool, error) {
	cp := &models.Checkpoint{}
	err := s.QueryRow(ctx, `
		SELECT id, block_height, block_timestamp, updated_at
		FROM block_heights WHERE id = $1
	`, models.CheckpointID).Scan(&cp.ID, &cp.BlockHeight, &cp.BlockTimestamp, &cp.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, true, nil
}

// UpsertCheckpoint atomically records the last fully-applied block. The
// write is idempotent, so an interrupted iteration simply resumes at
// the same height on restart.
func (s *Store) UpsertCheckpoint(ctx context.Context, height uint64, blockTime time.Time) error {
	return s.Exec(ctx, `
		INSERT INTO block_heights (id, block_height, block_timestamp, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			block_height = EXCLUDED.block_height,
			block_timestamp = EXCLUDED.block_timestamp,
			updated_at = NOW()
	`, models.CheckpointID, height, blockTime)
}
