package backfill

import (
	"context"
	"fmt"

	"github.com/potlock-network/potlock-indexer/pkg/db/postgres"
)

// GapStats contains statistics about detected gaps.
type GapStats struct {
	TotalExpected uint64 // Total blocks expected in range
	TotalIndexed  uint64 // Blocks already indexed
	TotalMissing  uint64 // Blocks missing
	FirstMissing  uint64 // First missing height (0 if none)
	LastMissing   uint64 // Last missing height (0 if none)
}

// GetGapStats returns statistics about gaps in index progress.
func GetGapStats(ctx context.Context, store *postgres.Store, start, end uint64) (*GapStats, error) {
	query := `
		WITH expected AS (
			SELECT COUNT(*) as total FROM generate_series($1::bigint, $2::bigint)
		),
		indexed AS (
			SELECT COUNT(*) as total FROM index_progress
			WHERE height BETWEEN $1 AND $2
		),
		missing AS (
			SELECT gs.height
			FROM generate_series($1::bigint, $2::bigint) AS gs(height)
			WHERE NOT EXISTS (
				SELECT 1 FROM index_progress p
				WHERE p.height = gs.height
			)
		),
		missing_stats AS (
			SELECT
				COUNT(*) as total,
				MIN(height) as first_missing,
				MAX(height) as last_missing
			FROM missing
		)
		SELECT
			expected.total,
			indexed.total,
			missing_stats.total,
			COALESCE(missing_stats.first_missing, 0),
			COALESCE(missing_stats.last_missing, 0)
		FROM expected, indexed, missing_stats
	`

	stats := &GapStats{}
	err := store.QueryRow(ctx, query, start, end).Scan(
		&stats.TotalExpected,
		&stats.TotalIndexed,
		&stats.TotalMissing,
		&stats.FirstMissing,
		&stats.LastMissing,
	)
	if err != nil {
		return nil, fmt.Errorf("query gap stats: %w", err)
	}

	return stats, nil
}
