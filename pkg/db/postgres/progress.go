package postgres

import (
	"context"
	"fmt"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initIndexProgress creates the per-height progress table. The
// singleton checkpoint answers "where do I resume"; this table feeds
// gap detection and the backfill tooling.
func (s *Store) initIndexProgress(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS index_progress (
			height BIGINT PRIMARY KEY,
			indexed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			indexing_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_index_progress_indexed_at ON index_progress(indexed_at);
	`
	return s.Exec(ctx, query)
}

// RecordIndexed records that a height was successfully applied.
func (s *Store) RecordIndexed(ctx context.Context, height uint64, indexingTimeMs float64) error {
	return s.Exec(ctx, `
		INSERT INTO index_progress (height, indexed_at, indexing_time_ms)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (height) DO UPDATE SET
			indexed_at = NOW(),
			indexing_time_ms = EXCLUDED.indexing_time_ms
	`, height, indexingTimeMs)
}

// LastIndexed returns the highest recorded height, 0 when none.
func (s *Store) LastIndexed(ctx context.Context) (uint64, error) {
	var height uint64
	err := s.QueryRow(ctx, `
		SELECT COALESCE(MAX(height), 0) FROM index_progress
	`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("query last indexed height: %w", err)
	}
	return height, nil
}

// FindGaps returns missing [From, To] ranges strictly inside observed
// heights. The trailing gap up to the chain head is the caller's to
// add.
func (s *Store) FindGaps(ctx context.Context) ([]models.Gap, error) {
	query := `
		SELECT (prev_h + 1)::BIGINT AS from_h, (h - 1)::BIGINT AS to_h
		FROM (
			SELECT
				height AS h,
				LAG(height) OVER (ORDER BY height) AS prev_h
			FROM index_progress
			ORDER BY height
		) t
		WHERE prev_h IS NOT NULL AND h > prev_h + 1
		ORDER BY from_h
	`

	rows, err := s.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query gaps: %w", err)
	}
	defer rows.Close()

	var gaps []models.Gap
	for rows.Next() {
		var gap models.Gap
		if err := rows.Scan(&gap.From, &gap.To); err != nil {
			return nil, fmt.Errorf("scan gap: %w", err)
		}
		gaps = append(gaps, gap)
	}
	return gaps, rows.Err()
}

// MissingHeights returns up to limit unindexed heights within
// [start, end], via a generate_series anti-join.
func (s *Store) MissingHeights(ctx context.Context, start, end uint64, limit int) ([]uint64, error) {
	query := `
		SELECT gs.height
		FROM generate_series($1::bigint, $2::bigint) AS gs(height)
		WHERE NOT EXISTS (
			SELECT 1 FROM index_progress p WHERE p.height = gs.height
		)
		ORDER BY gs.height
		LIMIT $3
	`

	rows, err := s.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("query missing heights: %w", err)
	}
	defer rows.Close()

	var heights []uint64
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan height: %w", err)
		}
		heights = append(heights, h)
	}
	return heights, rows.Err()
}
