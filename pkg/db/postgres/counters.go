package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// providerSentinelCounterStart seeds the replacement-id counter well
// above any legitimately assigned on-chain provider id.
const providerSentinelCounterStart = 1_000_000

// initCounters creates the named-counter table backing workarounds that
// must survive restarts (the provider sentinel-id substitution).
func (s *Store) initCounters(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		);
	`
	return s.Exec(ctx, query)
}

// nextCounterTx atomically increments and returns a named counter
// inside the caller's transaction, seeding it at start on first use.
func nextCounterTx(ctx context.Context, tx pgx.Tx, name string, start uint64) (uint64, error) {
	var value uint64
	err := tx.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name, start).Scan(&value)
	return value, err
}

// NextCounter increments and returns a named counter in its own
// transaction.
func (s *Store) NextCounter(ctx context.Context, name string, start uint64) (uint64, error) {
	var value uint64
	err := s.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		value, err = nextCounterTx(ctx, tx, name, start)
		return err
	})
	return value, err
}
