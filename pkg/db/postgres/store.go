package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the entity repositories.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates a new connection pool to PostgreSQL.
func Connect(ctx context.Context, url string) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MinConns = 2
	config.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool (used by tests).
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for read-path collaborators.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Exec runs a statement.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.pool.Exec(ctx, sql, args...)
	return err
}

// QueryRow runs a single-row query.
func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

// Query runs a multi-row query.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

// BeginFunc runs fn inside a transaction, committing on nil and rolling
// back on error.
func (s *Store) BeginFunc(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

// InitSchema creates all tables if they do not exist. Order matters for
// foreign key references.
func (s *Store) InitSchema(ctx context.Context) error {
	inits := []func(context.Context) error{
		s.initAccounts,
		s.initTokens,
		s.initPots,
		s.initDonations,
		s.initActivities,
		s.initLists,
		s.initRounds,
		s.initNadabot,
		s.initCounters,
		s.initCheckpoint,
		s.initIndexProgress,
	}
	for _, init := range inits {
		if err := init(ctx); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
