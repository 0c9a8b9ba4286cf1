package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
)

// initTokens creates the tokens and token_historical_prices tables.
func (s *Store) initTokens(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tokens (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id),
			decimals INT,
			name TEXT,
			symbol TEXT,
			icon TEXT,
			coingecko_id TEXT
		);

		CREATE TABLE IF NOT EXISTS token_historical_prices (
			id BIGSERIAL PRIMARY KEY,
			token_id TEXT NOT NULL REFERENCES tokens(account_id),
			ts TIMESTAMP WITH TIME ZONE NOT NULL,
			price_usd NUMERIC NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_token_prices_token_ts
			ON token_historical_prices(token_id, ts);
	`
	return s.Exec(ctx, query)
}

// GetOrCreateToken resolves a token by its owning account, creating a
// bare row (null metadata) when unseen. The owning account must already
// exist.
func (s *Store) GetOrCreateToken(ctx context.Context, accountID string) (*models.Token, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (account_id) VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID)
	if err != nil {
		return nil, false, fmt.Errorf("insert token %s: %w", accountID, err)
	}
	created := tag.RowsAffected() > 0

	tok := &models.Token{}
	err = s.QueryRow(ctx, `
		SELECT account_id, decimals, name, symbol, icon, coingecko_id
		FROM tokens WHERE account_id = $1
	`, accountID).Scan(&tok.AccountID, &tok.Decimals, &tok.Name, &tok.Symbol, &tok.Icon, &tok.CoingeckoID)
	if err != nil {
		return nil, false, fmt.Errorf("select token %s: %w", accountID, err)
	}
	return tok, created, nil
}

// UpdateTokenMetadata fills metadata from an ft_metadata view call.
func (s *Store) UpdateTokenMetadata(ctx context.Context, accountID string, decimals int, name, symbol, icon *string) error {
	return s.Exec(ctx, `
		UPDATE tokens
		SET decimals = $2, name = $3, symbol = $4, icon = $5
		WHERE account_id = $1
	`, accountID, decimals, name, symbol, icon)
}

// SetTokenCoingeckoID records the external price identifier.
func (s *Store) SetTokenCoingeckoID(ctx context.Context, accountID, coingeckoID string) error {
	return s.Exec(ctx, `
		UPDATE tokens SET coingecko_id = $2 WHERE account_id = $1
	`, accountID, coingeckoID)
}

// NearestHistoricalPrice returns the cached price closest to at within
// the given window, if any. Absence is a valid outcome, not an error.
func (s *Store) NearestHistoricalPrice(ctx context.Context, tokenID string, at time.Time, window time.Duration) (string, bool, error) {
	var price string
	err := s.QueryRow(ctx, `
		SELECT price_usd::TEXT
		FROM token_historical_prices
		WHERE token_id = $1
		  AND ts BETWEEN $2::timestamptz - $3::interval AND $2::timestamptz + $3::interval
		ORDER BY ABS(EXTRACT(EPOCH FROM ts - $2::timestamptz))
		LIMIT 1
	`, tokenID, at, window.String()).Scan(&price)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("nearest price %s: %w", tokenID, err)
	}
	return price, true, nil
}

// InsertHistoricalPrice appends a price observation to the cache.
func (s *Store) InsertHistoricalPrice(ctx context.Context, tokenID string, at time.Time, priceUSD string) error {
	return s.Exec(ctx, `
		INSERT INTO token_historical_prices (token_id, ts, price_usd)
		VALUES ($1, $2, $3::NUMERIC)
	`, tokenID, at, priceUSD)
}
