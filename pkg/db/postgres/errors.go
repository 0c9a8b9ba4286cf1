package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// isNoRows reports whether err is pgx's empty-result sentinel. Store
// read paths translate it into a (zero, false, nil) return so callers
// never treat absence as a failure.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
