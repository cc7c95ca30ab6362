package db

import (
	"errors"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure from
// postgres (pgx or lib/pq) or sqlite. When names are given the match is
// narrowed to one of them. Postgres reports constraint names while sqlite
// only reports "table.column", so callers usually pass both forms.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && matchesName(pgxErr.ConstraintName, names)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && matchesName(pqErr.Constraint, names)
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name != "" && strings.Contains(msg, name) {
			return true
		}
	}
	return false
}

func matchesName(got string, names []string) bool {
	return len(names) == 0 || slices.Contains(names, got)
}
