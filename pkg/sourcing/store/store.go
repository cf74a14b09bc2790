// Package store persists signals, source assets, asset-to-lead links,
// suppression entries, the CRM outbox, and pipeline runs. Two backends
// share one schema: PostgreSQL (lib/pq) in production, pure-Go SQLite
// (modernc.org/sqlite) for local/dev and tests.
package store

import (
	"database/sql"
	"fmt"
)

// Dialect abstracts the small number of SQL differences between the
// Postgres and SQLite backends: positional placeholder syntax and the
// upsert clause.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Store wraps a database/sql handle with the dialect needed to build
// portable queries.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open wraps an already-opened *sql.DB. Callers choose the driver
// ("postgres" via lib/pq, or "sqlite" via modernc.org/sqlite) and pass
// the matching Dialect.
func Open(db *sql.DB, dialect Dialect) *Store {
	return &Store{DB: db, Dialect: dialect}
}

// placeholder returns the positional placeholder for argument index n
// (1-based) in the store's dialect.
func (s *Store) placeholder(n int) string {
	if s.Dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// upsertClause returns the dialect-appropriate "insert ... on conflict"
// suffix for a table whose conflict target is conflictCols and whose
// update set is updateCols (both already comma-joined column lists with
// "col = excluded.col"/"col = EXCLUDED.col" style assignments prepared
// by the caller per-dialect would be brittle; instead both dialects
// support the same "ON CONFLICT (...) DO UPDATE SET ..." syntax via
// SQLite's upsert extension, so one clause serves both backends).
func upsertClause(conflictCols, setClause string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflictCols, setClause)
}
