package store

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Migration is one forward-only schema step, named with a semver string
// so the applied-migrations log can be compared against the running
// binary's expected schema version with ordinary semver rules instead of
// string/integer comparison.
type Migration struct {
	Version string
	Name    string
	SQL     map[Dialect]string
}

// Migrations is the ordered set of schema steps for the discovery
// engine's tables.
var Migrations = []Migration{
	{
		Version: "0.1.0",
		Name:    "initial_schema",
		SQL: map[Dialect]string{
			DialectPostgres: postgresInitialSchema,
			DialectSQLite:   sqliteInitialSchema,
		},
	},
	{
		Version: "0.2.0",
		Name:    "founder_tables",
		SQL: map[Dialect]string{
			DialectPostgres: postgresFounderSchema,
			DialectSQLite:   sqliteFounderSchema,
		},
	},
}

// Migrate applies, in order, every migration whose version is not yet
// recorded in the schema_migrations table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("store: ensure migrations table: %w", err)
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("store: read applied migrations: %w", err)
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		sqlText, ok := m.SQL[s.Dialect]
		if !ok {
			return fmt.Errorf("store: migration %s has no SQL for dialect %v", m.Version, s.Dialect)
		}
		if _, err := s.DB.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("store: migration %s (%s): %w", m.Version, m.Name, err)
		}
		if err := s.recordMigration(ctx, m); err != nil {
			return fmt.Errorf("store: record migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (s *Store) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *Store) recordMigration(ctx context.Context, m Migration) error {
	query := fmt.Sprintf(`INSERT INTO schema_migrations (version, name) VALUES (%s, %s)`,
		s.placeholder(1), s.placeholder(2))
	_, err := s.DB.ExecContext(ctx, query, m.Version, m.Name)
	return err
}

// CompatibleWith reports whether the schema version currently recorded
// as the migrations table's maximum applied version satisfies the given
// semver constraint (e.g. ">= 0.1.0, < 1.0.0"), so a caller can fail
// fast on a binary/schema mismatch instead of surfacing opaque SQL
// errors later. The CLI's migrate subcommand does not call it.
func (s *Store) CompatibleWith(ctx context.Context, constraint string) (bool, error) {
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return false, err
	}
	var maxVersion *semver.Version
	for v := range applied {
		parsed, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if maxVersion == nil || parsed.GreaterThan(maxVersion) {
			maxVersion = parsed
		}
	}
	if maxVersion == nil {
		return false, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("store: invalid constraint %q: %w", constraint, err)
	}
	return c.Check(maxVersion), nil
}

const postgresInitialSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	signal_type TEXT NOT NULL,
	source_api TEXT NOT NULL,
	canonical_key TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	raw_data JSONB NOT NULL,
	company_name TEXT,
	detected_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status TEXT NOT NULL DEFAULT 'pending',
	notion_page_id TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_signals_canonical_key ON signals (canonical_key);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status);

CREATE TABLE IF NOT EXISTS source_assets (
	id BIGSERIAL PRIMARY KEY,
	source_type TEXT NOT NULL,
	external_id TEXT NOT NULL,
	raw_payload JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	change_detected BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	archived_at TIMESTAMPTZ,
	archive_ref TEXT
);
CREATE INDEX IF NOT EXISTS idx_source_assets_lookup ON source_assets (source_type, external_id, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_source_assets_changes ON source_assets (change_detected, created_at DESC);

CREATE TABLE IF NOT EXISTS asset_to_lead (
	id BIGSERIAL PRIMARY KEY,
	asset_id BIGINT NOT NULL,
	source_type TEXT NOT NULL,
	external_id TEXT NOT NULL,
	lead_canonical_key TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	resolved_by TEXT NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_asset_to_lead_asset ON asset_to_lead (source_type, external_id, resolved_by DESC);
CREATE INDEX IF NOT EXISTS idx_asset_to_lead_key ON asset_to_lead (lead_canonical_key);

CREATE TABLE IF NOT EXISTS asset_registry (
	source_type TEXT NOT NULL,
	external_id TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_type, external_id)
);

CREATE TABLE IF NOT EXISTS suppression_cache (
	canonical_key TEXT PRIMARY KEY,
	crm_page_id TEXT NOT NULL,
	crm_status TEXT NOT NULL,
	company_name TEXT,
	synced_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_outbox (
	id TEXT PRIMARY KEY,
	canonical_key TEXT NOT NULL,
	payload JSONB NOT NULL,
	signal_ids JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_crm_outbox_pending ON crm_outbox (status, next_attempt_at);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	duration_ms BIGINT,
	collector_counts JSONB,
	signal_count INT,
	decision_counts JSONB,
	push_outcomes JSONB,
	errors JSONB,
	health_report JSONB
);
`

const sqliteInitialSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	signal_type TEXT NOT NULL,
	source_api TEXT NOT NULL,
	canonical_key TEXT NOT NULL,
	confidence REAL NOT NULL,
	raw_data TEXT NOT NULL,
	company_name TEXT,
	detected_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'pending',
	notion_page_id TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_signals_canonical_key ON signals (canonical_key);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status);

CREATE TABLE IF NOT EXISTS source_assets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type TEXT NOT NULL,
	external_id TEXT NOT NULL,
	raw_payload TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	change_detected BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	archived_at TIMESTAMP,
	archive_ref TEXT
);
CREATE INDEX IF NOT EXISTS idx_source_assets_lookup ON source_assets (source_type, external_id, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_source_assets_changes ON source_assets (change_detected, created_at DESC);

CREATE TABLE IF NOT EXISTS asset_to_lead (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id INTEGER NOT NULL,
	source_type TEXT NOT NULL,
	external_id TEXT NOT NULL,
	lead_canonical_key TEXT NOT NULL,
	confidence REAL NOT NULL,
	resolved_by TEXT NOT NULL,
	resolved_at TIMESTAMP NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_asset_to_lead_asset ON asset_to_lead (source_type, external_id, resolved_by DESC);
CREATE INDEX IF NOT EXISTS idx_asset_to_lead_key ON asset_to_lead (lead_canonical_key);

CREATE TABLE IF NOT EXISTS asset_registry (
	source_type TEXT NOT NULL,
	external_id TEXT NOT NULL,
	first_seen_at TIMESTAMP NOT NULL,
	PRIMARY KEY (source_type, external_id)
);

CREATE TABLE IF NOT EXISTS suppression_cache (
	canonical_key TEXT PRIMARY KEY,
	crm_page_id TEXT NOT NULL,
	crm_status TEXT NOT NULL,
	company_name TEXT,
	synced_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_outbox (
	id TEXT PRIMARY KEY,
	canonical_key TEXT NOT NULL,
	payload TEXT NOT NULL,
	signal_ids TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_error TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_crm_outbox_pending ON crm_outbox (status, next_attempt_at);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	duration_ms INTEGER,
	collector_counts TEXT,
	signal_count INTEGER,
	decision_counts TEXT,
	push_outcomes TEXT,
	errors TEXT,
	health_report TEXT
);
`

const postgresFounderSchema = `
CREATE TABLE IF NOT EXISTS founders (
	id BIGSERIAL PRIMARY KEY,
	canonical_key TEXT NOT NULL,
	name TEXT NOT NULL,
	faang_experience BOOLEAN NOT NULL DEFAULT FALSE,
	serial_founder BOOLEAN NOT NULL DEFAULT FALSE,
	linkedin_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_founders_canonical_key ON founders (canonical_key);

CREATE TABLE IF NOT EXISTS founder_experiences (
	founder_id BIGINT NOT NULL REFERENCES founders (id),
	company_name TEXT NOT NULL
);
`

const sqliteFounderSchema = `
CREATE TABLE IF NOT EXISTS founders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_key TEXT NOT NULL,
	name TEXT NOT NULL,
	faang_experience BOOLEAN NOT NULL DEFAULT 0,
	serial_founder BOOLEAN NOT NULL DEFAULT 0,
	linkedin_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_founders_canonical_key ON founders (canonical_key);

CREATE TABLE IF NOT EXISTS founder_experiences (
	founder_id INTEGER NOT NULL REFERENCES founders (id),
	company_name TEXT NOT NULL
);
`
