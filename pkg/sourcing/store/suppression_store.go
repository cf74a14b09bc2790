package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// DefaultSuppressionTTL is how long a synced suppression entry is
// trusted before it is treated as stale and re-checked against the CRM.
const DefaultSuppressionTTL = 7 * 24 * time.Hour

// UpsertSuppression records or refreshes a suppression-cache entry.
func (s *Store) UpsertSuppression(ctx context.Context, entry contracts.SuppressionEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO suppression_cache (canonical_key, crm_page_id, crm_status, company_name, synced_at, expires_at)
		VALUES (%s, %s, %s, %s, %s, %s)
		%s
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
		upsertClause("canonical_key", "crm_page_id = excluded.crm_page_id, crm_status = excluded.crm_status, company_name = excluded.company_name, synced_at = excluded.synced_at, expires_at = excluded.expires_at"),
	)
	_, err := s.DB.ExecContext(ctx, query,
		entry.CanonicalKey, entry.CRMPageID, entry.CRMStatus, nullableString(entry.CompanyName), entry.SyncedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: upsert suppression %s: %w", entry.CanonicalKey, err)
	}
	return nil
}

// IsSuppressed reports whether canonicalKey has a live (non-expired)
// suppression entry as of now, the check every collector dedup chain
// ends on before a signal reaches the gating pipeline.
func (s *Store) IsSuppressed(ctx context.Context, canonicalKey string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`SELECT expires_at FROM suppression_cache WHERE canonical_key = %s`, s.placeholder(1))
	var expiresAt time.Time
	err := s.DB.QueryRowContext(ctx, query, canonicalKey).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check suppression %s: %w", canonicalKey, err)
	}
	return !now.After(expiresAt), nil
}

// PurgeExpiredSuppressions deletes every entry whose ExpiresAt is
// before now, returning the number of rows removed.
func (s *Store) PurgeExpiredSuppressions(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM suppression_cache WHERE expires_at < %s`, s.placeholder(1))
	result, err := s.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("store: purge expired suppressions: %w", err)
	}
	return result.RowsAffected()
}

// SuppressionCount returns the number of entries currently cached,
// used by the health report.
func (s *Store) SuppressionCount(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppression_cache`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count suppressions: %w", err)
	}
	return count, nil
}
