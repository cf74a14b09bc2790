package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// IsDuplicate reports whether any signal (of any status) has already
// been recorded for canonicalKey, the collector runtime's second dedup
// gate after the in-run seen set.
func (s *Store) IsDuplicate(ctx context.Context, canonicalKey string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM signals WHERE canonical_key = %s LIMIT 1`, s.placeholder(1))
	var exists int
	err := s.DB.QueryRowContext(ctx, query, canonicalKey).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check duplicate %s: %w", canonicalKey, err)
	}
	return true, nil
}

// CheckSuppression returns the live suppression entry for canonicalKey,
// or nil if absent or expired — the collector runtime's third dedup
// gate, checked against the CRM-synced cache rather than the signal
// table itself.
func (s *Store) CheckSuppression(ctx context.Context, canonicalKey string) (*contracts.SuppressionEntry, error) {
	query := fmt.Sprintf(`
		SELECT canonical_key, crm_page_id, crm_status, company_name, synced_at, expires_at
		FROM suppression_cache
		WHERE canonical_key = %s
	`, s.placeholder(1))

	var (
		entry       contracts.SuppressionEntry
		companyName sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, query, canonicalKey).Scan(
		&entry.CanonicalKey, &entry.CRMPageID, &entry.CRMStatus, &companyName, &entry.SyncedAt, &entry.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: check suppression %s: %w", canonicalKey, err)
	}
	entry.CompanyName = companyName.String

	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}
