package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// SaveSignal inserts sig, or updates it in place if a row with the same
// ID already exists (collectors may re-emit a signal after a retry).
func (s *Store) SaveSignal(ctx context.Context, sig contracts.Signal) error {
	rawJSON, err := json.Marshal(sig.RawData)
	if err != nil {
		return fmt.Errorf("store: marshal signal raw_data: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO signals (id, signal_type, source_api, canonical_key, confidence, raw_data, company_name, detected_at, created_at, status, notion_page_id, error_message)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		%s
	`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
		s.placeholder(9), s.placeholder(10), s.placeholder(11), s.placeholder(12),
		upsertClause("id", "signal_type = excluded.signal_type, confidence = excluded.confidence, raw_data = excluded.raw_data, status = excluded.status, notion_page_id = excluded.notion_page_id, error_message = excluded.error_message"),
	)

	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.DB.ExecContext(ctx, query,
		sig.ID, sig.SignalType, sig.SourceAPI, sig.CanonicalKey, sig.Confidence, rawJSON,
		nullableString(sig.CompanyName), sig.DetectedAt, createdAt, string(sig.Status),
		nullableString(sig.NotionPageID), nullableString(sig.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("store: save signal %s: %w", sig.ID, err)
	}
	return nil
}

// PendingSignalsForKey returns every pending signal recorded for
// canonicalKey, newest first, feeding both the gating pipeline (which
// needs a previous snapshot) and the verification gate (which needs the
// full decaying group).
func (s *Store) PendingSignalsForKey(ctx context.Context, canonicalKey string) ([]contracts.Signal, error) {
	query := fmt.Sprintf(`
		SELECT id, signal_type, source_api, canonical_key, confidence, raw_data, company_name, detected_at, created_at, status, notion_page_id, error_message
		FROM signals
		WHERE canonical_key = %s AND status = 'pending'
		ORDER BY detected_at DESC
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, canonicalKey)
	if err != nil {
		return nil, fmt.Errorf("store: query pending signals for %s: %w", canonicalKey, err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// PendingSignals returns every pending signal across all canonical
// keys, newest first. The orchestrator fetches the whole backlog in one
// shot so entity-resolution regrouping can move a signal into a
// different key's group before the verification gate ever sees it
// bucketed by its raw key.
func (s *Store) PendingSignals(ctx context.Context) ([]contracts.Signal, error) {
	query := `
		SELECT id, signal_type, source_api, canonical_key, confidence, raw_data, company_name, detected_at, created_at, status, notion_page_id, error_message
		FROM signals
		WHERE status = 'pending'
		ORDER BY detected_at DESC
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query pending signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// DistinctPendingCanonicalKeys returns every canonical key with at least
// one pending signal, the unit of work the verification gate processes
// one at a time.
func (s *Store) DistinctPendingCanonicalKeys(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT canonical_key FROM signals WHERE status = 'pending'`)
	if err != nil {
		return nil, fmt.Errorf("store: query distinct pending keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MarkSignalsStatus transitions every signal in ids to status, one
// UPDATE per signal, used after the verification gate routes a canonical key's
// signal group to pushed or rejected.
func (s *Store) MarkSignalsStatus(ctx context.Context, ids []string, status contracts.ProcessingStatus, notionPageID string) error {
	for _, id := range ids {
		query := fmt.Sprintf(`UPDATE signals SET status = %s, notion_page_id = %s WHERE id = %s`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3))
		if _, err := s.DB.ExecContext(ctx, query, string(status), nullableString(notionPageID), id); err != nil {
			return fmt.Errorf("store: mark signal %s status %s: %w", id, status, err)
		}
	}
	return nil
}

func scanSignals(rows *sql.Rows) ([]contracts.Signal, error) {
	var out []contracts.Signal
	for rows.Next() {
		var (
			sig          contracts.Signal
			rawJSON      []byte
			companyName  sql.NullString
			notionPageID sql.NullString
			errMessage   sql.NullString
			status       string
		)
		if err := rows.Scan(&sig.ID, &sig.SignalType, &sig.SourceAPI, &sig.CanonicalKey, &sig.Confidence,
			&rawJSON, &companyName, &sig.DetectedAt, &sig.CreatedAt, &status, &notionPageID, &errMessage); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawJSON, &sig.RawData); err != nil {
			return nil, fmt.Errorf("store: corrupt raw_data for signal %s: %w", sig.ID, err)
		}
		sig.CompanyName = companyName.String
		sig.NotionPageID = notionPageID.String
		sig.ErrorMessage = errMessage.String
		sig.Status = contracts.ProcessingStatus(status)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
