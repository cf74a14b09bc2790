package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// ScheduleOutbox queues rec for delivery, doing nothing if a record
// with the same ID was already scheduled (the push call that produced
// it may have been retried upstream).
func (s *Store) ScheduleOutbox(ctx context.Context, rec contracts.OutboxRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal outbox payload: %w", err)
	}
	signalIDsJSON, err := json.Marshal(rec.SignalIDs)
	if err != nil {
		return fmt.Errorf("store: marshal outbox signal_ids: %w", err)
	}

	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	nextAttempt := rec.NextAttemptAt
	if nextAttempt.IsZero() {
		nextAttempt = now
	}

	query := fmt.Sprintf(`
		INSERT INTO crm_outbox (id, canonical_key, payload, signal_ids, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES (%s, %s, %s, %s, 'pending', 0, %s, %s, %s)
		ON CONFLICT (id) DO NOTHING
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6), s.placeholder(7))
	_, err = s.DB.ExecContext(ctx, query, rec.ID, rec.CanonicalKey, payloadJSON, signalIDsJSON, nextAttempt, now, now)
	if err != nil {
		return fmt.Errorf("store: schedule outbox record %s: %w", rec.ID, err)
	}
	return nil
}

// GetPendingOutbox returns every outbox record due for a delivery
// attempt as of now, oldest first.
func (s *Store) GetPendingOutbox(ctx context.Context, now time.Time) ([]contracts.OutboxRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, canonical_key, payload, signal_ids, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM crm_outbox
		WHERE status != 'sent' AND next_attempt_at <= %s
		ORDER BY next_attempt_at ASC
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("store: query pending outbox: %w", err)
	}
	defer rows.Close()

	var out []contracts.OutboxRecord
	for rows.Next() {
		var (
			rec           contracts.OutboxRecord
			payloadJSON   []byte
			signalIDsJSON []byte
			status        string
			lastError     sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.CanonicalKey, &payloadJSON, &signalIDsJSON, &status, &rec.Attempts,
			&rec.NextAttemptAt, &lastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("store: corrupt outbox payload for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(signalIDsJSON, &rec.SignalIDs); err != nil {
			return nil, fmt.Errorf("store: corrupt outbox signal_ids for %s: %w", rec.ID, err)
		}
		rec.Status = contracts.OutboxStatus(status)
		rec.LastError = lastError.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkOutboxSent marks rec delivered.
func (s *Store) MarkOutboxSent(ctx context.Context, id string, now time.Time) error {
	query := fmt.Sprintf(`UPDATE crm_outbox SET status = 'sent', updated_at = %s WHERE id = %s`,
		s.placeholder(1), s.placeholder(2))
	_, err := s.DB.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("store: mark outbox %s sent: %w", id, err)
	}
	return nil
}

// MarkOutboxRetry bumps the attempt counter, records lastErr, and
// schedules the next attempt at nextAttemptAt, leaving the record
// "pending" (or "failed" once attempts exceeds the caller's own retry
// budget — the caller decides that and passes the matching status).
func (s *Store) MarkOutboxRetry(ctx context.Context, id string, status contracts.OutboxStatus, lastErr string, nextAttemptAt, now time.Time) error {
	query := fmt.Sprintf(`
		UPDATE crm_outbox
		SET status = %s, attempts = attempts + 1, last_error = %s, next_attempt_at = %s, updated_at = %s
		WHERE id = %s
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))
	_, err := s.DB.ExecContext(ctx, query, string(status), lastErr, nextAttemptAt, now, id)
	if err != nil {
		return fmt.Errorf("store: mark outbox %s retry: %w", id, err)
	}
	return nil
}

// OutboxBacklog returns the count of records not yet sent, used by the
// health report.
func (s *Store) OutboxBacklog(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM crm_outbox WHERE status != 'sent'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count outbox backlog: %w", err)
	}
	return count, nil
}
