package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Open(db, DialectPostgres), mock
}

func TestSaveSignal(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signals")).
		WithArgs("sig-1", "hiring_signal", "job_postings", "domain:acme.com", 0.8,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SaveSignal(ctx, contracts.Signal{
		ID: "sig-1", SignalType: "hiring_signal", SourceAPI: "job_postings",
		CanonicalKey: "domain:acme.com", Confidence: 0.8,
		RawData: map[string]any{"title": "Senior Engineer"}, DetectedAt: time.Now(), Status: contracts.StatusPending,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingSignalsForKey(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "signal_type", "source_api", "canonical_key", "confidence",
		"raw_data", "company_name", "detected_at", "created_at", "status", "notion_page_id", "error_message"}).
		AddRow("sig-1", "hiring_signal", "job_postings", "domain:acme.com", 0.8, `{"title":"Engineer"}`, "Acme", time.Now(), time.Now(), "pending", nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, signal_type, source_api, canonical_key, confidence, raw_data, company_name, detected_at, created_at, status, notion_page_id, error_message")).
		WithArgs("domain:acme.com").
		WillReturnRows(rows)

	signals, err := s.PendingSignalsForKey(ctx, "domain:acme.com")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "hiring_signal", signals[0].SignalType)
	assert.Equal(t, "Engineer", signals[0].RawData["title"])
}

func TestGetPreviousSnapshot_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_type, external_id, raw_payload, fetched_at, change_detected, created_at, archived_at, archive_ref")).
		WithArgs("github_repo", "acme/widget").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_type", "external_id", "raw_payload", "fetched_at", "change_detected", "created_at", "archived_at", "archive_ref"}))

	_, err := s.GetPreviousSnapshot(ctx, "github_repo", "acme/widget")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestIsSuppressed(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT expires_at FROM suppression_cache")).
		WithArgs("domain:acme.com").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(now.Add(24 * time.Hour)))

	suppressed, err := s.IsSuppressed(ctx, "domain:acme.com", now)
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestIsSuppressed_Expired(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT expires_at FROM suppression_cache")).
		WithArgs("domain:acme.com").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(now.Add(-24 * time.Hour)))

	suppressed, err := s.IsSuppressed(ctx, "domain:acme.com", now)
	require.NoError(t, err)
	assert.False(t, suppressed)
}

func TestUpsertLink_HigherConfidenceReplaces(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, asset_id, source_type, external_id, lead_canonical_key, confidence, resolved_by, resolved_at, metadata")).
		WithArgs("github_repo", "acme/widget").
		WillReturnRows(sqlmock.NewRows([]string{"id", "asset_id", "source_type", "external_id", "lead_canonical_key", "confidence", "resolved_by", "resolved_at", "metadata"}).
			AddRow(1, 10, "github_repo", "acme/widget", "org:acme", 0.4, "org_match", now, nil))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM asset_to_lead")).
		WithArgs("github_repo", "acme/widget").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO asset_to_lead")).
		WithArgs(int64(10), "github_repo", "acme/widget", "domain:acme.com", 0.9, "domain_match", now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	replaced, err := s.UpsertLink(ctx, contracts.AssetToLead{
		AssetID: 10, SourceType: "github_repo", ExternalID: "acme/widget",
		LeadCanonicalKey: "domain:acme.com", Confidence: 0.9, ResolvedBy: contracts.ResolvedByDomainMatch, ResolvedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, replaced)
}

func TestOutboxBacklog(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM crm_outbox WHERE status != 'sent'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := s.OutboxBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
