package suppressionsync

import (
	"context"
	"testing"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/crmclient"
)

type fakeStore struct {
	upserted []contracts.SuppressionEntry
	purged   int64
}

func (s *fakeStore) UpsertSuppression(ctx context.Context, entry contracts.SuppressionEntry) error {
	s.upserted = append(s.upserted, entry)
	return nil
}

func (s *fakeStore) PurgeExpiredSuppressions(ctx context.Context, now time.Time) (int64, error) {
	return s.purged, nil
}

type fakeConnector struct {
	tracked []crmclient.TrackedEntry
}

func (c *fakeConnector) UpsertProspect(ctx context.Context, p crmclient.Prospect) (crmclient.PushResult, error) {
	return crmclient.PushResult{}, nil
}

func (c *fakeConnector) ListTracked(ctx context.Context, since time.Time) ([]crmclient.TrackedEntry, error) {
	return c.tracked, nil
}

func TestRunOnce_UpsertsEveryTrackedEntry(t *testing.T) {
	st := &fakeStore{purged: 3}
	crm := &fakeConnector{tracked: []crmclient.TrackedEntry{
		{CanonicalKey: "domain:acme.com", PageID: "p1", Status: "Source"},
		{CanonicalKey: "domain:beta.com", PageID: "p2", Status: "Tracking"},
	}}
	job := New(st, crm, time.Hour, nil)

	report, err := job.RunOnce(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Synced != 2 {
		t.Fatalf("expected 2 synced, got %d", report.Synced)
	}
	if report.Purged != 3 {
		t.Fatalf("expected purged count passed through, got %d", report.Purged)
	}
	if len(st.upserted) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(st.upserted))
	}
	if st.upserted[0].ExpiresAt.Before(st.upserted[0].SyncedAt) {
		t.Fatal("expected ExpiresAt after SyncedAt")
	}
}

func TestRunOnce_NoEntries(t *testing.T) {
	st := &fakeStore{}
	crm := &fakeConnector{}
	job := New(st, crm, 0, nil)

	report, err := job.RunOnce(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Synced != 0 {
		t.Fatalf("expected no entries synced, got %d", report.Synced)
	}
}
