package outboxworker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/crmclient"
)

type fakeStore struct {
	pending []contracts.OutboxRecord
	sent    []string
	retried map[string]contracts.OutboxRecord
}

func (s *fakeStore) GetPendingOutbox(ctx context.Context, now time.Time) ([]contracts.OutboxRecord, error) {
	return s.pending, nil
}

func (s *fakeStore) MarkOutboxSent(ctx context.Context, id string, now time.Time) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkOutboxRetry(ctx context.Context, id string, status contracts.OutboxStatus, lastErr string, nextAttemptAt, now time.Time) error {
	rec := s.retried[id]
	rec.Status = status
	rec.LastError = lastErr
	rec.Attempts++
	s.retried[id] = rec
	return nil
}

type fakeConnector struct {
	failFor map[string]bool
}

func (c *fakeConnector) UpsertProspect(ctx context.Context, p crmclient.Prospect) (crmclient.PushResult, error) {
	if c.failFor[p.CanonicalKey] {
		return crmclient.PushResult{}, errors.New("crm unavailable")
	}
	return crmclient.PushResult{PageID: "page-" + p.CanonicalKey, Status: "ok"}, nil
}

func (c *fakeConnector) ListTracked(ctx context.Context, since time.Time) ([]crmclient.TrackedEntry, error) {
	return nil, nil
}

func TestDrainOnce_SendsSuccessfulRecords(t *testing.T) {
	st := &fakeStore{
		pending: []contracts.OutboxRecord{
			{ID: "o1", CanonicalKey: "domain:acme.com", Payload: map[string]any{"status": "Source"}},
		},
		retried: make(map[string]contracts.OutboxRecord),
	}
	w := New(st, &fakeConnector{}, 10, nil)

	report, err := w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 || report.Retried != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(st.sent) != 1 || st.sent[0] != "o1" {
		t.Fatalf("expected o1 marked sent, got %v", st.sent)
	}
}

func TestDrainOnce_RetriesFailedRecords(t *testing.T) {
	st := &fakeStore{
		pending: []contracts.OutboxRecord{
			{ID: "o1", CanonicalKey: "domain:dead.com", Attempts: 0, Payload: map[string]any{}},
		},
		retried: make(map[string]contracts.OutboxRecord),
	}
	w := New(st, &fakeConnector{failFor: map[string]bool{"domain:dead.com": true}}, 10, nil)

	report, err := w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Retried != 1 {
		t.Fatalf("expected one retry, got %+v", report)
	}
	if st.retried["o1"].Status != contracts.OutboxPending {
		t.Fatalf("expected record left pending, got %v", st.retried["o1"].Status)
	}
}

func TestDrainOnce_GivesUpAfterMaxRetries(t *testing.T) {
	st := &fakeStore{
		pending: []contracts.OutboxRecord{
			{ID: "o1", CanonicalKey: "domain:dead.com", Attempts: 5, Payload: map[string]any{}},
		},
		retried: make(map[string]contracts.OutboxRecord),
	}
	w := New(st, &fakeConnector{failFor: map[string]bool{"domain:dead.com": true}}, 10, nil)

	report, err := w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.GivenUp != 1 {
		t.Fatalf("expected giving up on record past max retries, got %+v", report)
	}
	if st.retried["o1"].Status != contracts.OutboxFailed {
		t.Fatalf("expected record marked failed, got %v", st.retried["o1"].Status)
	}
}

func TestDrainOnce_RespectsBatchSize(t *testing.T) {
	st := &fakeStore{retried: make(map[string]contracts.OutboxRecord)}
	for i := 0; i < 5; i++ {
		st.pending = append(st.pending, contracts.OutboxRecord{ID: "o", CanonicalKey: "domain:acme.com", Payload: map[string]any{}})
	}
	w := New(st, &fakeConnector{}, 2, nil)

	report, err := w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Attempted != 2 {
		t.Fatalf("expected batch size to cap attempts at 2, got %d", report.Attempted)
	}
}
