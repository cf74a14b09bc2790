package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

type fakeAdapter struct {
	name    string
	apiName string
	signals []contracts.Signal
	err     error
}

func (a *fakeAdapter) Name() string    { return a.name }
func (a *fakeAdapter) APIName() string { return a.apiName }
func (a *fakeAdapter) Collect(ctx context.Context) ([]contracts.Signal, error) {
	return a.signals, a.err
}

type fakeStore struct {
	duplicates   map[string]bool
	suppressed   map[string]*contracts.SuppressionEntry
	saved        []contracts.Signal
	saveErr      error
}

func (s *fakeStore) SaveSignal(ctx context.Context, sig contracts.Signal) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, sig)
	return nil
}

func (s *fakeStore) IsDuplicate(ctx context.Context, canonicalKey string) (bool, error) {
	return s.duplicates[canonicalKey], nil
}

func (s *fakeStore) CheckSuppression(ctx context.Context, canonicalKey string) (*contracts.SuppressionEntry, error) {
	return s.suppressed[canonicalKey], nil
}

func TestRun_NewSignalsSaved(t *testing.T) {
	adapter := &fakeAdapter{name: "github", apiName: "github", signals: []contracts.Signal{
		{ID: "s1", CanonicalKey: "domain:acme.com", SignalType: "github_spike"},
		{ID: "s2", CanonicalKey: "domain:beta.com", SignalType: "github_spike"},
	}}
	store := &fakeStore{duplicates: map[string]bool{}, suppressed: map[string]*contracts.SuppressionEntry{}}

	result := New(adapter, store, nil).Run(context.Background(), false)

	if result.SignalsFound != 2 || result.SignalsNew != 2 || result.SignalsSuppressed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %v", result.Status)
	}
	if len(store.saved) != 2 {
		t.Fatalf("expected 2 saved signals, got %d", len(store.saved))
	}
}

func TestRun_DuplicateAndSuppressedAreSkipped(t *testing.T) {
	adapter := &fakeAdapter{name: "github", apiName: "github", signals: []contracts.Signal{
		{ID: "s1", CanonicalKey: "domain:dup.com"},
		{ID: "s2", CanonicalKey: "domain:suppressed.com"},
		{ID: "s3", CanonicalKey: "domain:new.com"},
	}}
	store := &fakeStore{
		duplicates: map[string]bool{"domain:dup.com": true},
		suppressed: map[string]*contracts.SuppressionEntry{"domain:suppressed.com": {CanonicalKey: "domain:suppressed.com"}},
	}

	result := New(adapter, store, nil).Run(context.Background(), false)

	if result.SignalsNew != 1 || result.SignalsSuppressed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRun_InRunDuplicatesCollapse(t *testing.T) {
	adapter := &fakeAdapter{name: "github", apiName: "github", signals: []contracts.Signal{
		{ID: "s1", CanonicalKey: "domain:acme.com"},
		{ID: "s2", CanonicalKey: "domain:acme.com"},
	}}
	store := &fakeStore{duplicates: map[string]bool{}, suppressed: map[string]*contracts.SuppressionEntry{}}

	result := New(adapter, store, nil).Run(context.Background(), false)

	if result.SignalsNew != 1 || result.SignalsSuppressed != 1 {
		t.Fatalf("expected one new and one in-run suppressed, got %+v", result)
	}
}

func TestRun_DryRunNeverSaves(t *testing.T) {
	adapter := &fakeAdapter{name: "github", apiName: "github", signals: []contracts.Signal{
		{ID: "s1", CanonicalKey: "domain:acme.com"},
	}}
	store := &fakeStore{duplicates: map[string]bool{}, suppressed: map[string]*contracts.SuppressionEntry{}}

	result := New(adapter, store, nil).Run(context.Background(), true)

	if result.Status != StatusDryRun {
		t.Fatalf("expected dry_run status, got %v", result.Status)
	}
	if len(store.saved) != 0 {
		t.Fatalf("dry run must not persist signals")
	}
}

func TestRun_AdapterErrorReturnsErrorStatus(t *testing.T) {
	adapter := &fakeAdapter{name: "github", apiName: "github", err: errors.New("api unavailable")}
	result := New(adapter, nil, nil).Run(context.Background(), false)

	if result.Status != StatusError {
		t.Fatalf("expected error status, got %v", result.Status)
	}
}

func TestRun_PartialSuccessOnSaveError(t *testing.T) {
	adapter := &fakeAdapter{name: "github", apiName: "github", signals: []contracts.Signal{
		{ID: "s1", CanonicalKey: "domain:acme.com"},
	}}
	store := &fakeStore{duplicates: map[string]bool{}, suppressed: map[string]*contracts.SuppressionEntry{}, saveErr: errors.New("db down")}

	result := New(adapter, store, nil).Run(context.Background(), false)

	if result.Status != StatusPartialSuccess {
		t.Fatalf("expected partial_success, got %v", result.Status)
	}
}
