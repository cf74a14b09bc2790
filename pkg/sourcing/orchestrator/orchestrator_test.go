package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/founder"
	"github.com/sourcingengine/core/pkg/sourcing/scoring"
	"github.com/sourcingengine/core/pkg/sourcing/verification"
)

type fakeStore struct {
	pending  []contracts.Signal
	marked   map[string]contracts.ProcessingStatus
	outbox   []contracts.OutboxRecord
	links    map[string]contracts.AssetToLead
	savedRun *contracts.PipelineRun
}

func (s *fakeStore) PendingSignals(ctx context.Context) ([]contracts.Signal, error) {
	return s.pending, nil
}

func (s *fakeStore) MarkSignalsStatus(ctx context.Context, ids []string, status contracts.ProcessingStatus, notionPageID string) error {
	for _, id := range ids {
		s.marked[id] = status
	}
	return nil
}

func (s *fakeStore) GetLeadForAsset(ctx context.Context, sourceType, externalID string, minConfidence float64) (string, bool, error) {
	link, ok := s.links[sourceType+"/"+externalID]
	if !ok || link.Confidence < minConfidence {
		return "", false, nil
	}
	return link.LeadCanonicalKey, true, nil
}

func (s *fakeStore) UpsertLink(ctx context.Context, candidate contracts.AssetToLead) (bool, error) {
	key := candidate.SourceType + "/" + candidate.ExternalID
	if existing, ok := s.links[key]; ok && !candidate.ShouldReplace(&existing) {
		return false, nil
	}
	s.links[key] = candidate
	return true, nil
}

func (s *fakeStore) FoundersForKey(ctx context.Context, canonicalKey string) ([]founder.Record, error) {
	return nil, nil
}

func (s *fakeStore) ScheduleOutbox(ctx context.Context, rec contracts.OutboxRecord) error {
	s.outbox = append(s.outbox, rec)
	return nil
}

func (s *fakeStore) PurgeExpiredSuppressions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeStore) UpsertSuppression(ctx context.Context, entry contracts.SuppressionEntry) error {
	return nil
}

func (s *fakeStore) SaveRun(ctx context.Context, run contracts.PipelineRun) error {
	s.savedRun = &run
	return nil
}

func (s *fakeStore) BuildHealthReport(ctx context.Context, now time.Time) (contracts.HealthReport, error) {
	return contracts.HealthReport{GeneratedAt: now}, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		marked: make(map[string]contracts.ProcessingStatus),
		links:  make(map[string]contracts.AssetToLead),
	}
}

func TestRunFullPipeline_AutoPushEnqueuesOutbox(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	st.pending = []contracts.Signal{
		{ID: "s1", SignalType: "hiring_signal", SourceAPI: "a", CanonicalKey: "domain:acme.com", Confidence: 1.0, DetectedAt: now, CompanyName: "Acme"},
		{ID: "s2", SignalType: "funding_signal", SourceAPI: "b", CanonicalKey: "domain:acme.com", Confidence: 1.0, DetectedAt: now},
		{ID: "s3", SignalType: "github_spike", SourceAPI: "c", CanonicalKey: "domain:acme.com", Confidence: 1.0, DetectedAt: now},
	}

	gate := verification.New(scoring.DefaultConfig())
	orch := New(st, nil, nil, nil, gate, nil, Config{}, nil)

	run, err := orch.RunFullPipeline(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.DecisionCounts["auto_push"] != 1 {
		t.Fatalf("expected one auto_push decision, got %+v", run.DecisionCounts)
	}
	if len(st.outbox) != 1 {
		t.Fatalf("expected one outbox record, got %d", len(st.outbox))
	}
	if st.outbox[0].CanonicalKey != "domain:acme.com" {
		t.Fatalf("unexpected outbox canonical key: %s", st.outbox[0].CanonicalKey)
	}
}

func TestRunFullPipeline_HardKillRejectsAndMarksSignals(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	st.pending = []contracts.Signal{
		{ID: "s1", SignalType: "company_dissolved", SourceAPI: "sec_edgar", CanonicalKey: "domain:dead.com", Confidence: 1.0, DetectedAt: now},
	}

	gate := verification.New(scoring.DefaultConfig())
	orch := New(st, nil, nil, nil, gate, nil, Config{}, nil)

	run, err := orch.RunFullPipeline(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.DecisionCounts["reject"] != 1 {
		t.Fatalf("expected one reject decision, got %+v", run.DecisionCounts)
	}
	if st.marked["s1"] != contracts.StatusRejected {
		t.Fatalf("expected signal s1 marked rejected, got %v", st.marked["s1"])
	}
}

func TestRunFullPipeline_PersistsRun(t *testing.T) {
	st := newFakeStore()
	gate := verification.New(scoring.DefaultConfig())
	orch := New(st, nil, nil, nil, gate, nil, Config{}, nil)

	_, err := orch.RunFullPipeline(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.savedRun == nil {
		t.Fatal("expected pipeline run to be persisted")
	}
}

// TestRunFullPipeline_MultiSourceConsolidation proves that a resolved
// AssetToLead link moves a signal out of its raw canonical-key group and
// into its lead's group even though the two groups were never fetched
// together, consolidating signals discovered under unrelated raw keys
// (a GitHub org and a product launch domain) into one group with one
// outbox push.
func TestRunFullPipeline_MultiSourceConsolidation(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	st.links["github_repo/acme/app"] = contracts.AssetToLead{
		SourceType:       "github_repo",
		ExternalID:       "acme/app",
		LeadCanonicalKey: "domain:acme.com",
		Confidence:       0.95,
		ResolvedBy:       contracts.ResolvedByDomainMatch,
		ResolvedAt:       now,
	}
	st.pending = []contracts.Signal{
		{
			ID: "gh1", SignalType: "github_spike", SourceAPI: "github", CanonicalKey: "github_org:acme",
			Confidence: 1.0, DetectedAt: now,
			RawData: map[string]any{"source_type": "github_repo", "external_id": "acme/app"},
		},
		{
			ID: "ph1", SignalType: "hiring_signal", SourceAPI: "product_hunt", CanonicalKey: "domain:acme.com",
			Confidence: 1.0, DetectedAt: now, CompanyName: "Acme",
			RawData: map[string]any{"source_type": "product_hunt", "external_id": "acme-app-launch"},
		},
	}

	gate := verification.New(scoring.DefaultConfig())
	orch := New(st, nil, nil, nil, gate, nil, Config{EnableResolver: true}, nil)

	run, err := orch.RunFullPipeline(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	totalDecisions := 0
	for _, count := range run.DecisionCounts {
		totalDecisions += count
	}
	if totalDecisions != 1 {
		t.Fatalf("expected both signals consolidated into exactly one group, got decision counts %+v", run.DecisionCounts)
	}
	if len(st.outbox) != 1 {
		t.Fatalf("expected one outbox record from the consolidated group, got %d", len(st.outbox))
	}
	rec := st.outbox[0]
	if rec.CanonicalKey != "domain:acme.com" {
		t.Fatalf("expected consolidated group to land on the lead's canonical key, got %s", rec.CanonicalKey)
	}
	if len(rec.SignalIDs) != 2 {
		t.Fatalf("expected both signals in the consolidated push, got %v", rec.SignalIDs)
	}
	sources, _ := rec.Payload["sources"].([]string)
	if len(sources) != 2 {
		t.Fatalf("expected two distinct source_api values in the consolidated group, got %v", sources)
	}
}
