// Package orchestrator wires the collector runtime, gating pipeline,
// entity resolver, verification gate, and CRM outbox into the
// discovery engine's single entry point: run_full_pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sourcingengine/core/pkg/sourcing/collector"
	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/crmclient"
	"github.com/sourcingengine/core/pkg/sourcing/founder"
	"github.com/sourcingengine/core/pkg/sourcing/gating"
	"github.com/sourcingengine/core/pkg/sourcing/resolver"
	"github.com/sourcingengine/core/pkg/sourcing/velocity"
	"github.com/sourcingengine/core/pkg/sourcing/verification"
)

// defaultLinkConfidenceThreshold is the minimum entity-resolution
// confidence a candidate must clear before the orchestrator persists it
// as an AssetToLead and trusts it to regroup signals. It sits above the
// heuristic strategy's confidence (0.4) and below org_match (0.75), so a
// bare heuristic name match never moves a signal out of its raw group on
// its own.
const defaultLinkConfidenceThreshold = 0.6

// Store is the subset of *store.Store the orchestrator depends on,
// narrowed to an interface so tests can substitute a fake without a
// real database.
type Store interface {
	PendingSignals(ctx context.Context) ([]contracts.Signal, error)
	MarkSignalsStatus(ctx context.Context, ids []string, status contracts.ProcessingStatus, notionPageID string) error
	GetLeadForAsset(ctx context.Context, sourceType, externalID string, minConfidence float64) (string, bool, error)
	UpsertLink(ctx context.Context, candidate contracts.AssetToLead) (bool, error)
	FoundersForKey(ctx context.Context, canonicalKey string) ([]founder.Record, error)
	ScheduleOutbox(ctx context.Context, rec contracts.OutboxRecord) error
	PurgeExpiredSuppressions(ctx context.Context, now time.Time) (int64, error)
	UpsertSuppression(ctx context.Context, entry contracts.SuppressionEntry) error
	SaveRun(ctx context.Context, run contracts.PipelineRun) error
	BuildHealthReport(ctx context.Context, now time.Time) (contracts.HealthReport, error)
}

// Config tunes which optional stages run.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Config struct {
	EnableGating   bool
	EnableResolver bool
	EnableFounder  bool
	EnableVelocity bool
	StrictMode     bool
	DryRun         bool

	// LinkConfidenceThreshold overrides defaultLinkConfidenceThreshold
	// when positive.
	LinkConfidenceThreshold float64
}

// Orchestrator drives one full pipeline pass end to end.
type Orchestrator struct {
	store      Store
	collectors []*collector.Runner
	processor  *gating.Processor
	resolver   *resolver.Resolver
	gate       *verification.Gate
	crm        crmclient.Connector
	cfg        Config
	log        *slog.Logger
}

// New builds an Orchestrator. processor, res, and crm may be nil when
// their corresponding Config flag disables them; collectors may be
// empty for a `process`-only run.
func New(st Store, collectors []*collector.Runner, processor *gating.Processor, res *resolver.Resolver,
	gate *verification.Gate, crm crmclient.Connector, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LinkConfidenceThreshold <= 0 {
		cfg.LinkConfidenceThreshold = defaultLinkConfidenceThreshold
	}
	return &Orchestrator{
		store: st, collectors: collectors, processor: processor, resolver: res,
		gate: gate, crm: crm, cfg: cfg, log: log.With("component", "orchestrator"),
	}
}

// RunFullPipeline implements spec.md's seven-step
// run_full_pipeline(collectors, dry_run) entry point.
func (o *Orchestrator) RunFullPipeline(ctx context.Context) (contracts.PipelineRun, error) {
	runID := uuid.NewString()
	started := time.Now()
	run := contracts.PipelineRun{
		RunID: runID, StartedAt: started,
		CollectorCounts: make(map[string]int),
		DecisionCounts:  make(map[string]int),
		PushOutcomes:    make(map[string]int),
	}

	// Step 1: warm suppression cache (non-fatal).
	if purged, err := o.store.PurgeExpiredSuppressions(ctx, started); err != nil {
		o.log.WarnContext(ctx, "suppression warmup failed, continuing", "error", err)
		run.Errors = append(run.Errors, fmt.Sprintf("suppression warmup: %v", err))
	} else if purged > 0 {
		o.log.InfoContext(ctx, "purged expired suppression entries", "count", purged)
	}

	// Step 2: launch collectors.
	for _, c := range o.collectors {
		result := c.Run(ctx, o.cfg.DryRun)
		run.CollectorCounts[result.Collector] = result.SignalsNew
		run.SignalCount += result.SignalsNew
		if result.ErrorMessage != "" {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %s", result.Collector, result.ErrorMessage))
		}
	}

	// Step 3: fetch every pending signal, resolve entity links against
	// the whole backlog, then group by the resolved canonical key. This
	// has to happen over the full set at once — a signal can only move
	// into a different key's group if that group is built after
	// resolution runs, not while iterating one raw key at a time.
	signals, err := o.store.PendingSignals(ctx)
	if err != nil {
		return run, fmt.Errorf("orchestrator: list pending signals: %w", err)
	}

	if o.cfg.EnableResolver && o.resolver != nil {
		o.resolveLinks(ctx, signals)
	}

	groups := o.groupByResolvedKey(ctx, signals)
	for key, groupSignals := range groups {
		if err := o.processGroup(ctx, key, groupSignals, &run); err != nil {
			o.log.ErrorContext(ctx, "group processing failed", "canonical_key", key, "error", err)
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", key, err))
		}
	}

	// Step 7: health report + persist run.
	completed := time.Now()
	run.CompletedAt = completed
	run.DurationMS = completed.Sub(started).Milliseconds()

	health, err := o.store.BuildHealthReport(ctx, completed)
	if err != nil {
		o.log.WarnContext(ctx, "health report failed", "error", err)
	} else {
		healthMap := map[string]any{
			"signals_by_source":  health.SignalsBySource,
			"oldest_pending_age": health.OldestPendingAge.String(),
			"suppression_size":   health.SuppressionSize,
			"outbox_backlog":     health.OutboxBacklog,
			"warnings":           health.Warnings,
		}
		run.HealthReport = healthMap
	}

	if err := o.store.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("orchestrator: save pipeline run: %w", err)
	}
	return run, nil
}

// resolveLinks runs the entity resolver over every signal carrying a
// (source_type, external_id) pair and persists each candidate above
// cfg.LinkConfidenceThreshold as an AssetToLead, per spec.md §4.4: the
// orchestrator creates one link per asset from the resolver's best
// candidate, and groupByResolvedKey later consults those links to
// regroup signals that resolve to the same lead from different raw
// canonical keys.
func (o *Orchestrator) resolveLinks(ctx context.Context, signals []contracts.Signal) {
	seen := make(map[string]bool, len(signals))
	for _, sig := range signals {
		sourceType, _ := sig.RawData["source_type"].(string)
		externalID, _ := sig.RawData["external_id"].(string)
		if sourceType == "" || externalID == "" {
			continue
		}
		assetKey := sourceType + "/" + externalID
		if seen[assetKey] {
			continue
		}
		seen[assetKey] = true

		candidate, ok := o.resolver.BestCandidate(sourceType, sig.RawData)
		if !ok || candidate.Confidence < o.cfg.LinkConfidenceThreshold {
			continue
		}
		if candidate.CanonicalKey == "" || candidate.CanonicalKey == sig.CanonicalKey {
			continue
		}

		link := contracts.AssetToLead{
			SourceType:       sourceType,
			ExternalID:       externalID,
			LeadCanonicalKey: candidate.CanonicalKey,
			Confidence:       candidate.Confidence,
			ResolvedBy:       candidate.ResolvedBy,
			ResolvedAt:       time.Now(),
			Metadata:         candidate.Metadata,
		}
		if _, err := o.store.UpsertLink(ctx, link); err != nil {
			o.log.WarnContext(ctx, "link upsert failed", "source_type", sourceType, "external_id", externalID, "error", err)
		}
	}
}

// groupByResolvedKey buckets every signal by canonical key, moving a
// signal into its linked lead's key when an active AssetToLead exists
// for its (source_type, external_id) and meets the confidence
// threshold. Signals without a resolved link, or without entity
// resolution enabled, stay in their raw canonical key's bucket.
func (o *Orchestrator) groupByResolvedKey(ctx context.Context, signals []contracts.Signal) map[string][]contracts.Signal {
	groups := make(map[string][]contracts.Signal)
	for _, sig := range signals {
		key := sig.CanonicalKey

		if o.cfg.EnableResolver {
			sourceType, _ := sig.RawData["source_type"].(string)
			externalID, _ := sig.RawData["external_id"].(string)
			if sourceType != "" && externalID != "" {
				if leadKey, ok, err := o.store.GetLeadForAsset(ctx, sourceType, externalID, o.cfg.LinkConfidenceThreshold); err == nil && ok && leadKey != "" {
					key = leadKey
				}
			}
		}

		groups[key] = append(groups[key], sig)
	}
	return groups
}

// processGroup runs steps 4-6 for one resolved canonical key's signal
// group: gating, verification, routing.
func (o *Orchestrator) processGroup(ctx context.Context, canonicalKey string, signals []contracts.Signal, run *contracts.PipelineRun) error {
	if len(signals) == 0 {
		return nil
	}

	if o.cfg.EnableGating && o.processor != nil {
		signals = o.foldGatingResults(ctx, signals)
		if len(signals) == 0 {
			return nil
		}
	}

	var founderScore float64
	if o.cfg.EnableFounder {
		records, err := o.store.FoundersForKey(ctx, canonicalKey)
		if err == nil {
			founderScore = founder.Score(records, founder.DefaultWeights())
		}
	}

	var velocityBoost, momentumScore float64
	if o.cfg.EnableVelocity {
		boost := velocity.New().Compute(signals, time.Now())
		velocityBoost = boost.VelocityBoost
		momentumScore = boost.MomentumScore
	}

	result := o.gate.Evaluate(verification.Inputs{
		Signals: signals, UseFounder: o.cfg.EnableFounder, FounderScore: founderScore,
		UseVelocity: o.cfg.EnableVelocity, VelocityBoost: velocityBoost, MomentumScore: momentumScore,
		Now: time.Now(),
	})

	run.DecisionCounts[string(result.Decision)]++

	// A dry run counts the decision but neither enqueues a push nor
	// changes any signal's status.
	if o.cfg.DryRun {
		return nil
	}

	ids := signalIDs(signals)
	switch result.Decision {
	case verification.DecisionAutoPush, verification.DecisionNeedsReview:
		if err := o.enqueuePush(ctx, canonicalKey, signals, result); err != nil {
			return fmt.Errorf("enqueue push: %w", err)
		}
		run.PushOutcomes["enqueued"]++
	case verification.DecisionReject:
		if err := o.store.MarkSignalsStatus(ctx, ids, contracts.StatusRejected, ""); err != nil {
			return fmt.Errorf("mark rejected: %w", err)
		}
	case verification.DecisionHold:
		// leave signals pending
	}
	return nil
}

// foldGatingResults runs every signal through the two-stage gating
// pipeline and drops those the classifier actually triggered on but
// judged non-actionable (rebrand, minor, needs_review), per spec.md
// §4.5.4 step 4: gating folds into the context the verification gate
// scores, instead of running alongside it with no effect. A signal the
// trigger gate skipped, or that gating marked actionable, passes
// through unchanged.
func (o *Orchestrator) foldGatingResults(ctx context.Context, signals []contracts.Signal) []contracts.Signal {
	kept := make([]contracts.Signal, 0, len(signals))
	for _, sig := range signals {
		result := o.processor.ProcessSignal(ctx, sig)
		if result.GatingSkipped || !result.TriggerResult.ShouldTrigger || result.Classification == nil {
			kept = append(kept, sig)
			continue
		}
		if !result.Actionable {
			o.log.InfoContext(ctx, "signal gated out as non-actionable",
				"signal_id", sig.ID, "label", result.Classification.Label)
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

func (o *Orchestrator) enqueuePush(ctx context.Context, canonicalKey string, signals []contracts.Signal, result verification.Result) error {
	companyName := ""
	for _, sig := range signals {
		if sig.CompanyName != "" {
			companyName = sig.CompanyName
			break
		}
	}

	payload := map[string]any{
		"canonical_key": canonicalKey,
		"company_name":  companyName,
		"status":        result.SuggestedCRMStatus,
		"confidence":    result.ConfidenceScore,
		"sources":       result.ConfidenceBreakdown.Sources,
	}

	rec := contracts.OutboxRecord{
		ID:           uuid.NewString(),
		CanonicalKey: canonicalKey,
		Payload:      payload,
		SignalIDs:    signalIDs(signals),
		Status:       contracts.OutboxPending,
		CreatedAt:    time.Now(),
	}
	return o.store.ScheduleOutbox(ctx, rec)
}

func signalIDs(signals []contracts.Signal) []string {
	ids := make([]string, 0, len(signals))
	for _, sig := range signals {
		ids = append(ids, sig.ID)
	}
	return ids
}
