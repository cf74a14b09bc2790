// Package gating wires TriggerGate and the LLM classifier into the
// SignalProcessor the orchestrator calls per incoming signal.
package gating

import (
	"context"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/gating/classifier"
	"github.com/sourcingengine/core/pkg/sourcing/gating/trigger"
)

// Config tunes the processor as a whole.
type Config struct {
	DryRun bool
}

// Result is the per-signal outcome of gating.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Result struct {
	SignalID        string
	GatingSkipped   bool
	SkipReason      string
	TriggerResult   trigger.Result
	Classification  *classifier.Result
	Actionable      bool
}

// Stats aggregates a batch's gating results.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Stats struct {
	Total       int
	Triggered   int
	NotTriggered int
	Skipped     int
	CacheHits   int
	LLMCalls    int
	Errors      int
	LabelCounts map[classifier.Label]int
	Duration    time.Duration
}

// TriggerRate reports the fraction of non-skipped signals that
// triggered, the metric stage-1 is tuned against (target ≤20%).
func (s Stats) TriggerRate() float64 {
	considered := s.Total - s.Skipped
	if considered <= 0 {
		return 0
	}
	return float64(s.Triggered) / float64(considered)
}

// CacheHitRate reports the fraction of classifier invocations served from
// cache.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.LLMCalls
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Processor is the orchestrator of stage 1 + stage 2 gating.
type Processor struct {
	gate       *trigger.Gate
	classifier *classifier.Classifier
	cfg        Config
}

// New builds a Processor from a trigger gate and classifier.
func New(gate *trigger.Gate, cls *classifier.Classifier, cfg Config) *Processor {
	return &Processor{gate: gate, classifier: cls, cfg: cfg}
}

// ProcessSignal runs the two-stage gate against one signal's embedded
// previous snapshot. Signals with no previous snapshot are recorded as
// gating_skipped rather than treated as an error — a brand new entity
// has nothing to diff against.
func (p *Processor) ProcessSignal(ctx context.Context, sig contracts.Signal) Result {
	prev, ok := sig.PreviousSnapshot()
	if !ok {
		return Result{SignalID: sig.ID, GatingSkipped: true, SkipReason: "no_previous_snapshot"}
	}

	current := sig.CurrentSnapshot()
	triggerResult := p.gate.Evaluate(prev, current)

	result := Result{SignalID: sig.ID, TriggerResult: triggerResult}
	if !triggerResult.ShouldTrigger || p.cfg.DryRun {
		return result
	}

	oldDesc, _ := prev["description"].(string)
	newDesc, _ := current["description"].(string)
	classification := p.classifier.Classify(ctx, oldDesc, newDesc)
	result.Classification = &classification
	result.Actionable = classification.Label == classifier.LabelPivot || classification.Label == classifier.LabelExpansion
	return result
}

// ProcessBatch runs ProcessSignal over signals and aggregates Stats.
// Cached classifications do not count toward LLMCalls.
func (p *Processor) ProcessBatch(ctx context.Context, signals []contracts.Signal) ([]Result, Stats) {
	start := time.Now()
	stats := Stats{Total: len(signals), LabelCounts: make(map[classifier.Label]int)}
	results := make([]Result, 0, len(signals))

	for _, sig := range signals {
		result := p.ProcessSignal(ctx, sig)
		results = append(results, result)

		switch {
		case result.GatingSkipped:
			stats.Skipped++
		case !result.TriggerResult.ShouldTrigger:
			stats.NotTriggered++
		default:
			stats.Triggered++
		}

		if result.Classification != nil {
			stats.LabelCounts[result.Classification.Label]++
			if result.Classification.Cached {
				stats.CacheHits++
			} else {
				stats.LLMCalls++
			}
		}
	}

	stats.Duration = time.Since(start)
	return results, stats
}
