package gating

import (
	"context"
	"testing"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/gating/classifier"
	"github.com/sourcingengine/core/pkg/sourcing/gating/trigger"
	"github.com/sourcingengine/core/pkg/sourcing/llm"
)

type stubBackend struct{ content string }

func (s stubBackend) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	return &llm.Response{Content: s.content}, nil
}

func newProcessor(content string) *Processor {
	gate := trigger.New(trigger.DefaultConfig())
	cls := classifier.New(stubBackend{content: content}, classifier.DefaultConfig())
	return New(gate, cls, Config{})
}

func TestProcessSignal_NoPreviousSnapshotSkips(t *testing.T) {
	p := newProcessor(`{"label":"minor","confidence":0.9,"rationale":"x"}`)
	sig := contracts.Signal{ID: "s1", RawData: map[string]any{"description": "new"}}

	result := p.ProcessSignal(context.Background(), sig)
	if !result.GatingSkipped || result.SkipReason != "no_previous_snapshot" {
		t.Fatalf("expected skip, got %+v", result)
	}
}

func TestProcessSignal_TriggersAndClassifies(t *testing.T) {
	p := newProcessor(`{"label":"pivot","confidence":0.9,"rationale":"moved to enterprise"}`)
	sig := contracts.Signal{
		ID: "s2",
		RawData: map[string]any{
			"description": "Now an enterprise platform for logistics",
			contracts.PreviousSnapshotKey: map[string]any{
				"description": "A small consumer todo app",
			},
		},
	}

	result := p.ProcessSignal(context.Background(), sig)
	if result.GatingSkipped {
		t.Fatal("expected gating to run")
	}
	if !result.TriggerResult.ShouldTrigger {
		t.Fatal("expected trigger gate to fire")
	}
	if result.Classification == nil {
		t.Fatal("expected classification")
	}
	if !result.Actionable {
		t.Fatalf("expected pivot label to be actionable, got %+v", result.Classification)
	}
}

func TestProcessBatch_AggregatesStats(t *testing.T) {
	p := newProcessor(`{"label":"minor","confidence":0.9,"rationale":"x"}`)
	signals := []contracts.Signal{
		{ID: "a", RawData: map[string]any{"description": "x"}},
		{
			ID: "b",
			RawData: map[string]any{
				"description":                 "Same description",
				contracts.PreviousSnapshotKey: map[string]any{"description": "Same description"},
			},
		},
	}

	_, stats := p.ProcessBatch(context.Background(), signals)
	if stats.Total != 2 || stats.Skipped != 1 || stats.NotTriggered != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
