package velocity

import (
	"testing"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

func TestCompute_TwoTypesWithin48h(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	signals := []contracts.Signal{
		{SignalType: "hiring_signal", DetectedAt: now.Add(-1 * time.Hour)},
		{SignalType: "github_spike", DetectedAt: now.Add(-10 * time.Hour)},
	}
	boost := New().Compute(signals, now)
	if boost.VelocityBoost != 0.10 {
		t.Fatalf("expected 0.10 boost, got %v", boost.VelocityBoost)
	}
}

func TestCompute_ThreeTypesWithin7Days(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	signals := []contracts.Signal{
		{SignalType: "hiring_signal", DetectedAt: now.Add(-1 * 24 * time.Hour)},
		{SignalType: "github_spike", DetectedAt: now.Add(-3 * 24 * time.Hour)},
		{SignalType: "funding_signal", DetectedAt: now.Add(-5 * 24 * time.Hour)},
	}
	boost := New().Compute(signals, now)
	if boost.VelocityBoost != 0.15 {
		t.Fatalf("expected 0.15 boost, got %v", boost.VelocityBoost)
	}
	if boost.MomentumScore != 1.0 {
		t.Fatalf("expected momentum 1.0, got %v", boost.MomentumScore)
	}
}

func TestCompute_NoRecentSignalsNoBoost(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	signals := []contracts.Signal{
		{SignalType: "hiring_signal", DetectedAt: now.Add(-60 * 24 * time.Hour)},
	}
	boost := New().Compute(signals, now)
	if boost.VelocityBoost != 0 {
		t.Fatalf("expected no boost, got %v", boost.VelocityBoost)
	}
}
