package verification

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/scoring"
)

// TestConfidenceScoreAlwaysInRange checks the clamp invariant holds
// across randomly generated signal groups and boost inputs, not just the
// hand-picked example scenarios above.
func TestConfidenceScoreAlwaysInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	signalTypes := []string{"hiring_signal", "github_spike", "funding_signal", "product_launch", "domain_registered"}
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	gate := New(scoring.DefaultConfig())

	properties.Property("confidence_score is always within [0,1]", prop.ForAll(
		func(n int, confidence float64, ageDays int, founderScore float64, velocityBoost float64) bool {
			var signals []contracts.Signal
			for i := 0; i < n; i++ {
				signals = append(signals, contracts.Signal{
					SignalType: signalTypes[i%len(signalTypes)],
					SourceAPI:  signalTypes[i%len(signalTypes)] + "_src",
					Confidence: confidence,
					DetectedAt: now.Add(-time.Duration(ageDays) * 24 * time.Hour),
				})
			}
			result := gate.Evaluate(Inputs{
				Signals:       signals,
				UseFounder:    true,
				FounderScore:  founderScore,
				UseVelocity:   true,
				VelocityBoost: velocityBoost,
				Now:           now,
			})
			return result.ConfidenceScore >= 0 && result.ConfidenceScore <= 1
		},
		gen.IntRange(0, 8),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 400),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
