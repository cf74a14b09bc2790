// Package velocity computes the momentum/velocity boost inputs the
// verification gate folds in: convergence of distinct signal types
// within a short window predicts a real event better than any single
// signal. Supplements spec.md from the original system's
// utils/signal_velocity.py concept.
package velocity

import (
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// Tracker computes velocity boosts from a canonical key's signal
// history.
type Tracker struct{}

// New builds a Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Boost is the velocity tracker's output: a capped boost value plus the
// underlying momentum score the gate's breakdown surfaces to operators.
type Boost struct {
	VelocityBoost float64
	MomentumScore float64
}

// Compute inspects signals (already filtered to one canonical key) as of
// now and derives the velocity boost:
//   - ≥2 distinct signal types observed within the last 48h: +0.10
//   - ≥3 distinct signal types observed within the last 7 days: +0.15
// Both conditions can stack (capped at 0.20 by the caller, the
// verification gate's own clamp), and MomentumScore reports the
// fraction of the 7-day window's distinct-type target that was hit,
// for display rather than scoring.
func (t *Tracker) Compute(signals []contracts.Signal, now time.Time) Boost {
	typesWithin := func(window time.Duration) map[string]bool {
		seen := make(map[string]bool)
		cutoff := now.Add(-window)
		for _, sig := range signals {
			if sig.DetectedAt.After(cutoff) {
				seen[sig.SignalType] = true
			}
		}
		return seen
	}

	types48h := typesWithin(48 * time.Hour)
	types7d := typesWithin(7 * 24 * time.Hour)

	var boost float64
	if len(types48h) >= 2 {
		boost += 0.10
	}
	if len(types7d) >= 3 {
		boost += 0.15
	}

	const convergenceTarget = 3.0
	momentum := float64(len(types7d)) / convergenceTarget
	if momentum > 1.0 {
		momentum = 1.0
	}

	return Boost{VelocityBoost: boost, MomentumScore: momentum}
}
