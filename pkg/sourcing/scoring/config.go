// Package scoring centralizes the verification gate's tunable knobs —
// per-signal-type weights and half-lives, hard-kill types, decision
// thresholds, and the founder and velocity boost caps. The founder-score
// weights (founder.DefaultWeights) and the velocity tracker's increments
// are not part of it.
package scoring

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TypeConfig is the per-signal-type weight and decay half-life used by
// the verification gate's aggregation step.
type TypeConfig struct {
	Weight     float64 `yaml:"weight"`
	HalfLifeDays float64 `yaml:"half_life_days"`
}

// Config holds every knob the verification gate reads; the velocity
// tracker and the founder scorer do not read it.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Config struct {
	Types               map[string]TypeConfig `yaml:"types"`
	HardKillTypes       map[string]bool       `yaml:"hard_kill_types"`
	AliveTypes          map[string]bool       `yaml:"alive_types"`
	NegativeTypes       map[string]bool       `yaml:"negative_types"`
	AutoPushThreshold   float64               `yaml:"auto_push_threshold"`
	NeedsReviewThreshold float64              `yaml:"needs_review_threshold"`
	StrictMode          bool                  `yaml:"strict_mode"`
	MultiSourceBoostCap float64               `yaml:"multi_source_boost_cap"`
	ConvergenceBoostCap float64               `yaml:"convergence_boost_cap"`
	ConvergenceMinTypes int                   `yaml:"convergence_min_types"`
	FounderBoostCap     float64               `yaml:"founder_boost_cap"`
	VelocityBoostCap    float64               `yaml:"velocity_boost_cap"`

	// HardKillOverrideRule is an optional CEL expression (see
	// RuleEvaluator) evaluated over the group's signal context whenever a
	// hard-kill type is present; a true result waives the hard kill and
	// lets the group fall through to ordinary scoring, e.g.
	// `"funding_signal" in signal_types && sources_checked >= 2`.
	HardKillOverrideRule string `yaml:"hard_kill_override_rule"`

	// StrictModeOverrideRule is an optional CEL expression evaluated
	// whenever strict mode would otherwise demote or reject a group; a
	// true result waives the strict-mode source-count requirement for
	// that decision.
	StrictModeOverrideRule string `yaml:"strict_mode_override_rule"`
}

// DefaultConfig returns the gate's documented defaults.
func DefaultConfig() Config {
	return Config{
		Types: map[string]TypeConfig{
			"hiring_signal":      {Weight: 0.30, HalfLifeDays: 60},
			"github_spike":       {Weight: 0.15, HalfLifeDays: 14},
			"github_activity":    {Weight: 0.15, HalfLifeDays: 14},
			"incorporation":      {Weight: 0.25, HalfLifeDays: 180},
			"domain_registered":  {Weight: 0.20, HalfLifeDays: 90},
			"funding_signal":     {Weight: 0.35, HalfLifeDays: 120},
			"product_launch":     {Weight: 0.25, HalfLifeDays: 30},
			"company_dissolved":  {Weight: 1.0, HalfLifeDays: 9999},
		},
		HardKillTypes:        map[string]bool{"company_dissolved": true},
		AliveTypes:           map[string]bool{"hiring_signal": true, "github_spike": true, "funding_signal": true},
		NegativeTypes:        map[string]bool{"company_dissolved": true},
		AutoPushThreshold:    0.70,
		NeedsReviewThreshold: 0.40,
		StrictMode:           false,
		MultiSourceBoostCap:  0.20,
		ConvergenceBoostCap:  0.25,
		ConvergenceMinTypes:  3,
		FounderBoostCap:      0.15,
		VelocityBoostCap:     0.20,
	}
}

// HalfLife returns the configured half-life for signalType, falling
// back to 30 days for an unrecognized type so an un-configured signal
// type still decays instead of never decaying.
func (c Config) HalfLife(signalType string) time.Duration {
	if t, ok := c.Types[signalType]; ok && t.HalfLifeDays > 0 {
		return time.Duration(t.HalfLifeDays * 24 * float64(time.Hour))
	}
	return 30 * 24 * time.Hour
}

// Weight returns the configured weight for signalType, defaulting to
// 0.10 for an unrecognized type.
func (c Config) Weight(signalType string) float64 {
	if t, ok := c.Types[signalType]; ok {
		return t.Weight
	}
	return 0.10
}

// LoadOverlay reads a YAML overlay file and merges it onto base,
// overriding any field the file sets. A missing file is not an error —
// callers pass an empty path to skip the overlay entirely.
func LoadOverlay(base Config, path string) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, err
	}
	overlay := base
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, err
	}
	return overlay, nil
}
