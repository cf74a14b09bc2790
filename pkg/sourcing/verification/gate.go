// Package verification implements the verification gate: scoring a group
// of signals for one canonical key into a push decision.
package verification

import (
	"math"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/scoring"
)

// Decision is the gate's routing verdict.
type Decision string

const (
	DecisionAutoPush    Decision = "auto_push"
	DecisionNeedsReview Decision = "needs_review"
	DecisionHold        Decision = "hold"
	DecisionReject      Decision = "reject"
)

// VerificationStatus classifies how corroborated the group is.
type VerificationStatus string

const (
	StatusSingleSource VerificationStatus = "single_source"
	StatusMultiSource  VerificationStatus = "multi_source"
	StatusConflicting  VerificationStatus = "conflicting"
)

// SignalDetail is one line item in the confidence breakdown, naming a
// contributing signal type/boost and whether it helped or hurt.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type SignalDetail struct {
	Type   string
	Effect string // "contribution" or "boost"
	Value  float64
}

// Breakdown explains how ConfidenceScore was derived.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Breakdown struct {
	Overall             float64
	BaseScore           float64
	MultiSourceBoost    float64
	ConvergenceBoost    float64
	FounderScore        float64
	FounderBoost        float64
	VelocityBoost       float64
	MomentumScore       float64
	SignalsContributing int
	SourcesChecked      int
	Sources             []string
	SignalDetails       []SignalDetail
}

// Result is the gate's full verdict for one canonical-key group.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Result struct {
	Decision            Decision
	VerificationStatus  VerificationStatus
	ConfidenceScore     float64
	ConfidenceBreakdown Breakdown
	Reason              string
	SuggestedCRMStatus  string
	SignalsUsed         []string
	SourcesChecked      int
}

// Inputs bundles the gate's optional boost sources alongside the
// signal group itself.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Inputs struct {
	Signals       []contracts.Signal
	FounderScore  float64
	UseFounder    bool
	VelocityBoost float64
	MomentumScore float64
	UseVelocity   bool
	Now           time.Time
}

// Gate scores a signal group using cfg's weights, half-lives, and
// thresholds.
type Gate struct {
	cfg   scoring.Config
	rules *scoring.RuleEvaluator
}

// New builds a Gate from cfg. When cfg configures a hard-kill or
// strict-mode override rule, New also builds the CEL evaluator those
// rules run against; a construction failure is discarded and leaves
// the gate falling back to the static thresholds, since a bad rule
// should never make the whole gate unusable.
func New(cfg scoring.Config) *Gate {
	g := &Gate{cfg: cfg}
	if cfg.HardKillOverrideRule != "" || cfg.StrictModeOverrideRule != "" {
		if rules, err := scoring.NewRuleEvaluator(); err == nil {
			g.rules = rules
		}
	}
	return g
}

// Evaluate runs the full verification algorithm: hard kill check,
// per-type aggregation, multi-source and convergence boosts, optional
// founder and velocity boosts, decision thresholds, and
// conflicting-signal detection.
func (g *Gate) Evaluate(in Inputs) Result {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	if hardKilled, signalType := g.hardKillCheck(in.Signals); hardKilled && !g.hardKillOverridden(in.Signals) {
		return Result{
			Decision:           DecisionReject,
			VerificationStatus: StatusSingleSource,
			ConfidenceScore:    0.0,
			Reason:             "hard kill signal: " + signalType,
			SuggestedCRMStatus: "",
			SignalsUsed:        signalIDs(in.Signals),
		}
	}

	byType := groupLatestByType(in.Signals)
	var (
		baseScore     float64
		contributing  int
		details       []SignalDetail
	)
	for signalType, sig := range byType {
		weight := g.cfg.Weight(signalType)
		halfLife := g.cfg.HalfLife(signalType)
		ageDays := now.Sub(sig.DetectedAt).Hours() / 24
		decay := math.Exp(-math.Ln2 * ageDays / (halfLife.Hours() / 24))
		if decay < 0 {
			decay = 0
		}
		contribution := sig.Confidence * weight * decay
		baseScore += contribution
		contributing++
		details = append(details, SignalDetail{Type: signalType, Effect: "contribution", Value: contribution})
	}
	if baseScore > 1.0 {
		baseScore = 1.0
	}

	sources := distinctSources(in.Signals)
	score := baseScore

	var multiSourceBoost float64
	if len(sources) >= 2 {
		factor := 1.0 + math.Min(0.2, float64(len(sources)-1)*0.05)
		multiSourceBoost = score*factor - score
		score *= factor
		details = append(details, SignalDetail{Type: "multi_source", Effect: "boost", Value: multiSourceBoost})
	}

	var convergenceBoost float64
	if len(byType) >= g.cfg.ConvergenceMinTypes {
		factor := 1.0 + math.Min(0.25, float64(len(byType)-g.cfg.ConvergenceMinTypes+1)*0.08)
		convergenceBoost = score*factor - score
		score *= factor
		details = append(details, SignalDetail{Type: "convergence", Effect: "boost", Value: convergenceBoost})
	}

	var founderBoost float64
	if in.UseFounder {
		founderBoost = math.Min(g.cfg.FounderBoostCap, in.FounderScore*g.cfg.FounderBoostCap)
		score += founderBoost
		details = append(details, SignalDetail{Type: "founder_score", Effect: "boost", Value: founderBoost})
	}

	var velocityBoost float64
	if in.UseVelocity {
		velocityBoost = math.Min(g.cfg.VelocityBoostCap, in.VelocityBoost)
		score += velocityBoost
		details = append(details, SignalDetail{Type: "velocity_momentum", Effect: "boost", Value: velocityBoost})
	}

	score = clamp01(score)

	breakdown := Breakdown{
		Overall:             score,
		BaseScore:           baseScore,
		MultiSourceBoost:    multiSourceBoost,
		ConvergenceBoost:    convergenceBoost,
		FounderScore:        in.FounderScore,
		FounderBoost:        founderBoost,
		VelocityBoost:       velocityBoost,
		MomentumScore:       in.MomentumScore,
		SignalsContributing: contributing,
		SourcesChecked:      len(sources),
		Sources:             sources,
		SignalDetails:       details,
	}

	status := StatusSingleSource
	if len(sources) >= 2 {
		status = StatusMultiSource
	}
	if g.isConflicting(byType) {
		status = StatusConflicting
	}

	decision, reason, crmStatus := g.decide(score, status, len(sources), in.Signals)

	return Result{
		Decision:            decision,
		VerificationStatus:  status,
		ConfidenceScore:     score,
		ConfidenceBreakdown: breakdown,
		Reason:              reason,
		SuggestedCRMStatus:  crmStatus,
		SignalsUsed:         signalIDs(in.Signals),
		SourcesChecked:      len(sources),
	}
}

func (g *Gate) hardKillCheck(signals []contracts.Signal) (bool, string) {
	for _, sig := range signals {
		if g.cfg.HardKillTypes[sig.SignalType] {
			return true, sig.SignalType
		}
	}
	return false, ""
}

// hardKillOverridden evaluates cfg.HardKillOverrideRule, if configured,
// over signals; a true result waives an otherwise-triggered hard kill.
func (g *Gate) hardKillOverridden(signals []contracts.Signal) bool {
	if g.rules == nil || g.cfg.HardKillOverrideRule == "" {
		return false
	}
	overridden, err := g.rules.Eval(g.cfg.HardKillOverrideRule, ruleContextFor(signals))
	return err == nil && overridden
}

// strictModeOverridden evaluates cfg.StrictModeOverrideRule, if
// configured, over signals; a true result waives strict mode's
// source-count requirement for this group's decision.
func (g *Gate) strictModeOverridden(signals []contracts.Signal) bool {
	if g.rules == nil || g.cfg.StrictModeOverrideRule == "" {
		return false
	}
	overridden, err := g.rules.Eval(g.cfg.StrictModeOverrideRule, ruleContextFor(signals))
	return err == nil && overridden
}

func ruleContextFor(signals []contracts.Signal) scoring.RuleContext {
	types := make([]string, 0, len(signals))
	seen := make(map[string]bool, len(signals))
	var maxConfidence float64
	for _, sig := range signals {
		if !seen[sig.SignalType] {
			seen[sig.SignalType] = true
			types = append(types, sig.SignalType)
		}
		if sig.Confidence > maxConfidence {
			maxConfidence = sig.Confidence
		}
	}
	return scoring.RuleContext{
		SignalTypes:    types,
		SourcesChecked: len(distinctSources(signals)),
		MaxConfidence:  maxConfidence,
	}
}

func (g *Gate) isConflicting(byType map[string]contracts.Signal) bool {
	hasAlive, hasNegative := false, false
	for signalType := range byType {
		if g.cfg.AliveTypes[signalType] {
			hasAlive = true
		}
		if g.cfg.NegativeTypes[signalType] {
			hasNegative = true
		}
	}
	return hasAlive && hasNegative
}

func (g *Gate) decide(score float64, status VerificationStatus, sourceCount int, signals []contracts.Signal) (Decision, string, string) {
	if status == StatusConflicting {
		return DecisionNeedsReview, "conflicting signals present", "Tracking"
	}

	strictOverridden := g.cfg.StrictMode && g.strictModeOverridden(signals)

	switch {
	case score >= g.cfg.AutoPushThreshold:
		if g.cfg.StrictMode && sourceCount < 2 && !strictOverridden {
			return DecisionNeedsReview, "strict mode requires 2+ sources for auto_push", "Tracking"
		}
		return DecisionAutoPush, "confidence above auto-push threshold", "Source"
	case score >= g.cfg.NeedsReviewThreshold:
		return DecisionNeedsReview, "confidence above needs-review threshold", "Tracking"
	default:
		if g.cfg.StrictMode && sourceCount == 0 && !strictOverridden {
			return DecisionReject, "strict mode rejects zero-source low confidence", ""
		}
		return DecisionHold, "confidence below needs-review threshold", ""
	}
}

func groupLatestByType(signals []contracts.Signal) map[string]contracts.Signal {
	latest := make(map[string]contracts.Signal)
	for _, sig := range signals {
		existing, ok := latest[sig.SignalType]
		if !ok || sig.DetectedAt.After(existing.DetectedAt) {
			latest[sig.SignalType] = sig
		}
	}
	return latest
}

func distinctSources(signals []contracts.Signal) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sig := range signals {
		if sig.SourceAPI == "" || seen[sig.SourceAPI] {
			continue
		}
		seen[sig.SourceAPI] = true
		out = append(out, sig.SourceAPI)
	}
	return out
}

func signalIDs(signals []contracts.Signal) []string {
	ids := make([]string, 0, len(signals))
	for _, sig := range signals {
		ids = append(ids, sig.ID)
	}
	return ids
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
