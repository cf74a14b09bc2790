// Package trigger implements the deterministic stage-1 gate of the
// two-stage gating pipeline: cheap, free rules that decide whether a
// change between two snapshots is worth escalating to the LLM classifier.
package trigger

import (
	"fmt"
	"strings"
)

// ChangeType names one of the deterministic rules that fired.
type ChangeType string

const (
	ChangeDescription ChangeType = "description_change"
	ChangeDomain      ChangeType = "domain_change"
	ChangeKeyword     ChangeType = "keyword_swap"
)

// DefaultPivotKeywords is the default keyword set for the keyword-swap
// rule: business-model language that tends to show up when a company
// pivots, rebrands, or shuts down.
var DefaultPivotKeywords = []string{
	"enterprise", "b2b", "platform", "api", "saas",
	"pivot", "rebrand", "acquired", "shutdown", "deprecated",
	"discontinued", "sunsetting", "closed",
}

// Config tunes the trigger gate's thresholds.
type Config struct {
	DescriptionThreshold float64
	PivotKeywords        []string
}

// DefaultConfig returns the gate's documented defaults.
func DefaultConfig() Config {
	return Config{DescriptionThreshold: 0.2, PivotKeywords: DefaultPivotKeywords}
}

// Result is the gate's verdict for one snapshot pair.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Result struct {
	ShouldTrigger   bool
	ChangeTypes     []ChangeType
	TriggerReason   string
	ChangeMagnitude float64
}

// Gate evaluates snapshot pairs against a fixed Config.
type Gate struct {
	cfg Config
}

// New builds a Gate with cfg. A zero-value Config falls back to
// DefaultConfig's thresholds.
func New(cfg Config) *Gate {
	if cfg.DescriptionThreshold <= 0 {
		cfg.DescriptionThreshold = DefaultConfig().DescriptionThreshold
	}
	if len(cfg.PivotKeywords) == 0 {
		cfg.PivotKeywords = DefaultPivotKeywords
	}
	return &Gate{cfg: cfg}
}

// Evaluate compares oldSnapshot to newSnapshot and decides whether the
// change warrants escalation to the LLM classifier. An empty
// oldSnapshot (no baseline) never triggers.
func (g *Gate) Evaluate(oldSnapshot, newSnapshot map[string]any) Result {
	if len(oldSnapshot) == 0 {
		return Result{ShouldTrigger: false, TriggerReason: "no baseline snapshot"}
	}

	var (
		changeTypes []ChangeType
		reasons     []string
		magnitude   float64
	)

	if mag, reason, ok := g.checkDescriptionChange(oldSnapshot, newSnapshot); ok {
		changeTypes = append(changeTypes, ChangeDescription)
		reasons = append(reasons, reason)
		magnitude = max(magnitude, mag)
	}
	if mag, reason, ok := g.checkDomainChange(oldSnapshot, newSnapshot); ok {
		changeTypes = append(changeTypes, ChangeDomain)
		reasons = append(reasons, reason)
		magnitude = max(magnitude, mag)
	}
	if mag, reason, ok := g.checkPivotKeywords(oldSnapshot, newSnapshot); ok {
		changeTypes = append(changeTypes, ChangeKeyword)
		reasons = append(reasons, reason)
		magnitude = max(magnitude, mag)
	}

	if len(changeTypes) == 0 {
		return Result{ShouldTrigger: false, TriggerReason: "no trigger rule fired"}
	}

	return Result{
		ShouldTrigger:   true,
		ChangeTypes:     changeTypes,
		TriggerReason:   strings.Join(reasons, "; "),
		ChangeMagnitude: magnitude,
	}
}

func (g *Gate) checkDescriptionChange(oldSnap, newSnap map[string]any) (float64, string, bool) {
	oldDesc, _ := oldSnap["description"].(string)
	newDesc, _ := newSnap["description"].(string)
	if oldDesc == "" || newDesc == "" {
		return 0, "", false
	}
	ratio := similarityRatio(oldDesc, newDesc)
	changePct := 1 - ratio
	if changePct <= g.cfg.DescriptionThreshold {
		return 0, "", false
	}
	return changePct, fmt.Sprintf("description changed %.0f%%", changePct*100), true
}

func (g *Gate) checkDomainChange(oldSnap, newSnap map[string]any) (float64, string, bool) {
	oldDomain := firstDomainField(oldSnap)
	newDomain := firstDomainField(newSnap)
	if oldDomain == "" || newDomain == "" {
		return 0, "", false
	}
	normOld := normalizeDomain(oldDomain)
	normNew := normalizeDomain(newDomain)
	if normOld == normNew {
		return 0, "", false
	}
	return 1.0, fmt.Sprintf("domain changed from %s to %s", normOld, normNew), true
}

func (g *Gate) checkPivotKeywords(oldSnap, newSnap map[string]any) (float64, string, bool) {
	oldDesc, _ := oldSnap["description"].(string)
	newDesc, _ := newSnap["description"].(string)
	oldLower := strings.ToLower(oldDesc)
	newLower := strings.ToLower(newDesc)
	for _, kw := range g.cfg.PivotKeywords {
		if strings.Contains(newLower, kw) && !strings.Contains(oldLower, kw) {
			return 0.8, fmt.Sprintf("pivot keyword %q appeared", kw), true
		}
	}
	return 0, "", false
}

func firstDomainField(snap map[string]any) string {
	for _, field := range []string{"homepage", "website", "domain", "url"} {
		if v, ok := snap[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func normalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
