// Package resolver implements entity resolution: deciding which
// canonical lead key a SourceAsset belongs to.
package resolver

import (
	"regexp"
	"strings"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"golang.org/x/text/unicode/norm"
)

// SkipDomains are hosting/aggregator domains too generic to identify a
// specific company; resolution by domain refuses to match on these.
var SkipDomains = map[string]bool{
	"github.com":       true,
	"github.io":        true,
	"medium.com":       true,
	"notion.so":        true,
	"linkedin.com":     true,
	"twitter.com":      true,
	"x.com":            true,
	"producthunt.com":  true,
	"ycombinator.com":  true,
	"news.ycombinator.com": true,
}

// Config tunes resolver confidences and which strategies are enabled.
type Config struct {
	DomainMatchConfidence   float64
	OrgMatchConfidence      float64
	NameMatchConfidence     float64
	HeuristicConfidence     float64
	EnableDomainMatch       bool
	EnableOrgMatch          bool
	EnableNameSimilarity    bool
	EnableHeuristic         bool
}

// DefaultConfig returns the resolver's documented defaults. Name
// similarity is reserved/disabled by default, matching spec.md's listed
// strategies.
func DefaultConfig() Config {
	return Config{
		DomainMatchConfidence: 0.9,
		OrgMatchConfidence:    0.75,
		NameMatchConfidence:   0.6,
		HeuristicConfidence:   0.4,
		EnableDomainMatch:     true,
		EnableOrgMatch:        true,
		EnableNameSimilarity:  false,
		EnableHeuristic:       true,
	}
}

// Candidate is one proposed canonical key for an asset, with the
// confidence and method that produced it.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Candidate struct {
	CanonicalKey string
	Confidence   float64
	ResolvedBy   contracts.ResolvedBy
	Metadata     map[string]any
}

// Resolver finds candidate canonical keys for a SourceAsset's raw
// payload.
type Resolver struct {
	cfg Config
}

// New builds a Resolver with cfg.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// FindCandidates runs every enabled strategy against payload, which is
// the asset's raw_payload, and the asset's source type.
func (r *Resolver) FindCandidates(sourceType string, payload map[string]any) []Candidate {
	var candidates []Candidate

	if r.cfg.EnableDomainMatch {
		if c, ok := r.resolveByDomain(sourceType, payload); ok {
			candidates = append(candidates, c)
		}
	}
	if r.cfg.EnableOrgMatch && sourceType == "github_repo" {
		if c, ok := r.resolveByOrg(payload); ok {
			candidates = append(candidates, c)
		}
	}
	if r.cfg.EnableHeuristic {
		if c, ok := r.resolveByHeuristic(sourceType, payload); ok {
			candidates = append(candidates, c)
		}
	}

	return candidates
}

// BestCandidate returns the highest-confidence candidate, or (Candidate{},
// false) if none were found.
func (r *Resolver) BestCandidate(sourceType string, payload map[string]any) (Candidate, bool) {
	candidates := r.FindCandidates(sourceType, payload)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// urlFieldsBySource orders the payload fields to try, per source type,
// matching the original resolver's source-specific URL field priority.
var urlFieldsBySource = map[string][]string{
	"github_repo":  {"homepage"},
	"product_hunt": {"website"},
	"hacker_news":  {"url"},
}

var defaultURLFields = []string{"homepage", "website", "url"}

func (r *Resolver) resolveByDomain(sourceType string, payload map[string]any) (Candidate, bool) {
	fields, ok := urlFieldsBySource[sourceType]
	if !ok {
		fields = defaultURLFields
	}
	for _, f := range fields {
		raw, ok := payload[f].(string)
		if !ok || raw == "" {
			continue
		}
		domain := extractDomain(raw)
		if domain == "" || shouldSkipDomain(domain) {
			continue
		}
		return Candidate{
			CanonicalKey: contracts.CanonicalKey(contracts.KeyKindDomain, domain),
			Confidence:   r.cfg.DomainMatchConfidence,
			ResolvedBy:   contracts.ResolvedByDomainMatch,
		}, true
	}
	return Candidate{}, false
}

func (r *Resolver) resolveByOrg(payload map[string]any) (Candidate, bool) {
	org := extractOrg(payload)
	if org == "" {
		return Candidate{}, false
	}

	confidence := r.cfg.OrgMatchConfidence
	metadata := map[string]any{}
	if isPossiblyPersonal(org) {
		confidence *= 0.7
		metadata["possibly_personal"] = true
	}

	return Candidate{
		CanonicalKey: contracts.CanonicalKey(contracts.KeyKindGithubOrg, org),
		Confidence:   confidence,
		ResolvedBy:   contracts.ResolvedByOrgMatch,
		Metadata:     metadata,
	}, true
}

func extractOrg(payload map[string]any) string {
	if owner, ok := payload["owner"]; ok {
		switch v := owner.(type) {
		case map[string]any:
			if login, ok := v["login"].(string); ok {
				return login
			}
		case string:
			return v
		}
	}
	if externalID, ok := payload["external_id"].(string); ok && strings.Contains(externalID, "/") {
		return strings.SplitN(externalID, "/", 2)[0]
	}
	if fullName, ok := payload["full_name"].(string); ok && strings.Contains(fullName, "/") {
		return strings.SplitN(fullName, "/", 2)[0]
	}
	return ""
}

// isPossiblyPersonal flags short or all-lowercase org names, a heuristic
// for a personal GitHub account rather than a company organization.
func isPossiblyPersonal(org string) bool {
	return len(org) < 3 || org == strings.ToLower(org)
}

var nameSuffixRe = regexp.MustCompile(`(?i)\b(inc|llc|ltd|corp|co|io|app)\.?$`)
var nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9 ]+`)
var whitespaceRe = regexp.MustCompile(`\s+`)

func (r *Resolver) resolveByHeuristic(sourceType string, payload map[string]any) (Candidate, bool) {
	name := extractName(sourceType, payload)
	normalized := normalizeName(name)
	if len(normalized) < 2 {
		return Candidate{}, false
	}
	return Candidate{
		CanonicalKey: contracts.CanonicalKey(contracts.KeyKindNameLoc, normalized),
		Confidence:   r.cfg.HeuristicConfidence,
		ResolvedBy:   contracts.ResolvedByHeuristic,
	}, true
}

func extractName(sourceType string, payload map[string]any) string {
	switch sourceType {
	case "github_repo":
		if v, ok := payload["name"].(string); ok {
			return v
		}
	case "product_hunt":
		if v, ok := payload["name"].(string); ok {
			return v
		}
	case "hacker_news":
		if v, ok := payload["title"].(string); ok {
			return strings.TrimPrefix(strings.TrimSpace(v), "Show HN: ")
		}
	}
	if v, ok := payload["name"].(string); ok {
		return v
	}
	return ""
}

// normalizeName lowercases, NFKC-folds (so compatibility Unicode
// variants such as full-width letters collapse together), strips a trailing legal-entity
// suffix, drops non-alphanumeric characters, and collapses whitespace.
func normalizeName(name string) string {
	folded := norm.NFKC.String(strings.ToLower(strings.TrimSpace(name)))
	folded = nameSuffixRe.ReplaceAllString(folded, "")
	folded = nonAlphanumericRe.ReplaceAllString(folded, "")
	folded = whitespaceRe.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}

func extractDomain(raw string) string {
	domain := contracts.NormalizeDomain(raw)
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(domain)))
}

func shouldSkipDomain(domain string) bool {
	if SkipDomains[domain] {
		return true
	}
	for skip := range SkipDomains {
		if strings.HasSuffix(domain, "."+skip) {
			return true
		}
	}
	return false
}
