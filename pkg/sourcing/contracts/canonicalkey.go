package contracts

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// KeyKind is the identity-source portion of a canonical key, in priority
// order from strongest to weakest.
type KeyKind string

const (
	KeyKindDomain          KeyKind = "domain"
	KeyKindCompaniesHouse  KeyKind = "companies_house"
	KeyKindCrunchbase      KeyKind = "crunchbase"
	KeyKindPitchbook       KeyKind = "pitchbook"
	KeyKindGithubOrg       KeyKind = "github_org"
	KeyKindGithubRepo      KeyKind = "github_repo"
	KeyKindNameLoc         KeyKind = "name_loc"
)

// keyPriority orders kinds from strongest to weakest identity source. The
// first four are "strong" keys eligible for automatic merge; the rest are
// "weak" and require a human to confirm a merge.
var keyPriority = []KeyKind{
	KeyKindDomain,
	KeyKindCompaniesHouse,
	KeyKindCrunchbase,
	KeyKindPitchbook,
	KeyKindGithubOrg,
	KeyKindGithubRepo,
	KeyKindNameLoc,
}

// IsStrong reports whether kind is one of the four strong, auto-mergeable
// identity kinds.
func (k KeyKind) IsStrong() bool {
	for i, kind := range keyPriority {
		if kind == k {
			return i < 4
		}
	}
	return false
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s, keeps [a-z0-9], and collapses any other run of
// characters to a single hyphen, trimming leading/trailing hyphens.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeDomain strips scheme, a leading "www.", port, and trailing
// slash from a URL or bare domain string, returning a bare lowercased
// hostname suitable for comparison and keying.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	host := raw
	if err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimSuffix(host, "/")
}

// CanonicalKey builds a deterministic "<kind>:<value>" key. The value is
// slugged except for domain keys, which use NormalizeDomain so dots are
// preserved (a slugged domain would be indistinguishable from an
// unrelated one sharing the same letters).
func CanonicalKey(kind KeyKind, value string) string {
	var v string
	if kind == KeyKindDomain {
		v = NormalizeDomain(value)
	} else {
		v = Slug(value)
	}
	return fmt.Sprintf("%s:%s", kind, v)
}

// BestCanonicalKey picks the highest-priority non-empty candidate from a
// map of kind -> raw value, normalizing it before building the key. It
// returns ("", false) if no candidate is usable.
func BestCanonicalKey(candidates map[KeyKind]string) (string, bool) {
	for _, kind := range keyPriority {
		val, ok := candidates[kind]
		if !ok {
			continue
		}
		key := CanonicalKey(kind, val)
		// A normalized-empty value (e.g. a domain candidate that was only
		// a scheme) is not usable; fall through to the next kind.
		if strings.HasSuffix(key, ":") {
			continue
		}
		return key, true
	}
	return "", false
}

// NameLocKey builds the weak fallback key used for stealth companies with
// no stronger identity source.
func NameLocKey(name, location string) string {
	combined := name
	if location != "" {
		combined = name + " " + location
	}
	return CanonicalKey(KeyKindNameLoc, combined)
}
