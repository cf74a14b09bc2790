package resolver

import (
	"testing"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

func TestResolveByDomain(t *testing.T) {
	r := New(DefaultConfig())
	payload := map[string]any{"homepage": "https://www.acme.com/"}
	c, ok := r.BestCandidate("github_repo", payload)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.CanonicalKey != "domain:acme.com" {
		t.Fatalf("got %q", c.CanonicalKey)
	}
	if c.ResolvedBy != contracts.ResolvedByDomainMatch {
		t.Fatalf("got %v", c.ResolvedBy)
	}
}

func TestResolveByDomain_SkipsAggregatorDomains(t *testing.T) {
	r := New(DefaultConfig())
	payload := map[string]any{"homepage": "https://github.com/acme/acme"}
	candidates := r.FindCandidates("github_repo", payload)
	for _, c := range candidates {
		if c.ResolvedBy == contracts.ResolvedByDomainMatch {
			t.Fatalf("should not resolve by domain on a skip-listed domain, got %+v", c)
		}
	}
}

func TestResolveByOrg_PersonalHeuristic(t *testing.T) {
	r := New(DefaultConfig())
	payload := map[string]any{"owner": map[string]any{"login": "jd"}}
	c, ok := r.BestCandidate("github_repo", payload)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.Metadata["possibly_personal"] != true {
		t.Fatalf("expected possibly_personal flag, got %+v", c.Metadata)
	}
	if c.Confidence >= DefaultConfig().OrgMatchConfidence {
		t.Fatalf("expected discounted confidence for personal org, got %v", c.Confidence)
	}
}

func TestResolveByOrg_CompanyOrgNotDiscounted(t *testing.T) {
	r := New(DefaultConfig())
	payload := map[string]any{"owner": map[string]any{"login": "AcmeCorp"}}
	c, ok := r.BestCandidate("github_repo", payload)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.Confidence != DefaultConfig().OrgMatchConfidence {
		t.Fatalf("expected full confidence for non-personal org, got %v", c.Confidence)
	}
}

func TestResolveByHeuristic_NormalizesName(t *testing.T) {
	r := New(DefaultConfig())
	payload := map[string]any{"name": "Acme Corp, Inc."}
	candidates := r.FindCandidates("github_repo", payload)
	found := false
	for _, c := range candidates {
		if c.ResolvedBy == contracts.ResolvedByHeuristic {
			found = true
			if c.CanonicalKey != "name_loc:acme-corp" {
				t.Fatalf("got %q", c.CanonicalKey)
			}
		}
	}
	if !found {
		t.Fatal("expected a heuristic candidate")
	}
}

func TestBestCandidate_PrefersHighestConfidence(t *testing.T) {
	r := New(DefaultConfig())
	payload := map[string]any{
		"homepage": "https://acme.com",
		"owner":    map[string]any{"login": "AcmeCorp"},
	}
	best, ok := r.BestCandidate("github_repo", payload)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if best.ResolvedBy != contracts.ResolvedByDomainMatch {
		t.Fatalf("expected domain match to win, got %v", best.ResolvedBy)
	}
}
