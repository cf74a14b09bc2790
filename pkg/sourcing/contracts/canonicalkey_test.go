package contracts

import "testing"

func TestCanonicalKey_DomainNormalization(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"bare host", "example.com", "domain:example.com"},
		{"with scheme", "https://example.com", "domain:example.com"},
		{"with www", "https://www.example.com/", "domain:example.com"},
		{"with port", "http://example.com:8080", "domain:example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanonicalKey(KeyKindDomain, tc.value)
			if got != tc.want {
				t.Fatalf("CanonicalKey(%q) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}
}

func TestCanonicalKey_Slug(t *testing.T) {
	got := CanonicalKey(KeyKindGithubOrg, "Acme Corp, Inc.")
	want := "github_org:acme-corp-inc"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBestCanonicalKey_PriorityOrder(t *testing.T) {
	candidates := map[KeyKind]string{
		KeyKindGithubOrg: "acme",
		KeyKindDomain:    "acme.com",
	}
	key, ok := BestCanonicalKey(candidates)
	if !ok || key != "domain:acme.com" {
		t.Fatalf("got (%q, %v), want (domain:acme.com, true)", key, ok)
	}
}

func TestBestCanonicalKey_NoCandidates(t *testing.T) {
	_, ok := BestCanonicalKey(nil)
	if ok {
		t.Fatal("expected no candidates to resolve")
	}
}

func TestAssetToLead_ShouldReplace(t *testing.T) {
	existing := &AssetToLead{ResolvedBy: ResolvedByHeuristic, Confidence: 0.4}

	higher := AssetToLead{ResolvedBy: ResolvedByOrgMatch, Confidence: 0.75}
	if !higher.ShouldReplace(existing) {
		t.Fatal("higher-confidence non-manual link should replace")
	}

	lower := AssetToLead{ResolvedBy: ResolvedByDomainMatch, Confidence: 0.2}
	if lower.ShouldReplace(existing) {
		t.Fatal("lower-confidence non-manual link should not replace")
	}

	manualExisting := &AssetToLead{ResolvedBy: ResolvedByManual, Confidence: 0.99}
	attempt := AssetToLead{ResolvedBy: ResolvedByDomainMatch, Confidence: 1.0}
	if attempt.ShouldReplace(manualExisting) {
		t.Fatal("manual link must never be replaced by a non-manual one")
	}

	manualCandidate := AssetToLead{ResolvedBy: ResolvedByManual, Confidence: 0.1}
	if !manualCandidate.ShouldReplace(existing) {
		t.Fatal("manual candidate always wins")
	}
}
