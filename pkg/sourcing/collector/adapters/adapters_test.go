package adapters

import "testing"

func TestConfidenceFromStars(t *testing.T) {
	cases := map[int]float64{0: 0.35, 99: 0.35, 100: 0.5, 299: 0.5, 300: 0.65, 999: 0.65, 1000: 0.8}
	for stars, want := range cases {
		if got := confidenceFromStars(stars); got != want {
			t.Errorf("confidenceFromStars(%d) = %v, want %v", stars, got, want)
		}
	}
}

func TestConfidenceFromPoints(t *testing.T) {
	cases := map[int]float64{0: 0.4, 29: 0.4, 30: 0.5, 99: 0.5, 100: 0.6, 299: 0.6, 300: 0.7}
	for points, want := range cases {
		if got := confidenceFromPoints(points); got != want {
			t.Errorf("confidenceFromPoints(%d) = %v, want %v", points, got, want)
		}
	}
}

func TestConfidenceFromVotes(t *testing.T) {
	cases := map[int]float64{0: 0.4, 49: 0.4, 50: 0.5, 199: 0.5, 200: 0.6, 499: 0.6, 500: 0.7}
	for votes, want := range cases {
		if got := confidenceFromVotes(votes); got != want {
			t.Errorf("confidenceFromVotes(%d) = %v, want %v", votes, got, want)
		}
	}
}

func TestGitHubToSignal_PrefersDomainOverRepoKey(t *testing.T) {
	g := NewGitHub(nil, 0, nil)
	repo := githubRepo{FullName: "acme/widget", Name: "widget", Homepage: "https://acme.com", Stars: 150}
	sig := g.toSignal("llm", repo)
	if sig.CanonicalKey != "domain:acme.com" {
		t.Errorf("expected domain canonical key, got %s", sig.CanonicalKey)
	}
	if sig.SignalType != "github_spike" {
		t.Errorf("unexpected signal type: %s", sig.SignalType)
	}
}

func TestGitHubToSignal_FallsBackToRepoKeyWithoutHomepage(t *testing.T) {
	g := NewGitHub(nil, 0, nil)
	repo := githubRepo{FullName: "acme/widget", Name: "widget", Stars: 150}
	sig := g.toSignal("llm", repo)
	if sig.CanonicalKey != "github_repo:acme-widget" {
		t.Errorf("expected github_repo canonical key, got %s", sig.CanonicalKey)
	}
}

func TestHackerNewsToSignal_PrefersDomainFromURL(t *testing.T) {
	h := NewHackerNews(0, 0, nil)
	hit := hnHit{ObjectID: "123", Title: "Show HN: Acme", URL: "https://acme.com/launch", Points: 50}
	sig := h.toSignal(hit)
	if sig.CanonicalKey != "domain:acme.com" {
		t.Errorf("expected domain canonical key, got %s", sig.CanonicalKey)
	}
	if sig.SignalType != "product_launch" {
		t.Errorf("unexpected signal type: %s", sig.SignalType)
	}
}

func TestProductHuntToSignal_PrefersDomainFromWebsite(t *testing.T) {
	p := NewProductHunt("key", 0, 0, nil)
	post := phPost{ID: "1", Name: "Acme", Website: "https://acme.com", VotesCount: 100}
	sig := p.toSignal(post)
	if sig.CanonicalKey != "domain:acme.com" {
		t.Errorf("expected domain canonical key, got %s", sig.CanonicalKey)
	}
}
