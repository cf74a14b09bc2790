// Package adapters implements collector.Adapter for the discovery
// engine's free-tier sources: GitHub trending repos, Hacker News Show
// HN launches, and Product Hunt launches.
package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/httpclient"
)

// DefaultGitHubTopics mirrors the original collector's tech-thesis
// topic filter: AI infrastructure, developer tooling, and ML serving.
var DefaultGitHubTopics = []string{"llm", "vector-database", "inference", "developer-tools", "mlops"}

// GitHub finds repositories with recent star growth in topics of
// interest, using the unauthenticated repository search endpoint
// (recently created repos above a star floor, sorted by stars) as a
// proxy for trending velocity.
type GitHub struct {
	http   *httpclient.Client
	topics []string
	minStars int
}

// NewGitHub builds a GitHub collector over topics (DefaultGitHubTopics
// if empty), requiring at least minStars to consider a repo a signal.
func NewGitHub(topics []string, minStars int, log *slog.Logger) *GitHub {
	if len(topics) == 0 {
		topics = DefaultGitHubTopics
	}
	if minStars <= 0 {
		minStars = 50
	}
	return &GitHub{http: httpclient.New("github", log), topics: topics, minStars: minStars}
}

func (g *GitHub) Name() string    { return "github_trending" }
func (g *GitHub) APIName() string { return "github" }

type githubSearchResponse struct {
	Items []githubRepo `json:"items"`
}

type githubRepo struct {
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Homepage    string `json:"homepage"`
	Stars       int    `json:"stargazers_count"`
	CreatedAt   string `json:"created_at"`
	PushedAt    string `json:"pushed_at"`
	Owner       struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"owner"`
}

// Collect queries GitHub's repository search API once per configured topic
// and emits one signal per qualifying repo.
func (g *GitHub) Collect(ctx context.Context) ([]contracts.Signal, error) {
	var signals []contracts.Signal
	since := time.Now().AddDate(0, 0, -30).Format("2006-01-02")

	for _, topic := range g.topics {
		q := fmt.Sprintf("topic:%s created:>%s stars:>=%d", topic, since, g.minStars)
		endpoint := "https://api.github.com/search/repositories?q=" + url.QueryEscape(q) + "&sort=stars&order=desc&per_page=30"

		var resp githubSearchResponse
		if err := g.http.GetJSON(ctx, endpoint, map[string]string{"Accept": "application/vnd.github+json"}, &resp); err != nil {
			return signals, fmt.Errorf("github: search topic %s: %w", topic, err)
		}

		for _, repo := range resp.Items {
			signals = append(signals, g.toSignal(topic, repo))
		}
	}
	return signals, nil
}

func (g *GitHub) toSignal(topic string, repo githubRepo) contracts.Signal {
	domain := domainFromHomepage(repo.Homepage)
	canonicalKey := contracts.CanonicalKey(contracts.KeyKindGithubRepo, strings.ToLower(repo.FullName))
	if domain != "" {
		canonicalKey = contracts.CanonicalKey(contracts.KeyKindDomain, domain)
	}

	return contracts.Signal{
		ID:           fmt.Sprintf("github:%s", repo.FullName),
		SignalType:   "github_spike",
		SourceAPI:    "github",
		CanonicalKey: canonicalKey,
		Confidence:   confidenceFromStars(repo.Stars),
		CompanyName:  repo.Name,
		DetectedAt:   time.Now(),
		RawData: map[string]any{
			"source_type":  "github_repo",
			"external_id":  repo.FullName,
			"name":         repo.Name,
			"description":  repo.Description,
			"homepage":     repo.Homepage,
			"full_name":    repo.FullName,
			"stars":        repo.Stars,
			"topic":        topic,
			"owner": map[string]any{
				"login": repo.Owner.Login,
				"type":  repo.Owner.Type,
			},
		},
	}
}

func confidenceFromStars(stars int) float64 {
	switch {
	case stars >= 1000:
		return 0.8
	case stars >= 300:
		return 0.65
	case stars >= 100:
		return 0.5
	default:
		return 0.35
	}
}

func domainFromHomepage(homepage string) string {
	if homepage == "" {
		return ""
	}
	return contracts.NormalizeDomain(homepage)
}
