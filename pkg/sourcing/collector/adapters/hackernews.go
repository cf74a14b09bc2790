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

const hnAlgoliaSearchURL = "https://hn.algolia.com/api/v1/search_by_date"

// HackerNews finds "Show HN" launch posts via the unauthenticated
// Algolia search API, a medium-strength signal of product-launch and
// founder marketing activity.
type HackerNews struct {
	http      *httpclient.Client
	lookback  time.Duration
	minPoints int
}

// NewHackerNews builds a HackerNews collector looking back lookback
// (7 days if zero) and requiring at least minPoints upvotes.
func NewHackerNews(lookback time.Duration, minPoints int, log *slog.Logger) *HackerNews {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	if minPoints <= 0 {
		minPoints = 10
	}
	return &HackerNews{http: httpclient.New("hacker_news", log), lookback: lookback, minPoints: minPoints}
}

func (h *HackerNews) Name() string    { return "hacker_news_launches" }
func (h *HackerNews) APIName() string { return "hacker_news" }

type hnSearchResponse struct {
	Hits []hnHit `json:"hits"`
}

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAt   string `json:"created_at"`
	Author      string `json:"author"`
}

// Collect queries Algolia for "Show HN" titles created since lookback
// and emits one signal per post meeting minPoints.
func (h *HackerNews) Collect(ctx context.Context) ([]contracts.Signal, error) {
	since := time.Now().Add(-h.lookback).Unix()
	q := url.Values{}
	q.Set("query", "Show HN")
	q.Set("tags", "story")
	q.Set("numericFilters", fmt.Sprintf("created_at_i>%d,points>=%d", since, h.minPoints))
	endpoint := hnAlgoliaSearchURL + "?" + q.Encode()

	var resp hnSearchResponse
	if err := h.http.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("hacker_news: search: %w", err)
	}

	signals := make([]contracts.Signal, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if !strings.HasPrefix(strings.ToLower(hit.Title), "show hn") {
			continue
		}
		signals = append(signals, h.toSignal(hit))
	}
	return signals, nil
}

func (h *HackerNews) toSignal(hit hnHit) contracts.Signal {
	domain := contracts.NormalizeDomain(hit.URL)
	canonicalKey := contracts.CanonicalKey(contracts.KeyKindNameLoc, hit.Title)
	if domain != "" {
		canonicalKey = contracts.CanonicalKey(contracts.KeyKindDomain, domain)
	}

	return contracts.Signal{
		ID:           fmt.Sprintf("hacker_news:%s", hit.ObjectID),
		SignalType:   "product_launch",
		SourceAPI:    "hacker_news",
		CanonicalKey: canonicalKey,
		Confidence:   confidenceFromPoints(hit.Points),
		DetectedAt:   time.Now(),
		RawData: map[string]any{
			"source_type":  "hacker_news",
			"external_id":  hit.ObjectID,
			"title":        hit.Title,
			"url":          hit.URL,
			"points":       hit.Points,
			"num_comments": hit.NumComments,
			"author":       hit.Author,
		},
	}
}

func confidenceFromPoints(points int) float64 {
	switch {
	case points >= 300:
		return 0.7
	case points >= 100:
		return 0.6
	case points >= 30:
		return 0.5
	default:
		return 0.4
	}
}
