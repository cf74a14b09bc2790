package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/ratelimit"
	"github.com/sourcingengine/core/pkg/sourcing/retry"
)

const productHuntAPI = "https://api.producthunt.com/v2/api/graphql"

const productHuntQuery = `
query RecentPosts($postedAfter: DateTime) {
  posts(order: VOTES, postedAfter: $postedAfter, first: 50) {
    edges {
      node {
        id
        name
        tagline
        website
        votesCount
        createdAt
      }
    }
  }
}
`

// ProductHunt finds newly launched products via Product Hunt's GraphQL
// API, a medium-strength signal that a company has a launchable product
// and is actively marketing it.
type ProductHunt struct {
	http      *http.Client
	limiter   ratelimit.Limiter
	policy    retry.Policy
	log       *slog.Logger
	apiKey    string
	lookback  time.Duration
	minVotes  int
}

// NewProductHunt builds a ProductHunt collector authenticating with
// apiKey, looking back lookback (3 days if zero).
func NewProductHunt(apiKey string, lookback time.Duration, minVotes int, log *slog.Logger) *ProductHunt {
	if log == nil {
		log = slog.Default()
	}
	if lookback <= 0 {
		lookback = 3 * 24 * time.Hour
	}
	if minVotes <= 0 {
		minVotes = 20
	}
	return &ProductHunt{
		http:     &http.Client{Timeout: 20 * time.Second},
		limiter:  ratelimit.Get("product_hunt"),
		policy:   retry.DefaultPolicy(),
		log:      log,
		apiKey:   apiKey,
		lookback: lookback,
		minVotes: minVotes,
	}
}

func (p *ProductHunt) Name() string    { return "product_hunt_launches" }
func (p *ProductHunt) APIName() string { return "product_hunt" }

type phGraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type phGraphQLResponse struct {
	Data struct {
		Posts struct {
			Edges []struct {
				Node phPost `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
}

type phPost struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Tagline    string `json:"tagline"`
	Website    string `json:"website"`
	VotesCount int    `json:"votesCount"`
	CreatedAt  string `json:"createdAt"`
}

// Collect posts a single GraphQL query for posts launched since
// lookback and emits one signal per post meeting minVotes.
func (p *ProductHunt) Collect(ctx context.Context) ([]contracts.Signal, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("product_hunt: no API key configured")
	}

	since := time.Now().Add(-p.lookback).Format(time.RFC3339)
	reqBody, err := json.Marshal(phGraphQLRequest{
		Query:     productHuntQuery,
		Variables: map[string]any{"postedAfter": since},
	})
	if err != nil {
		return nil, fmt.Errorf("product_hunt: encode request: %w", err)
	}

	var respBody []byte
	err = retry.Do(ctx, p.log, p.policy, func(ctx context.Context) retry.Attempt {
		if err := p.limiter.Acquire(ctx); err != nil {
			return retry.Attempt{Err: err, Retryable: false}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, productHuntAPI, bytes.NewReader(reqBody))
		if err != nil {
			return retry.Attempt{Err: err, Retryable: false}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.http.Do(req)
		if err != nil {
			return retry.Attempt{Err: err, Retryable: true}
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return retry.Attempt{Err: readErr, Retryable: true}
		}
		if resp.StatusCode >= 400 {
			return retry.Attempt{Err: fmt.Errorf("product_hunt: status %d", resp.StatusCode), Retryable: retry.IsRetryable(resp.StatusCode, false)}
		}
		respBody = data
		return retry.Attempt{}
	})
	if err != nil {
		return nil, err
	}

	var parsed phGraphQLResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("product_hunt: decode response: %w", err)
	}

	signals := make([]contracts.Signal, 0, len(parsed.Data.Posts.Edges))
	for _, edge := range parsed.Data.Posts.Edges {
		post := edge.Node
		if post.VotesCount < p.minVotes {
			continue
		}
		signals = append(signals, p.toSignal(post))
	}
	return signals, nil
}

func (p *ProductHunt) toSignal(post phPost) contracts.Signal {
	domain := contracts.NormalizeDomain(post.Website)
	canonicalKey := contracts.CanonicalKey(contracts.KeyKindNameLoc, post.Name)
	if domain != "" {
		canonicalKey = contracts.CanonicalKey(contracts.KeyKindDomain, domain)
	}

	return contracts.Signal{
		ID:           fmt.Sprintf("product_hunt:%s", post.ID),
		SignalType:   "product_launch",
		SourceAPI:    "product_hunt",
		CanonicalKey: canonicalKey,
		Confidence:   confidenceFromVotes(post.VotesCount),
		CompanyName:  post.Name,
		DetectedAt:   time.Now(),
		RawData: map[string]any{
			"source_type": "product_hunt",
			"external_id": post.ID,
			"name":        post.Name,
			"tagline":     post.Tagline,
			"website":     post.Website,
			"votes":       post.VotesCount,
		},
	}
}

func confidenceFromVotes(votes int) float64 {
	switch {
	case votes >= 500:
		return 0.7
	case votes >= 200:
		return 0.6
	case votes >= 50:
		return 0.5
	default:
		return 0.4
	}
}
