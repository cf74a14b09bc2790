// Package crmclient pushes verified prospects to the external CRM and
// pulls back the canonical keys it already tracks, for suppression-cache
// warmup.
package crmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sourcingengine/core/pkg/sourcing/retry"
)

// Prospect is the push payload sent to the CRM for one verified
// canonical key.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Prospect struct {
	CanonicalKey string         `json:"canonical_key"`
	CompanyName  string         `json:"company_name"`
	Status       string         `json:"status"` // "Source" or "Tracking"
	Confidence   float64        `json:"confidence"`
	Sources      []string       `json:"sources"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// PushResult is the CRM's acknowledgement of a push.
type PushResult struct {
	PageID string `json:"page_id"`
	Status string `json:"status"`
}

// TrackedEntry is one canonical key already known to the CRM, part of
// the suppression-cache sync job's pull response.
type TrackedEntry struct {
	CanonicalKey string `json:"canonical_key"`
	PageID       string `json:"page_id"`
	Status       string `json:"status"`
	CompanyName  string `json:"company_name"`
}

// Connector is the interface the orchestrator's outbox drain and
// suppression sync jobs depend on; HTTPConnector is the only production
// implementation, kept as an interface so tests can substitute a fake
// without touching the network.
type Connector interface {
	UpsertProspect(ctx context.Context, p Prospect) (PushResult, error)
	ListTracked(ctx context.Context, since time.Time) ([]TrackedEntry, error)
}

// HTTPConnector talks to the CRM over HTTP, authenticating every
// request with a short-lived HS256 service JWT minted from a shared
// secret (service-to-service auth, no user session involved).
type HTTPConnector struct {
	baseURL    string
	jwtSecret  []byte
	httpClient *http.Client
	policy     retry.Policy
	log        *slog.Logger
}

// New builds an HTTPConnector against baseURL, signing requests with
// jwtSecret.
func New(baseURL string, jwtSecret []byte, log *slog.Logger) *HTTPConnector {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPConnector{
		baseURL:    baseURL,
		jwtSecret:  jwtSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.DefaultPolicy(),
		log:        log.With("component", "crmclient"),
	}
}

type serviceClaims struct {
	jwt.RegisteredClaims
	Service string `json:"service"`
}

func (c *HTTPConnector) signedToken() (string, error) {
	now := time.Now()
	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sourcingengine",
			Subject:   "crm-connector",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
		},
		Service: "crm-connector",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.jwtSecret)
}

// UpsertProspect pushes p to the CRM, idempotent on CanonicalKey: a
// second push for the same key updates the existing record instead of
// creating a duplicate.
func (c *HTTPConnector) UpsertProspect(ctx context.Context, p Prospect) (PushResult, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return PushResult{}, fmt.Errorf("crmclient: marshal prospect: %w", err)
	}

	var result PushResult
	err = retry.Do(ctx, c.log, c.policy, func(ctx context.Context) retry.Attempt {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/prospects/"+p.CanonicalKey, bytes.NewReader(body))
		if err != nil {
			return retry.Attempt{Err: err}
		}
		if err := c.authorize(req); err != nil {
			return retry.Attempt{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Attempt{Err: err, Retryable: true}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			attempt := retry.Attempt{
				Err:       fmt.Errorf("crmclient: upsert prospect status %d", resp.StatusCode),
				Retryable: retry.IsRetryable(resp.StatusCode, false),
			}
			if wait, ok := retry.RetryAfter(resp.Header.Get("Retry-After")); ok {
				attempt.RetryAfter, attempt.HasRetryAfter = wait, true
			}
			return attempt
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Attempt{Err: err}
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return retry.Attempt{Err: fmt.Errorf("crmclient: decode push result: %w", err)}
		}
		return retry.Attempt{}
	})
	if err != nil {
		return PushResult{}, err
	}
	return result, nil
}

// ListTracked returns every canonical key the CRM has recorded a
// status change for since `since`, feeding suppression-cache warmup.
func (c *HTTPConnector) ListTracked(ctx context.Context, since time.Time) ([]TrackedEntry, error) {
	var entries []TrackedEntry
	err := retry.Do(ctx, c.log, c.policy, func(ctx context.Context) retry.Attempt {
		url := fmt.Sprintf("%s/prospects?since=%s", c.baseURL, since.UTC().Format(time.RFC3339))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Attempt{Err: err}
		}
		if err := c.authorize(req); err != nil {
			return retry.Attempt{Err: err}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Attempt{Err: err, Retryable: true}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return retry.Attempt{
				Err:       fmt.Errorf("crmclient: list tracked status %d", resp.StatusCode),
				Retryable: retry.IsRetryable(resp.StatusCode, false),
			}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Attempt{Err: err}
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return retry.Attempt{Err: fmt.Errorf("crmclient: decode tracked list: %w", err)}
		}
		return retry.Attempt{}
	})
	return entries, err
}

func (c *HTTPConnector) authorize(req *http.Request) error {
	token, err := c.signedToken()
	if err != nil {
		return fmt.Errorf("crmclient: sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
