// Package classifier implements the deterministic-gate's LLM-backed
// stage-2 classifier: given an old and new description, ask an LLM
// backend to label the change and cache the result by input hash.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sourcingengine/core/pkg/sourcing/canonicalize"
	"github.com/sourcingengine/core/pkg/sourcing/llm"
)

// SchemaVersion is stamped on every classification result so downstream
// consumers can detect a future format change.
const SchemaVersion = "v1"

// Label is the classifier's output category.
type Label string

const (
	LabelPivot       Label = "pivot"
	LabelExpansion   Label = "expansion"
	LabelRebrand     Label = "rebrand"
	LabelMinor       Label = "minor"
	LabelNeedsReview Label = "needs_review"
)

// Result is the classifier's verdict for one (old, new) description pair.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Result struct {
	SchemaVersion string  `json:"schema_version"`
	Label         Label   `json:"label"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
	InputHash     string  `json:"input_hash"`
	Cached        bool    `json:"cached"`
}

// backendResponse is the shape the LLM backend's JSON reply is expected
// to parse into before being promoted to a Result.
type backendResponse struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Config tunes the classifier.
type Config struct {
	MinConfidence float64
	CacheEnabled  bool
}

// DefaultConfig returns the classifier's documented defaults.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.7, CacheEnabled: true}
}

const promptTemplate = `You are classifying a change in a company's public description.

Old description: %s
New description: %s

Respond with a JSON object only, with fields:
  "label": one of "pivot", "expansion", "rebrand", "minor", "needs_review"
  "confidence": a number from 0 to 1
  "rationale": a short explanation
`

// Classifier wraps an llm.Client with the gate's caching and
// confidence-override rules.
type Classifier struct {
	backend llm.Client
	cfg     Config

	mu    sync.Mutex
	cache map[string]Result
}

// New builds a Classifier backed by backend.
func New(backend llm.Client, cfg Config) *Classifier {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	return &Classifier{backend: backend, cfg: cfg, cache: make(map[string]Result)}
}

// Classify labels the change from oldDescription to newDescription,
// consulting and updating the cache keyed by input hash.
func (c *Classifier) Classify(ctx context.Context, oldDescription, newDescription string) Result {
	hash := canonicalize.ClassifierInputHash(oldDescription, newDescription)

	if c.cfg.CacheEnabled {
		c.mu.Lock()
		cached, ok := c.cache[hash]
		c.mu.Unlock()
		if ok {
			cached.Cached = true
			return cached
		}
	}

	result := c.invoke(ctx, oldDescription, newDescription, hash)

	if c.cfg.CacheEnabled {
		c.mu.Lock()
		c.cache[hash] = result
		c.mu.Unlock()
	}
	return result
}

func (c *Classifier) invoke(ctx context.Context, oldDescription, newDescription, hash string) Result {
	prompt := fmt.Sprintf(promptTemplate, oldDescription, newDescription)
	resp, err := c.backend.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return c.needsReview(hash, fmt.Sprintf("backend error: %v", err))
	}

	cleaned := []byte(extractJSON(resp.Content))
	if err := validateResponse(cleaned); err != nil {
		return c.needsReview(hash, err.Error())
	}

	var parsed backendResponse
	if err := json.Unmarshal(cleaned, &parsed); err != nil {
		return c.needsReview(hash, fmt.Sprintf("unparseable response: %v", err))
	}

	result := Result{
		SchemaVersion: SchemaVersion,
		Label:         parsed.Label,
		Confidence:    parsed.Confidence,
		Rationale:     parsed.Rationale,
		InputHash:     hash,
	}

	if result.Confidence < c.cfg.MinConfidence {
		result.Label = LabelNeedsReview
		result.Rationale = fmt.Sprintf("Low confidence (%.2f): %s", parsed.Confidence, parsed.Rationale)
	}

	return result
}

func (c *Classifier) needsReview(hash, reason string) Result {
	return Result{
		SchemaVersion: SchemaVersion,
		Label:         LabelNeedsReview,
		Confidence:    0.0,
		Rationale:     reason,
		InputHash:     hash,
	}
}

// extractJSON trims common LLM chatter (markdown code fences) around a
// JSON object so Unmarshal sees a clean document.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// CacheSize returns the number of cached results, for health reporting.
func (c *Classifier) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// SaveCache and LoadCache persist the classifier's cache to a structured
// file format (JSON), matching the original classifier's persistable
// cache contract so a restarted orchestrator does not re-spend LLM calls
// on inputs it has already classified.
func (c *Classifier) SaveCache() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c.cache)
}

func (c *Classifier) LoadCache(data []byte) error {
	var loaded map[string]Result
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("classifier: load cache: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = loaded
	return nil
}

// ClearCache empties the in-memory cache.
func (c *Classifier) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]Result)
}
