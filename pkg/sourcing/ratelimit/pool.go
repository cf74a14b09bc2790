// Package ratelimit implements the per-API token-bucket rate limiting
// pool shared by all collector instances.
package ratelimit

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// APILimit describes a token-bucket rate for one external API: at most
// Rate requests per Period. A zero Rate means unlimited.
type APILimit struct {
	Rate   int
	Period float64 // seconds
}

// DefaultLimits mirrors the collector runtime's documented per-API
// limits. APIs not listed fall back to unlimited.
var DefaultLimits = map[string]APILimit{
	"github":           {Rate: 5000, Period: 3600},
	"github_activity":  {Rate: 5000, Period: 3600},
	"sec_edgar":        {Rate: 10, Period: 1},
	"companies_house":  {Rate: 600, Period: 300},
	"domain_whois":     {Rate: 0, Period: 1},
	"job_postings":     {Rate: 0, Period: 1},
	"product_hunt":     {Rate: 100, Period: 3600},
	"arxiv":            {Rate: 0, Period: 1},
	"uspto":            {Rate: 0, Period: 1},
	"hacker_news":      {Rate: 100, Period: 60},
}

// Limiter is the minimal interface collectors depend on; Acquire blocks
// (respecting ctx cancellation) until a token is available.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// unlimited never blocks.
type unlimited struct{}

func (unlimited) Acquire(ctx context.Context) error { return ctx.Err() }

// tokenBucketLimiter wraps golang.org/x/time/rate for a single API.
type tokenBucketLimiter struct {
	limiter *rate.Limiter
}

func (t *tokenBucketLimiter) Acquire(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

func newLimiter(limit APILimit) Limiter {
	if limit.Rate <= 0 {
		return unlimited{}
	}
	r := rate.Limit(float64(limit.Rate) / limit.Period)
	// Burst equal to the full bucket lets a cold-started collector spend
	// its whole period's budget immediately, matching the token-bucket
	// semantics of the original per-API limiter.
	return &tokenBucketLimiter{limiter: rate.NewLimiter(r, limit.Rate)}
}

// Pool is a process-wide registry of per-API limiters, created on first
// use with the configured limit for that API name.
type Pool struct {
	mu          sync.Mutex
	limits      map[string]APILimit
	limiters    map[string]Limiter
	redisClient *redis.Client
}

// NewPool builds a Pool seeded with limits, falling back to
// DefaultLimits for any API name not present in limits. Its limiters are
// in-process: correct for a single orchestrator process, but each
// process gets its own independent budget.
func NewPool(limits map[string]APILimit) *Pool {
	merged := make(map[string]APILimit, len(DefaultLimits)+len(limits))
	for k, v := range DefaultLimits {
		merged[k] = v
	}
	for k, v := range limits {
		merged[k] = v
	}
	return &Pool{limits: merged, limiters: make(map[string]Limiter)}
}

// NewDistributedPool builds a Pool whose limiters are backed by client,
// so every orchestrator process pointed at the same Redis instance
// shares one per-API budget instead of each enforcing its own.
func NewDistributedPool(limits map[string]APILimit, client *redis.Client) *Pool {
	p := NewPool(limits)
	p.redisClient = client
	return p
}

// Get returns the limiter for apiName, creating it on first use. Unknown
// API names get an unlimited limiter.
func (p *Pool) Get(apiName string) Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[apiName]; ok {
		return l
	}
	limit, ok := p.limits[apiName]
	if !ok {
		limit = APILimit{Rate: 0}
	}
	var l Limiter
	if p.redisClient != nil && limit.Rate > 0 {
		l = NewRedisLimiter(p.redisClient, apiName, limit, 0)
	} else {
		l = newLimiter(limit)
	}
	p.limiters[apiName] = l
	return l
}

// Reset clears all created limiters; intended for tests.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters = make(map[string]Limiter)
}

var globalPool = NewPool(nil)

// Get returns the limiter for apiName from the process-wide pool, the
// shared pool used when a single orchestrator process runs every
// collector.
func Get(apiName string) Limiter {
	return globalPool.Get(apiName)
}

// UseDistributed replaces the process-wide pool with one backed by
// client, so every caller of Get — collectors, the LLM client, the HTTP
// client — draws from a Redis-shared budget instead of an in-process
// one. Intended to be called once at startup when the deployment runs
// more than one orchestrator process against the same APIs.
func UseDistributed(limits map[string]APILimit, client *redis.Client) {
	globalPool = NewDistributedPool(limits, client)
}

// ResetGlobal clears the process-wide pool; intended for tests.
func ResetGlobal() {
	globalPool.Reset()
}
