package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript runs the token-bucket algorithm atomically in
// Redis so several orchestrator processes can share one per-API budget.
//
// KEYS[1] = bucket key ("sourcing:ratelimit:<api>")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = current unix timestamp, microsecond precision as a float
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 3600)

return {allowed, tokens}
`)

// RedisLimiter is a distributed token-bucket limiter backed by Redis,
// used when multiple orchestrator processes must share one per-API
// budget instead of each holding its own in-process bucket.
type RedisLimiter struct {
	client   *redis.Client
	key      string
	rate     float64 // tokens per second
	capacity float64
	poll     time.Duration
}

// NewRedisLimiter builds a limiter for apiName backed by client, with the
// given limit. poll controls how long Acquire sleeps between attempts
// when the bucket is empty.
func NewRedisLimiter(client *redis.Client, apiName string, limit APILimit, poll time.Duration) *RedisLimiter {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	rate := float64(limit.Rate) / limit.Period
	return &RedisLimiter{
		client:   client,
		key:      fmt.Sprintf("sourcing:ratelimit:%s", apiName),
		rate:     rate,
		capacity: float64(limit.Rate),
		poll:     poll,
	}
}

// Acquire blocks until a token is available or ctx is done.
func (r *RedisLimiter) Acquire(ctx context.Context) error {
	for {
		allowed, err := r.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

func (r *RedisLimiter) tryAcquire(ctx context.Context) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, r.client, []string{r.key}, r.rate, r.capacity, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis script: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected lua script response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}
