package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The script keeps tokens scaled by 1000 so fractional refills survive the
// Lua to redis integer conversion.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + math.floor(delta * rate))
end

local allowed = 0
if tokens >= 1000 then
  allowed = 1
  tokens = tokens - 1000
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tokens}
`

// TokenBucket is a Limiter whose buckets live in redis.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
	prefix string
	policy Policy
}

func NewTokenBucket(client *redis.Client, prefix string, policy Policy) *TokenBucket {
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		prefix: prefix,
		policy: policy,
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, errors.New("rate limiter not configured")
	}
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}
	if !t.policy.Enabled() {
		return Result{Allowed: true}, nil
	}

	ttl := bucketTTL(t.policy)
	res, err := t.script.Run(ctx, t.client, []string{t.prefix + key},
		t.policy.Rate,
		t.policy.Burst,
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	allowed := toInt64(res[0]) == 1
	remaining := float64(toInt64(res[1])) / 1000

	out := Result{Allowed: allowed, Remaining: int(remaining)}
	if !allowed {
		out.RetryAfter = time.Duration((1 - remaining) / t.policy.Rate * float64(time.Second))
	}
	return out, nil
}

// bucketTTL keeps a key for twice the time it takes to refill completely.
func bucketTTL(p Policy) time.Duration {
	if !p.Enabled() {
		return time.Second
	}
	seconds := math.Ceil(float64(p.Burst) / p.Rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}
