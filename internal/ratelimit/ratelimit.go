// Package ratelimit throttles unauthenticated entry points with token
// buckets, in process or shared through redis.
package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexus360/internal/apperror"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrTooManyAttempts = apperror.RateLimit("too_many_attempts")

// Policy is a bucket of Burst tokens refilled at Rate tokens per second.
type Policy struct {
	Rate  float64
	Burst int
}

func PerMinute(n int) Policy {
	return Policy{Rate: float64(n) / 60, Burst: n}
}

func (p Policy) Enabled() bool {
	return p.Rate > 0 && p.Burst > 0
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}

type Params struct {
	fx.In

	Lc    fx.Lifecycle
	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

// NewAuthLimiter shares buckets through redis when REDIS_ADDR is set so
// every replica counts the same attempts.
func NewAuthLimiter(p Params) Limiter {
	policy := PerMinute(p.Cfg.AuthAttemptsPerMinute)
	if !policy.Enabled() {
		return Unlimited{}
	}
	if p.Cfg.RedisAddr == "" {
		return NewMemory(policy, p.Clock)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.RedisAddr,
		Password: p.Cfg.RedisPassword,
		DB:       p.Cfg.RedisDB,
	})
	p.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	p.Log.Named("ratelimit").Info("auth throttle backed by redis", zap.Int("per_minute", p.Cfg.AuthAttemptsPerMinute))
	return NewTokenBucket(client, "nexus360:auth:", policy)
}
