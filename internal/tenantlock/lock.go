// Package tenantlock serializes writers within a single organization.
// Different organizations never contend with each other.
package tenantlock

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Locker grants the single-writer slot of a tenant. The returned unlock
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, orgID snowflake.ID) (func(), error)
}

var Module = fx.Module("tenantlock",
	fx.Provide(provide),
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.ReviewMetrics `optional:"true"`
}

func provide(lc fx.Lifecycle, p Params) Locker {
	var locker Locker
	if p.Cfg.RedisAddr == "" {
		locker = NewLocal()
	} else {
		client := redis.NewClient(&redis.Options{
			Addr:     p.Cfg.RedisAddr,
			Password: p.Cfg.RedisPassword,
			DB:       p.Cfg.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
		p.Log.Info("tenant lock backed by redis", zap.String("addr", p.Cfg.RedisAddr))
		locker = NewRedis(client, RedisOptions{})
	}
	return Instrument(locker, p.Metrics)
}

type instrumented struct {
	next    Locker
	metrics *metrics.ReviewMetrics
}

// Instrument records how long callers wait for the lock.
func Instrument(next Locker, m *metrics.ReviewMetrics) Locker {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func (l *instrumented) Lock(ctx context.Context, orgID snowflake.ID) (func(), error) {
	start := time.Now()
	unlock, err := l.next.Lock(ctx, orgID)
	l.metrics.ObserveLockWait(time.Since(start).Seconds())
	return unlock, err
}
