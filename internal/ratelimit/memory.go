package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/nexus360/internal/clock"
	"golang.org/x/time/rate"
)

// sweepEvery is the number of calls between removals of idle buckets.
const sweepEvery = 256

type bucket struct {
	limiter *rate.Limiter
	last    time.Time
}

// Memory keeps one rate.Limiter per key in process. Every decision is taken
// at the injected clock's time.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	clock   clock.Clock
	buckets map[string]*bucket
	calls   int
}

func NewMemory(policy Policy, clk clock.Clock) *Memory {
	return &Memory{
		policy:  policy,
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Result, error) {
	if !m.policy.Enabled() {
		return Result{Allowed: true}, nil
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(m.policy.Rate), m.policy.Burst)}
		m.buckets[key] = b
	}
	b.last = now

	if !b.limiter.AllowN(now, 1) {
		missing := 1 - b.limiter.TokensAt(now)
		return Result{
			Allowed:    false,
			RetryAfter: time.Duration(missing / m.policy.Rate * float64(time.Second)),
		}, nil
	}
	return Result{Allowed: true, Remaining: int(b.limiter.TokensAt(now))}, nil
}

// sweep drops buckets that have refilled completely.
func (m *Memory) sweep(now time.Time) {
	full := time.Duration(float64(m.policy.Burst) / m.policy.Rate * float64(time.Second))
	for key, b := range m.buckets {
		if now.Sub(b.last) > full {
			delete(m.buckets, key)
		}
	}
}
