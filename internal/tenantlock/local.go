package tenantlock

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Local keeps one buffered channel per tenant as a context-aware mutex.
type Local struct {
	mu    sync.Mutex
	slots map[snowflake.ID]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[snowflake.ID]chan struct{})}
}

func (l *Local) Lock(ctx context.Context, orgID snowflake.ID) (func(), error) {
	slot := l.slot(orgID)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (l *Local) slot(orgID snowflake.ID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[orgID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[orgID] = slot
	}
	return slot
}
