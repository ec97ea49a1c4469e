package logger

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/nexus360/internal/observability/context"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsTenantFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	ctx = orgcontext.WithOrgID(ctx, snowflake.ID(7))
	ctx = orgcontext.WithActor(ctx, orgcontext.Actor{UserID: snowflake.ID(9), Role: "ADMIN"})

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-42", fields["request_id"])
		assert.Equal(t, "7", fields["org_id"])
		assert.Equal(t, "9", fields["actor_id"])
		assert.Equal(t, "ADMIN", fields["actor_role"])
	}
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}
