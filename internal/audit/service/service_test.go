package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/audit/repository"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	})
	return svc.(*Service), fake
}

func TestAuditLogRequiresOrganization(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), "user.delete", "user", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestAuditLogMasksAndScopes(t *testing.T) {
	svc, fake := newTestService(t)

	ctxA := orgcontext.WithActor(orgcontext.WithOrgID(context.Background(), 10), orgcontext.Actor{UserID: 7, Role: "ADMIN"})
	ctxB := orgcontext.WithOrgID(context.Background(), 20)

	target := "42"
	require.NoError(t, svc.AuditLog(ctxA, "user.reset_password", "user", &target, map[string]any{"password": "abcdefghij"}))
	fake.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctxA, "user.delete", "user", &target, nil))
	require.NoError(t, svc.AuditLog(ctxB, "user.delete", "user", nil, nil))

	logs, err := svc.List(ctxA, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "user.delete", logs[0].Action)
	assert.Equal(t, "****ghij", logs[1].Metadata["password"])
	require.NotNil(t, logs[1].ActorID)
	assert.Equal(t, snowflake.ID(7), *logs[1].ActorID)

	filtered, err := svc.List(ctxA, auditdomain.ListAuditLogRequest{Action: "user.reset_password"})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := orgcontext.WithOrgID(context.Background(), 10)
	assert.ErrorIs(t, svc.AuditLog(ctx, "  ", "user", nil, nil), auditdomain.ErrInvalidAction)
}
