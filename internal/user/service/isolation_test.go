package service

import (
	"context"
	"errors"
	"testing"

	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestForeignTenantCannotTouchUser(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "Alice", "alice", "MANAGER", nil)

	other := orgcontext.WithOrgID(context.Background(), f.orgID+1)
	renamed := "Mallory"

	_, err := f.svc.GetByID(other, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Update(other, alice.ID, domain.UpdateUserRequest{Name: &renamed})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(other, alice.ID), domain.ErrNotFound)
	_, err = f.svc.ResetPassword(other, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.ChangePassword(other, alice.ID, "secret-alice", "taken-over"), domain.ErrNotFound)

	creds, err := f.svc.BatchResetPasswords(other, 0)
	require.NoError(t, err)
	assert.Empty(t, creds)

	stored, err := f.svc.GetByID(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
	_, err = f.svc.Authenticate(f.ctx, "alice", "secret-alice")
	assert.NoError(t, err)
}

type failingAudit struct{}

func (failingAudit) AuditLog(context.Context, string, string, *string, map[string]any) error {
	return errors.New("audit store down")
}

func (failingAudit) List(context.Context, auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	svc := f.svc.(*Service)
	svc.auditSvc = failingAudit{}
	svc.log = zap.New(core)

	alice := f.create(t, "Alice", "alice", "EMPLOYEE", nil)
	require.NoError(t, f.svc.Delete(f.ctx, alice.ID))

	entries := logs.FilterMessage("audit write failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "user.create", entries[0].ContextMap()["action"])
	assert.Equal(t, "user.delete", entries[1].ContextMap()["action"])
}
