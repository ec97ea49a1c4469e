package service

import (
	"context"
	"errors"
	"testing"

	aiclient "github.com/smallbiznis/nexus360/internal/ai/client"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/assignment/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestForeignTenantCannotTouchAssignment(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	a, b, _ := f.acme(t)
	f.activeCycle(t)
	created, err := f.svc.Create(f.ctx, domain.CreateAssignmentRequest{ReviewerID: a.ID, SubjectID: b.ID, Relationship: "MANAGER"})
	require.NoError(t, err)

	other := orgcontext.WithOrgID(context.Background(), f.orgID+1)

	_, err = f.svc.GetByID(other, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Submit(other, created.ID, domain.SubmitRequest{Scores: domain.Scores{1: 5}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.SaveDraft(other, created.ID, domain.SubmitRequest{Scores: domain.Scores{1: 2}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Remove(other, created.ID), domain.ErrNotFound)

	listed, err := f.svc.List(other, domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	stored, err := f.svc.GetByID(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.SubmittedAt)
	assert.Empty(t, stored.Scores.Data())
}

type failingAudit struct{}

func (failingAudit) AuditLog(context.Context, string, string, *string, map[string]any) error {
	return errors.New("audit store down")
}

func (failingAudit) List(context.Context, auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	f.acme(t)
	f.activeCycle(t)

	core, logs := observer.New(zapcore.WarnLevel)
	svc := f.svc.(*Service)
	svc.auditSvc = failingAudit{}
	svc.log = zap.New(core)

	_, err := f.svc.Generate(f.ctx, domain.GenerateRequest{})
	require.NoError(t, err)

	entries := logs.FilterMessage("audit write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "assignment.generate", entries[0].ContextMap()["action"])
}
