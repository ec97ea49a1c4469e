package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	auditrepository "github.com/smallbiznis/nexus360/internal/audit/repository"
	auditservice "github.com/smallbiznis/nexus360/internal/audit/service"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/credential"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	cyclerepository "github.com/smallbiznis/nexus360/internal/cycle/repository"
	cycleservice "github.com/smallbiznis/nexus360/internal/cycle/service"
	"github.com/smallbiznis/nexus360/internal/organization/domain"
	"github.com/smallbiznis/nexus360/internal/organization/repository"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	userrepository "github.com/smallbiznis/nexus360/internal/user/repository"
	"github.com/smallbiznis/nexus360/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc   domain.Service
	db    *gorm.DB
	users userdomain.Repository
	audit auditdomain.Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.Organization{},
		&userdomain.User{},
		&cycledomain.Cycle{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	locker := tenantlock.NewLocal()

	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: fake,
	})
	cycles := cycleservice.New(cycleservice.Params{
		DB:     conn,
		Log:    log,
		GenID:  node,
		Repo:   cyclerepository.Provide(),
		Clock:  fake,
		Locker: locker,
	})
	users := userrepository.Provide()

	svc := NewService(Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Repo:     repository.NewRepository(conn),
		Users:    users,
		Cycles:   cycles,
		Clock:    fake,
		Locker:   locker,
		Policy:   config.StaticReviewPolicy(config.DefaultReviewPolicy()),
		AuditSvc: audit,
	})
	return &fixture{svc: svc, db: conn, users: users, audit: audit, clock: fake}
}

func (f *fixture) register(t *testing.T, code string) *domain.RegisterResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Name:          "Acme Corp",
		LoginCode:     code,
		AdminName:     "Ada Admin",
		AdminUsername: "Ada",
		AdminPassword: "initial-secret",
	})
	require.NoError(t, err)
	return result
}

func TestRegisterCreatesTenant(t *testing.T) {
	f := newFixture(t)
	result := f.register(t, "Acme")

	assert.Equal(t, "acme", result.Organization.LoginCode)
	assert.Equal(t, userdomain.RoleAdmin, result.Admin.Role)
	assert.Equal(t, "ada@nexus360.local", result.Admin.Email)
	assert.Equal(t, "2025 360 Review", result.Cycle.Name)
	assert.Equal(t, cycledomain.StatusActive, result.Cycle.Status)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), result.Cycle.DueDate)

	require.NotEmpty(t, result.RecoveryKey)
	assert.Len(t, credential.NormalizeRecoveryKey(result.RecoveryKey), 32)
	assert.NotContains(t, result.Organization.RecoveryKeyHash, result.RecoveryKey)

	ctx := orgcontext.WithOrgID(context.Background(), result.Organization.ID)
	current, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", current.Name)

	logs, err := f.audit.List(ctx, auditdomain.ListAuditLogRequest{Action: "organization.register"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, result.Admin.ID, *logs[0].ActorID)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		req  domain.RegisterRequest
		want error
	}{
		{"missing name", domain.RegisterRequest{LoginCode: "a", AdminName: "x", AdminUsername: "x", AdminPassword: "x"}, domain.ErrInvalidName},
		{"bad code", domain.RegisterRequest{Name: "n", LoginCode: "acme corp!", AdminName: "x", AdminUsername: "x", AdminPassword: "x"}, domain.ErrInvalidLoginCode},
		{"missing admin", domain.RegisterRequest{Name: "n", LoginCode: "acme", AdminUsername: "x", AdminPassword: "x"}, domain.ErrInvalidAdminName},
		{"missing username", domain.RegisterRequest{Name: "n", LoginCode: "acme", AdminName: "x", AdminPassword: "x"}, domain.ErrInvalidUsername},
		{"missing password", domain.RegisterRequest{Name: "n", LoginCode: "acme", AdminName: "x", AdminUsername: "x"}, domain.ErrInvalidPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestRegisterDuplicateLoginCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, "acme")

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Name:          "Other",
		LoginCode:     "ACME",
		AdminName:     "Bob",
		AdminUsername: "bob",
		AdminPassword: "pw",
	})
	assert.ErrorIs(t, err, domain.ErrLoginCodeTaken)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	var count int64
	require.NoError(t, f.db.Model(&domain.Organization{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveLoginCodeIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	result := f.register(t, "acme")

	org, err := f.svc.ResolveLoginCode(context.Background(), "  ACME ")
	require.NoError(t, err)
	assert.Equal(t, result.Organization.ID, org.ID)

	_, err = f.svc.ResolveLoginCode(context.Background(), "globex")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyRecovery(t *testing.T) {
	f := newFixture(t)
	result := f.register(t, "acme")

	org, err := f.svc.VerifyRecovery(context.Background(), "acme", result.RecoveryKey)
	require.NoError(t, err)
	assert.Equal(t, result.Organization.ID, org.ID)

	// Separators and case are not significant.
	_, err = f.svc.VerifyRecovery(context.Background(), "acme", " "+lowerNoDashes(result.RecoveryKey))
	require.NoError(t, err)

	_, err = f.svc.VerifyRecovery(context.Background(), "acme", "AAAA-BBBB")
	assert.ErrorIs(t, err, domain.ErrInvalidRecoveryKey)
	assert.ErrorIs(t, err, apperror.ErrAuth)

	_, err = f.svc.VerifyRecovery(context.Background(), "unknown", result.RecoveryKey)
	assert.ErrorIs(t, err, domain.ErrInvalidRecoveryKey)
}

func TestRecoverAdminChangesExactlyOnePassword(t *testing.T) {
	f := newFixture(t)
	result := f.register(t, "acme")
	orgID := result.Organization.ID

	f.clock.Advance(time.Minute)
	second := userdomain.User{
		ID:           snowflake.ID(42),
		OrgID:        orgID,
		Name:         "Second Admin",
		Username:     "second",
		UsernameKey:  "second",
		PasswordHash: mustHash(t, "second-secret"),
		Role:         userdomain.RoleAdmin,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.users.Insert(context.Background(), f.db, &second))

	_, err := f.svc.RecoverAdmin(context.Background(), domain.RecoverRequest{
		LoginCode:        "acme",
		RecoveryKey:      "WRONG",
		NewAdminPassword: "new-secret",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRecoveryKey)

	_, err = f.svc.RecoverAdmin(context.Background(), domain.RecoverRequest{
		LoginCode:   "acme",
		RecoveryKey: result.RecoveryKey,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)

	recovered, err := f.svc.RecoverAdmin(context.Background(), domain.RecoverRequest{
		LoginCode:        "acme",
		RecoveryKey:      result.RecoveryKey,
		NewAdminPassword: "new-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, result.Admin.ID, recovered.Admin.ID)
	assert.NotEqual(t, result.RecoveryKey, recovered.NewRecoveryKey)

	first, err := f.users.FindByID(context.Background(), f.db, orgID, result.Admin.ID)
	require.NoError(t, err)
	assert.True(t, credential.Verify("new-secret", first.PasswordHash))

	other, err := f.users.FindByID(context.Background(), f.db, orgID, second.ID)
	require.NoError(t, err)
	assert.True(t, credential.Verify("second-secret", other.PasswordHash))

	// The presented key is spent.
	_, err = f.svc.RecoverAdmin(context.Background(), domain.RecoverRequest{
		LoginCode:        "acme",
		RecoveryKey:      result.RecoveryKey,
		NewAdminPassword: "again",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRecoveryKey)

	_, err = f.svc.VerifyRecovery(context.Background(), "acme", recovered.NewRecoveryKey)
	assert.NoError(t, err)
}

func TestRotateRecoveryKey(t *testing.T) {
	f := newFixture(t)
	result := f.register(t, "acme")

	_, err := f.svc.RotateRecoveryKey(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	ctx := orgcontext.WithOrgID(context.Background(), result.Organization.ID)
	key, err := f.svc.RotateRecoveryKey(ctx)
	require.NoError(t, err)

	_, err = f.svc.VerifyRecovery(ctx, "acme", result.RecoveryKey)
	assert.ErrorIs(t, err, domain.ErrInvalidRecoveryKey)
	_, err = f.svc.VerifyRecovery(ctx, "acme", key)
	assert.NoError(t, err)
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	hash, err := credential.Hash(secret)
	require.NoError(t, err)
	return hash
}

func lowerNoDashes(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '-' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
