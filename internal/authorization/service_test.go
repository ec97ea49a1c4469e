package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	auditrepository "github.com/smallbiznis/nexus360/internal/audit/repository"
	auditservice "github.com/smallbiznis/nexus360/internal/audit/service"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	userrepository "github.com/smallbiznis/nexus360/internal/user/repository"
	"github.com/smallbiznis/nexus360/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testOrg = snowflake.ID(900)

type authzFixture struct {
	svc   Service
	db    *gorm.DB
	users userdomain.Repository
	audit auditdomain.Service
}

func newAuthzFixture(t *testing.T) *authzFixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&userdomain.User{}, &auditdomain.AuditLog{}))

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})

	users := userrepository.Provide()
	return &authzFixture{
		svc:   NewService(Params{DB: conn, Log: log, Enforcer: enforcer, Users: users, AuditSvc: audit}),
		db:    conn,
		users: users,
		audit: audit,
	}
}

func (f *authzFixture) addUser(t *testing.T, id snowflake.ID, role userdomain.Role) *userdomain.User {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	u := &userdomain.User{
		ID:           id,
		OrgID:        testOrg,
		Name:         id.String(),
		Username:     id.String(),
		UsernameKey:  id.String(),
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.users.Insert(context.Background(), f.db, u))
	return u
}

func TestAuthorizeByRole(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()
	admin := f.addUser(t, 1, userdomain.RoleAdmin)
	manager := f.addUser(t, 2, userdomain.RoleManager)
	employee := f.addUser(t, 3, userdomain.RoleEmployee)

	cases := []struct {
		name    string
		user    snowflake.ID
		object  string
		action  string
		allowed bool
	}{
		{"admin manages users", admin.ID, ObjectUser, ActionManage, true},
		{"admin shares reports", admin.ID, ObjectReport, ActionShare, true},
		{"admin reads audit log", admin.ID, ObjectAuditLog, ActionView, true},
		{"manager lists users", manager.ID, ObjectUser, ActionView, true},
		{"manager cannot manage users", manager.ID, ObjectUser, ActionManage, false},
		{"employee submits reviews", employee.ID, ObjectAssignment, ActionSubmit, true},
		{"employee cannot list all assignments", employee.ID, ObjectAssignment, ActionView, false},
		{"employee cannot export", employee.ID, ObjectExport, ActionView, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Authorize(ctx, testOrg, tc.user, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()
	u := f.addUser(t, 5, userdomain.RoleEmployee)

	require.ErrorIs(t, f.svc.Authorize(ctx, testOrg, u.ID, ObjectCycle, ActionManage), ErrForbidden)

	u.Role = userdomain.RoleAdmin
	require.NoError(t, f.users.Update(ctx, f.db, u))
	assert.NoError(t, f.svc.Authorize(ctx, testOrg, u.ID, ObjectCycle, ActionManage))

	u.Role = userdomain.RoleEmployee
	require.NoError(t, f.users.Update(ctx, f.db, u))
	assert.ErrorIs(t, f.svc.Authorize(ctx, testOrg, u.ID, ObjectCycle, ActionManage), ErrForbidden)
}

func TestAuthorizeRejectsUnknownActor(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Authorize(ctx, testOrg, 404, ObjectQuestion, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, f.svc.Authorize(ctx, 0, 1, ObjectQuestion, ActionView), ErrInvalidOrganization)

	// a user of another tenant is unknown here
	f.addUser(t, 6, userdomain.RoleAdmin)
	assert.ErrorIs(t, f.svc.Authorize(ctx, testOrg+1, 6, ObjectQuestion, ActionView), ErrInvalidActor)
}

func TestDeniedAccessIsAudited(t *testing.T) {
	f := newAuthzFixture(t)
	u := f.addUser(t, 7, userdomain.RoleEmployee)

	require.ErrorIs(t, f.svc.Authorize(context.Background(), testOrg, u.ID, ObjectExport, ActionView), ErrForbidden)

	logs, err := f.audit.List(orgcontext.WithOrgID(context.Background(), testOrg), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "authorization.denied", logs[0].Action)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, u.ID, *logs[0].ActorID)
	assert.Equal(t, ObjectExport, logs[0].Metadata["object"])
}

func TestSeedIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	var first int64
	require.NoError(t, conn.Table("casbin_rule").Count(&first).Error)

	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	var second int64
	require.NoError(t, conn.Table("casbin_rule").Count(&second).Error)

	assert.Equal(t, first, second)
	assert.NotZero(t, first)
}
