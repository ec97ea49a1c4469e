package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Users    userdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	users    userdomain.Repository
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table and seeds the role
// capabilities on first start.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		users:    p.Users,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, orgID, userID snowflake.ID, object string, action string) error {
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	if userID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	user, err := s.users.FindByID(ctx, s.db, orgID, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidActor
	}

	subject := fmt.Sprintf("user:%s", userID)
	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName(user.Role), domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, orgID, userID, user.Role, object, action)
		return ErrForbidden
	}
	return nil
}

func roleName(role userdomain.Role) string {
	return fmt.Sprintf("role:%s", strings.ToLower(string(role)))
}

// ensureGrouping keeps exactly one role link per subject and domain so a
// role change takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
				return err
			}
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, orgID, userID snowflake.ID, role userdomain.Role, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	ctx = orgcontext.WithOrgID(ctx, orgID)
	ctx = orgcontext.WithActor(ctx, orgcontext.Actor{UserID: userID, Role: string(role)})
	targetID := "capability"
	if err := s.auditSvc.AuditLog(ctx, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   string(role),
	}); err != nil {
		s.log.Warn("failed to audit denied access", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Employee: own reviews and reports visible to them
		{"role:employee", ObjectQuestion, ActionView},
		{"role:employee", ObjectCycle, ActionView},
		{"role:employee", ObjectAssignment, ActionSubmit},
		{"role:employee", ObjectReport, ActionView},

		// Manager: employee rights plus the tenant directory
		{"role:manager", ObjectUser, ActionView},
		{"role:manager", ObjectQuestion, ActionView},
		{"role:manager", ObjectCycle, ActionView},
		{"role:manager", ObjectAssignment, ActionSubmit},
		{"role:manager", ObjectReport, ActionView},

		// Admin
		{"role:admin", ObjectOrganization, ActionView},
		{"role:admin", ObjectOrganization, ActionManage},
		{"role:admin", ObjectUser, ActionView},
		{"role:admin", ObjectUser, ActionManage},
		{"role:admin", ObjectQuestion, ActionView},
		{"role:admin", ObjectQuestion, ActionManage},
		{"role:admin", ObjectCycle, ActionView},
		{"role:admin", ObjectCycle, ActionManage},
		{"role:admin", ObjectAssignment, ActionView},
		{"role:admin", ObjectAssignment, ActionManage},
		{"role:admin", ObjectAssignment, ActionSubmit},
		{"role:admin", ObjectReport, ActionView},
		{"role:admin", ObjectReport, ActionShare},
		{"role:admin", ObjectExport, ActionView},
		{"role:admin", ObjectAuditLog, ActionView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
