package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/credential"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/organization/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"github.com/smallbiznis/nexus360/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Users    userdomain.Repository
	Cycles   cycledomain.Service
	Clock    clock.Clock
	Locker   tenantlock.Locker
	Policy   *config.ReviewPolicyHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	users    userdomain.Repository
	cycles   cycledomain.Service
	clock    clock.Clock
	locker   tenantlock.Locker
	policy   *config.ReviewPolicyHolder
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		users:    p.Users,
		cycles:   p.Cycles,
		clock:    p.Clock,
		locker:   p.Locker,
		policy:   p.Policy,
		auditSvc: p.AuditSvc,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	loginCode, ok := normalizeLoginCode(req.LoginCode)
	if !ok {
		return nil, domain.ErrInvalidLoginCode
	}
	adminName := strings.TrimSpace(req.AdminName)
	if adminName == "" {
		return nil, domain.ErrInvalidAdminName
	}
	adminUsername := strings.TrimSpace(req.AdminUsername)
	if adminUsername == "" {
		return nil, domain.ErrInvalidUsername
	}
	if strings.TrimSpace(req.AdminPassword) == "" {
		return nil, domain.ErrInvalidPassword
	}

	passwordHash, err := credential.Hash(req.AdminPassword)
	if err != nil {
		return nil, err
	}
	recoveryKey, recoveryHash, err := newRecoveryKey()
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	now := s.clock.Now().UTC()
	org := domain.Organization{
		ID:              s.genID.Generate(),
		Name:            name,
		LoginCode:       loginCode,
		RecoveryKeyHash: recoveryHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	admin := userdomain.User{
		ID:           s.genID.Generate(),
		OrgID:        org.ID,
		Name:         adminName,
		Username:     adminUsername,
		UsernameKey:  userdomain.UsernameKey(adminUsername),
		PasswordHash: passwordHash,
		Email:        userdomain.UsernameKey(adminUsername) + "@" + policy.EmailDomain,
		Role:         userdomain.RoleAdmin,
		Department:   policy.DefaultDepartment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var cycle cycledomain.Cycle
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByLoginCode(ctx, loginCode)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrLoginCodeTaken
		}
		if err := repo.CreateOrganization(ctx, org); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrLoginCodeTaken
			}
			return err
		}
		if err := s.users.Insert(ctx, tx, &admin); err != nil {
			return err
		}
		cycle, err = s.cycles.CreateInTx(ctx, tx, org.ID, cycledomain.CreateCycleRequest{
			Name:    fmt.Sprintf("%d 360 Review", now.Year()),
			DueDate: now.AddDate(0, 0, policy.DefaultCycleDays),
			Status:  string(cycledomain.StatusActive),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	auditCtx := orgcontext.WithActor(orgcontext.WithOrgID(ctx, org.ID), orgcontext.Actor{
		UserID: admin.ID,
		Role:   string(admin.Role),
	})
	s.audit(auditCtx, "organization.register", org.ID, map[string]any{
		"login_code": org.LoginCode,
		"admin_id":   admin.ID.String(),
		"cycle_id":   cycle.ID.String(),
	})

	return &domain.RegisterResult{
		Organization: org,
		Admin:        admin,
		Cycle:        cycle,
		RecoveryKey:  recoveryKey,
	}, nil
}

func (s *service) ResolveLoginCode(ctx context.Context, loginCode string) (*domain.Organization, error) {
	code := strings.ToLower(strings.TrimSpace(loginCode))
	if code == "" {
		return nil, domain.ErrNotFound
	}
	org, err := s.repo.FindByLoginCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) VerifyRecovery(ctx context.Context, loginCode, recoveryKey string) (*domain.Organization, error) {
	key := credential.NormalizeRecoveryKey(recoveryKey)
	org, err := s.repo.FindByLoginCode(ctx, strings.ToLower(strings.TrimSpace(loginCode)))
	if err != nil {
		return nil, err
	}
	if org == nil {
		credential.VerifyDummy(key)
		return nil, domain.ErrInvalidRecoveryKey
	}
	if key == "" || !credential.Verify(key, org.RecoveryKeyHash) {
		return nil, domain.ErrInvalidRecoveryKey
	}
	return org, nil
}

func (s *service) RecoverAdmin(ctx context.Context, req domain.RecoverRequest) (*domain.RecoverResult, error) {
	if strings.TrimSpace(req.NewAdminPassword) == "" {
		return nil, domain.ErrInvalidPassword
	}

	org, err := s.VerifyRecovery(ctx, req.LoginCode, req.RecoveryKey)
	if err != nil {
		return nil, err
	}

	passwordHash, err := credential.Hash(req.NewAdminPassword)
	if err != nil {
		return nil, err
	}
	newKey, newHash, err := newRecoveryKey()
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var admin *userdomain.User
	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// The key must still be current: a concurrent recovery may have
		// rotated it after verification.
		current, err := repo.FindByID(ctx, org.ID)
		if err != nil {
			return err
		}
		if current == nil || current.RecoveryKeyHash != org.RecoveryKeyHash {
			return domain.ErrInvalidRecoveryKey
		}

		admin, err = s.users.FindFirstAdmin(ctx, tx, org.ID)
		if err != nil {
			return err
		}
		if admin == nil {
			return domain.ErrNoAdmin
		}
		if err := s.users.UpdatePassword(ctx, tx, org.ID, admin.ID, passwordHash); err != nil {
			return err
		}
		return repo.UpdateRecoveryKeyHash(ctx, org.ID, newHash, now)
	})
	if err != nil {
		return nil, err
	}
	org.RecoveryKeyHash = newHash
	org.UpdatedAt = now

	auditCtx := orgcontext.WithActor(orgcontext.WithOrgID(ctx, org.ID), orgcontext.Actor{
		UserID: admin.ID,
		Role:   string(admin.Role),
	})
	s.audit(auditCtx, "organization.recover", org.ID, map[string]any{
		"admin_id": admin.ID.String(),
	})

	return &domain.RecoverResult{
		Organization:   *org,
		Admin:          *admin,
		NewRecoveryKey: newKey,
	}, nil
}

func (s *service) RotateRecoveryKey(ctx context.Context) (string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return "", domain.ErrInvalidOrganization
	}

	newKey, newHash, err := newRecoveryKey()
	if err != nil {
		return "", err
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return "", err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.FindByID(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrNotFound
		}
		return repo.UpdateRecoveryKeyHash(ctx, orgID, newHash, s.clock.Now().UTC())
	})
	if err != nil {
		return "", err
	}

	s.audit(ctx, "organization.rotate_recovery_key", orgID, nil)
	return newKey, nil
}

func (s *service) GetCurrent(ctx context.Context) (*domain.Organization, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) audit(ctx context.Context, action string, orgID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := orgID.String()
	if err := s.auditSvc.AuditLog(ctx, action, "organization", &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// normalizeLoginCode lower-cases the code and requires slug shape.
func normalizeLoginCode(raw string) (string, bool) {
	code := strings.ToLower(strings.TrimSpace(raw))
	if code == "" || !slug.IsSlug(code) {
		return "", false
	}
	return code, true
}

func newRecoveryKey() (string, string, error) {
	key, err := credential.NewRecoveryKey()
	if err != nil {
		return "", "", err
	}
	hash, err := credential.Hash(credential.NormalizeRecoveryKey(key))
	if err != nil {
		return "", "", err
	}
	return key, hash, nil
}
