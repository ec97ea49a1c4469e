package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	aidomain "github.com/smallbiznis/nexus360/internal/ai/domain"
	aiservice "github.com/smallbiznis/nexus360/internal/ai/service"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/credential"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	reportdomain "github.com/smallbiznis/nexus360/internal/report/domain"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	"github.com/smallbiznis/nexus360/internal/user/domain"
	"github.com/smallbiznis/nexus360/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Assignments assignmentdomain.Repository
	Shares      reportdomain.ShareRepository
	Clock       clock.Clock
	Locker      tenantlock.Locker
	Policy      *config.ReviewPolicyHolder
	Assistant   *aiservice.Assistant `optional:"true"`
	AuditSvc    auditdomain.Service  `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	assignments assignmentdomain.Repository
	shares      reportdomain.ShareRepository
	clock       clock.Clock
	locker      tenantlock.Locker
	policy      *config.ReviewPolicyHolder
	assistant   *aiservice.Assistant
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("user.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		assignments: p.Assignments,
		shares:      p.Shares,
		clock:       p.Clock,
		locker:      p.Locker,
		policy:      p.Policy,
		assistant:   p.Assistant,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.User{}, domain.ErrInvalidOrganization
	}

	user, err := s.repo.FindByUsernameKey(ctx, s.db, orgID, domain.UsernameKey(username))
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		credential.VerifyDummy(password)
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if !credential.Verify(password, user.PasswordHash) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return *user, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (domain.CreateUserResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.CreateUserResult{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CreateUserResult{}, domain.ErrInvalidName
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return domain.CreateUserResult{}, domain.ErrInvalidUsername
	}
	role := domain.RoleEmployee
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := domain.ParseRole(req.Role)
		if !ok {
			return domain.CreateUserResult{}, domain.ErrInvalidRole
		}
		role = parsed
	}

	policy := s.policy.Get()
	password, issued, err := s.resolvePassword(req.Password, policy)
	if err != nil {
		return domain.CreateUserResult{}, err
	}
	hash, err := credential.Hash(password)
	if err != nil {
		return domain.CreateUserResult{}, err
	}

	department := strings.TrimSpace(req.Department)
	if department == "" {
		department = policy.DefaultDepartment
	}

	now := s.clock.Now().UTC()
	user := domain.User{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		Name:         name,
		Username:     username,
		UsernameKey:  domain.UsernameKey(username),
		PasswordHash: hash,
		Email:        defaultEmail(req.Email, domain.UsernameKey(username), policy.EmailDomain),
		Role:         role,
		Department:   department,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.CreateUserResult{}, err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByUsernameKey(ctx, tx, orgID, user.UsernameKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrUsernameTaken
		}
		if req.ManagerID != nil {
			if err := s.validateManager(ctx, tx, orgID, user.ID, *req.ManagerID); err != nil {
				return err
			}
			managerID := *req.ManagerID
			user.ManagerID = &managerID
		}
		if err := s.repo.Insert(ctx, tx, &user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUsernameTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.CreateUserResult{}, err
	}

	s.audit(ctx, "user.create", user.ID, map[string]any{
		"username": user.Username,
		"role":     string(user.Role),
	})

	result := domain.CreateUserResult{User: user}
	if issued {
		result.Credential = &domain.Credential{
			UserID:     user.ID,
			Name:       user.Name,
			Username:   user.Username,
			Password:   password,
			Role:       user.Role,
			Department: user.Department,
		}
	}
	return result, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateUserRequest) (domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.User{}, domain.ErrInvalidOrganization
	}

	var newHash string
	if req.Password != nil {
		if strings.TrimSpace(*req.Password) == "" {
			return domain.User{}, domain.ErrInvalidPassword
		}
		hash, err := credential.Hash(*req.Password)
		if err != nil {
			return domain.User{}, err
		}
		newHash = hash
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.User{}, err
	}
	defer unlock()

	var updated domain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			user.Name = name
		}
		if req.Username != nil {
			username := strings.TrimSpace(*req.Username)
			if username == "" {
				return domain.ErrInvalidUsername
			}
			key := domain.UsernameKey(username)
			if key != user.UsernameKey {
				existing, err := s.repo.FindByUsernameKey(ctx, tx, orgID, key)
				if err != nil {
					return err
				}
				if existing != nil && existing.ID != user.ID {
					return domain.ErrUsernameTaken
				}
			}
			user.Username = username
			user.UsernameKey = key
		}
		if req.Email != nil {
			user.Email = strings.TrimSpace(*req.Email)
		}
		if req.Role != nil {
			role, ok := domain.ParseRole(*req.Role)
			if !ok {
				return domain.ErrInvalidRole
			}
			user.Role = role
		}
		if req.Department != nil {
			department := strings.TrimSpace(*req.Department)
			if department == "" {
				department = s.policy.Get().DefaultDepartment
			}
			user.Department = department
		}
		switch {
		case req.ClearManager:
			user.ManagerID = nil
		case req.ManagerID != nil:
			if err := s.validateManager(ctx, tx, orgID, user.ID, *req.ManagerID); err != nil {
				return err
			}
			managerID := *req.ManagerID
			user.ManagerID = &managerID
		}

		user.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUsernameTaken
			}
			return err
		}
		if newHash != "" {
			if err := s.repo.UpdatePassword(ctx, tx, orgID, user.ID, newHash); err != nil {
				return err
			}
			user.PasswordHash = newHash
		}
		updated = *user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.audit(ctx, "user.update", updated.ID, map[string]any{
		"username":         updated.Username,
		"password_changed": newHash != "",
	})
	return updated, nil
}

// Delete removes the user together with every assignment that references
// it, its report share and the manager links pointing at it.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return err
	}
	defer unlock()

	var deleted domain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}
		if err := s.assignments.DeleteByUser(ctx, tx, orgID, id); err != nil {
			return err
		}
		if err := s.shares.Delete(ctx, tx, orgID, id); err != nil {
			return err
		}
		if err := s.repo.ClearManager(ctx, tx, orgID, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, orgID, id); err != nil {
			return err
		}
		deleted = *user
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "user.delete", deleted.ID, map[string]any{
		"username": deleted.Username,
	})
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.User{}, domain.ErrInvalidOrganization
	}

	user, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUserRequest) ([]domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{Department: req.Department}
	if strings.TrimSpace(req.Role) != "" {
		role, ok := domain.ParseRole(req.Role)
		if !ok {
			return nil, domain.ErrInvalidRole
		}
		filter.Role = role
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}
	return derefUsers(items), nil
}

func (s *Service) ListDirectReports(ctx context.Context, managerID snowflake.ID) ([]domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	items, err := s.repo.List(ctx, s.db, orgID, domain.ListFilter{ManagerID: &managerID})
	if err != nil {
		return nil, err
	}
	return derefUsers(items), nil
}

func (s *Service) ImportBatch(ctx context.Context, candidates []domain.Candidate) (domain.ImportResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ImportResult{}, domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.ImportResult{}, err
	}
	defer unlock()

	var result domain.ImportResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		imported, err := s.ImportInTx(ctx, tx, orgID, candidates)
		if err != nil {
			return err
		}
		result = imported
		return nil
	})
	if err != nil {
		return domain.ImportResult{}, err
	}

	s.auditOrg(ctx, "user.import", "user", nil, map[string]any{
		"count": len(result.Users),
	})
	return result, nil
}

func (s *Service) ImportUserList(ctx context.Context, req domain.ImportUserListRequest) (domain.ImportResult, error) {
	if _, ok := orgcontext.OrgIDFromContext(ctx); !ok {
		return domain.ImportResult{}, domain.ErrInvalidOrganization
	}
	empty := domain.ImportResult{Users: []domain.User{}, Credentials: []domain.Credential{}}
	if s.assistant == nil {
		return empty, nil
	}

	listReq := aidomain.UserListRequest{Text: strings.TrimSpace(req.Text)}
	if len(req.Data) > 0 {
		listReq.File = &aidomain.File{MimeType: req.MimeType, Data: req.Data}
	}
	// parsed outside the tenant lock
	proposed := s.assistant.ParseUserList(ctx, listReq)

	candidates := make([]domain.Candidate, 0, len(proposed))
	for _, p := range proposed {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Ref:        p.ID,
			Name:       p.Name,
			Email:      p.Email,
			Role:       p.Role,
			Department: p.Department,
			ManagerRef: p.ManagerID,
		})
	}
	if len(candidates) == 0 {
		return empty, nil
	}
	return s.ImportBatch(ctx, candidates)
}

func (s *Service) ImportInTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, candidates []domain.Candidate) (domain.ImportResult, error) {
	result := domain.ImportResult{
		Users:       []domain.User{},
		Credentials: []domain.Credential{},
		Refs:        map[string]snowflake.ID{},
	}
	if len(candidates) == 0 {
		return result, nil
	}

	policy := s.policy.Get()
	existing, err := s.repo.ListUsernameKeys(ctx, tx, orgID)
	if err != nil {
		return domain.ImportResult{}, err
	}
	alloc := newUsernameAllocator(existing)
	now := s.clock.Now().UTC()

	users := make([]*domain.User, 0, len(candidates))
	for _, candidate := range candidates {
		name := strings.TrimSpace(candidate.Name)
		if name == "" {
			name = strings.TrimSpace(candidate.Username)
		}
		if name == "" {
			return domain.ImportResult{}, domain.ErrInvalidName
		}

		base := DeriveUsername(name)
		if strings.TrimSpace(candidate.Username) != "" {
			base = DeriveUsername(candidate.Username)
		}
		username := alloc.allocate(base)

		role, ok := domain.ParseRole(candidate.Role)
		if !ok {
			role = domain.RoleEmployee
		}
		department := strings.TrimSpace(candidate.Department)
		if department == "" {
			department = policy.ImportedDepartment
		}
		password, _, err := s.resolvePassword(candidate.Password, policy)
		if err != nil {
			return domain.ImportResult{}, err
		}
		hash, err := credential.Hash(password)
		if err != nil {
			return domain.ImportResult{}, err
		}

		user := &domain.User{
			ID:           s.genID.Generate(),
			OrgID:        orgID,
			Name:         name,
			Username:     username,
			UsernameKey:  domain.UsernameKey(username),
			PasswordHash: hash,
			Email:        defaultEmail(candidate.Email, username, policy.EmailDomain),
			Role:         role,
			Department:   department,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Insert(ctx, tx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ImportResult{}, domain.ErrUsernameTaken
			}
			return domain.ImportResult{}, err
		}
		if ref := strings.TrimSpace(candidate.Ref); ref != "" {
			if _, dup := result.Refs[ref]; !dup {
				result.Refs[ref] = user.ID
			}
		}

		users = append(users, user)
		result.Credentials = append(result.Credentials, domain.Credential{
			UserID:     user.ID,
			Name:       user.Name,
			Username:   user.Username,
			Password:   password,
			Role:       user.Role,
			Department: user.Department,
		})
	}

	// Manager refs are weak: unresolvable or cyclic links are dropped.
	for i, candidate := range candidates {
		ref := strings.TrimSpace(candidate.ManagerRef)
		if ref == "" {
			continue
		}
		user := users[i]
		managerID, ok := result.Refs[ref]
		if !ok {
			parsed, err := strconv.ParseInt(ref, 10, 64)
			if err != nil {
				s.log.Warn("dropping unresolved manager ref", zap.String("username", user.Username), zap.String("manager_ref", ref))
				continue
			}
			managerID = snowflake.ID(parsed)
		}
		if err := s.validateManager(ctx, tx, orgID, user.ID, managerID); err != nil {
			if errors.Is(err, domain.ErrInvalidManager) || errors.Is(err, domain.ErrManagerCycle) {
				s.log.Warn("dropping manager ref", zap.String("username", user.Username), zap.String("manager_ref", ref), zap.Error(err))
				continue
			}
			return domain.ImportResult{}, err
		}
		user.ManagerID = &managerID
		if err := s.repo.Update(ctx, tx, user); err != nil {
			return domain.ImportResult{}, err
		}
	}

	result.Users = derefUsers(users)
	return result, nil
}

func (s *Service) ResetPassword(ctx context.Context, id snowflake.ID) (domain.Credential, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Credential{}, domain.ErrInvalidOrganization
	}

	password, err := credential.RandomPassword(s.policy.Get().PasswordLength)
	if err != nil {
		return domain.Credential{}, err
	}
	hash, err := credential.Hash(password)
	if err != nil {
		return domain.Credential{}, err
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Credential{}, err
	}
	defer unlock()

	var cred domain.Credential
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}
		if err := s.repo.UpdatePassword(ctx, tx, orgID, id, hash); err != nil {
			return err
		}
		cred = credentialFor(user, password)
		return nil
	})
	if err != nil {
		return domain.Credential{}, err
	}

	s.audit(ctx, "user.reset_password", id, nil)
	return cred, nil
}

// BatchResetPasswords issues a fresh password to every user except
// excludeUserID. Either every password changes or none does.
func (s *Service) BatchResetPasswords(ctx context.Context, excludeUserID snowflake.ID) ([]domain.Credential, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	length := s.policy.Get().PasswordLength

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	creds := []domain.Credential{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := s.repo.List(ctx, tx, orgID, domain.ListFilter{})
		if err != nil {
			return err
		}
		for _, user := range users {
			if user == nil || user.ID == excludeUserID {
				continue
			}
			password, err := credential.RandomPassword(length)
			if err != nil {
				return err
			}
			hash, err := credential.Hash(password)
			if err != nil {
				return err
			}
			if err := s.repo.UpdatePassword(ctx, tx, orgID, user.ID, hash); err != nil {
				return err
			}
			creds = append(creds, credentialFor(user, password))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditOrg(ctx, "user.batch_reset_passwords", "user", nil, map[string]any{
		"count":   len(creds),
		"exclude": excludeUserID.String(),
	})
	return creds, nil
}

func (s *Service) ChangePassword(ctx context.Context, id snowflake.ID, oldPassword, newPassword string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	if strings.TrimSpace(newPassword) == "" {
		return domain.ErrInvalidPassword
	}
	hash, err := credential.Hash(newPassword)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}
		if !credential.Verify(oldPassword, user.PasswordHash) {
			return domain.ErrInvalidCredentials
		}
		return s.repo.UpdatePassword(ctx, tx, orgID, id, hash)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "user.change_password", id, nil)
	return nil
}

// validateManager rejects managers outside the tenant, self-management and
// links that would close a cycle in the manager chain.
func (s *Service) validateManager(ctx context.Context, tx *gorm.DB, orgID, userID, managerID snowflake.ID) error {
	if managerID == 0 || managerID == userID {
		return domain.ErrInvalidManager
	}
	manager, err := s.repo.FindByID(ctx, tx, orgID, managerID)
	if err != nil {
		return err
	}
	if manager == nil {
		return domain.ErrInvalidManager
	}

	visited := map[snowflake.ID]struct{}{managerID: {}}
	current := manager
	for current.ManagerID != nil {
		next := *current.ManagerID
		if next == userID {
			return domain.ErrManagerCycle
		}
		if _, seen := visited[next]; seen {
			return nil
		}
		visited[next] = struct{}{}
		current, err = s.repo.FindByID(ctx, tx, orgID, next)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
	}
	return nil
}

func (s *Service) resolvePassword(raw string, policy config.ReviewPolicy) (string, bool, error) {
	if strings.TrimSpace(raw) != "" {
		return raw, false, nil
	}
	if policy.DefaultPassword != "" {
		return policy.DefaultPassword, true, nil
	}
	password, err := credential.RandomPassword(policy.PasswordLength)
	if err != nil {
		return "", false, err
	}
	return password, true, nil
}

func (s *Service) audit(ctx context.Context, action string, userID snowflake.ID, metadata map[string]any) {
	targetID := userID.String()
	s.auditOrg(ctx, action, "user", &targetID, metadata)
}

func (s *Service) auditOrg(ctx context.Context, action, targetType string, targetID *string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, action, targetType, targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func credentialFor(user *domain.User, password string) domain.Credential {
	return domain.Credential{
		UserID:     user.ID,
		Name:       user.Name,
		Username:   user.Username,
		Password:   password,
		Role:       user.Role,
		Department: user.Department,
	}
}

func defaultEmail(email, username, domainName string) string {
	if trimmed := strings.TrimSpace(email); trimmed != "" {
		return trimmed
	}
	return username + "@" + domainName
}

func derefUsers(items []*domain.User) []domain.User {
	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		users = append(users, *item)
	}
	return users
}
