package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
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
	Clock    clock.Clock
	Locker   tenantlock.Locker
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	locker   tenantlock.Locker
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("cycle.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		locker:   p.Locker,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCycleRequest) (domain.Cycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Cycle{}, domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Cycle{}, err
	}
	defer unlock()

	var cycle domain.Cycle
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.CreateInTx(ctx, tx, orgID, req)
		if err != nil {
			return err
		}
		cycle = created
		return nil
	})
	if err != nil {
		return domain.Cycle{}, err
	}

	s.audit(ctx, "cycle.create", cycle, nil)
	return cycle, nil
}

func (s *Service) CreateInTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req domain.CreateCycleRequest) (domain.Cycle, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Cycle{}, domain.ErrInvalidName
	}
	if req.DueDate.IsZero() {
		return domain.Cycle{}, domain.ErrInvalidDueDate
	}
	status := domain.StatusDraft
	if strings.TrimSpace(req.Status) != "" {
		parsed, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.Cycle{}, domain.ErrInvalidStatus
		}
		status = parsed
	}

	now := s.clock.Now().UTC()
	cycle := domain.Cycle{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Status:    status,
		DueDate:   req.DueDate.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, &cycle); err != nil {
		return domain.Cycle{}, err
	}
	return cycle, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Cycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Cycle{}, domain.ErrInvalidOrganization
	}
	return s.Resolve(ctx, s.db, orgID, &id)
}

func (s *Service) List(ctx context.Context) ([]domain.Cycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	cycles := make([]domain.Cycle, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		cycles = append(cycles, *item)
	}
	return cycles, nil
}

func (s *Service) Active(ctx context.Context) (domain.Cycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Cycle{}, domain.ErrInvalidOrganization
	}
	return s.Resolve(ctx, s.db, orgID, nil)
}

func (s *Service) Resolve(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id *snowflake.ID) (domain.Cycle, error) {
	if id == nil || *id == 0 {
		cycle, err := s.repo.FindActive(ctx, db, orgID)
		if err != nil {
			return domain.Cycle{}, err
		}
		if cycle == nil {
			return domain.Cycle{}, domain.ErrNoActiveCycle
		}
		return *cycle, nil
	}

	cycle, err := s.repo.FindByID(ctx, db, orgID, *id)
	if err != nil {
		return domain.Cycle{}, err
	}
	if cycle == nil {
		return domain.Cycle{}, domain.ErrNotFound
	}
	return *cycle, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (domain.Cycle, error) {
	return s.transition(ctx, id, domain.StatusActive)
}

func (s *Service) Close(ctx context.Context, id snowflake.ID) (domain.Cycle, error) {
	return s.transition(ctx, id, domain.StatusClosed)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, to domain.Status) (domain.Cycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Cycle{}, domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Cycle{}, err
	}
	defer unlock()

	var cycle domain.Cycle
	var from domain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.Resolve(ctx, tx, orgID, &id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, to) {
			return domain.ErrInvalidTransition
		}
		from = current.Status
		current.Status = to
		current.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.UpdateStatus(ctx, tx, orgID, id, to, current.UpdatedAt); err != nil {
			return err
		}
		cycle = current
		return nil
	})
	if err != nil {
		return domain.Cycle{}, err
	}

	s.log.Info("cycle transitioned",
		zap.String("cycle_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.audit(ctx, "cycle."+strings.ToLower(string(to)), cycle, map[string]any{"from": string(from)})
	return cycle, nil
}

func (s *Service) audit(ctx context.Context, action string, cycle domain.Cycle, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := cycle.ID.String()
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["name"] = cycle.Name
	metadata["status"] = string(cycle.Status)
	_ = s.auditSvc.AuditLog(ctx, action, "cycle", &targetID, metadata)
}
