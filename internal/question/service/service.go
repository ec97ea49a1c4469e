package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	aiservice "github.com/smallbiznis/nexus360/internal/ai/service"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/question/domain"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clock     clock.Clock
	Locker    tenantlock.Locker
	Assistant *aiservice.Assistant
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	locker    tenantlock.Locker
	assistant *aiservice.Assistant
	auditSvc  auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("question.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		locker:    p.Locker,
		assistant: p.Assistant,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context) ([]domain.Question, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	items, err := s.repo.ListVisible(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	return derefQuestions(items), nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateQuestionRequest) (domain.Question, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Question{}, domain.ErrInvalidOrganization
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.Question{}, domain.ErrInvalidText
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Question{}, err
	}
	defer unlock()

	var question domain.Question
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		position, err := s.repo.MaxVisiblePosition(ctx, tx, orgID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		owner := orgID
		question = domain.Question{
			ID:        s.genID.Generate(),
			OrgID:     &owner,
			Category:  categoryOrDefault(req.Category),
			Text:      text,
			Position:  position + 1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.repo.Insert(ctx, tx, &question)
	})
	if err != nil {
		return domain.Question{}, err
	}

	s.audit(ctx, "question.create", question.ID.String(), map[string]any{"category": question.Category})
	return question, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateQuestionRequest) (domain.Question, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Question{}, domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Question{}, err
	}
	defer unlock()

	var updated domain.Question
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		question, err := s.ownedQuestion(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if req.Text != nil {
			text := strings.TrimSpace(*req.Text)
			if text == "" {
				return domain.ErrInvalidText
			}
			question.Text = text
		}
		if req.Category != nil {
			question.Category = categoryOrDefault(*req.Category)
		}
		question.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, question); err != nil {
			return err
		}
		updated = *question
		return nil
	})
	if err != nil {
		return domain.Question{}, err
	}

	s.audit(ctx, "question.update", updated.ID.String(), nil)
	return updated, nil
}

// Delete leaves submitted scores keyed by this question untouched.
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

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedQuestion(ctx, tx, orgID, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, orgID, id)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "question.delete", id.String(), nil)
	return nil
}

func (s *Service) GenerateQuestionnaire(ctx context.Context) ([]domain.Question, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	drafts := s.assistant.GenerateQuestionnaire(ctx)
	if len(drafts) == 0 {
		s.log.Info("questionnaire generation returned no drafts", zap.String("org_id", orgID.String()))
		return s.List(ctx)
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var questions []domain.Question
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteOwned(ctx, tx, orgID); err != nil {
			return err
		}
		position, err := s.repo.MaxVisiblePosition(ctx, tx, orgID)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		rows := make([]*domain.Question, 0, len(drafts))
		for _, draft := range drafts {
			position++
			owner := orgID
			rows = append(rows, &domain.Question{
				ID:        s.genID.Generate(),
				OrgID:     &owner,
				Category:  categoryOrDefault(draft.Category),
				Text:      strings.TrimSpace(draft.Text),
				Position:  position,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err := s.repo.Insert(ctx, tx, rows...); err != nil {
			return err
		}

		visible, err := s.repo.ListVisible(ctx, tx, orgID)
		if err != nil {
			return err
		}
		questions = derefQuestions(visible)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "question.generate", "", map[string]any{"count": len(drafts)})
	return questions, nil
}

func (s *Service) ownedQuestion(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Question, error) {
	question, err := s.repo.FindVisible(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if question == nil {
		return nil, domain.ErrNotFound
	}
	if question.Shared() {
		return nil, domain.ErrReadOnly
	}
	return question, nil
}

func (s *Service) audit(ctx context.Context, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var target *string
	if targetID != "" {
		target = &targetID
	}
	_ = s.auditSvc.AuditLog(ctx, action, "question", target, metadata)
}

func categoryOrDefault(category string) string {
	if trimmed := strings.TrimSpace(category); trimmed != "" {
		return trimmed
	}
	return domain.DefaultCategory
}

func derefQuestions(items []*domain.Question) []domain.Question {
	questions := make([]domain.Question, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		questions = append(questions, *item)
	}
	return questions
}
