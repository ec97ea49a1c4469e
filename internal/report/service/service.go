package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	aidomain "github.com/smallbiznis/nexus360/internal/ai/domain"
	aiservice "github.com/smallbiznis/nexus360/internal/ai/service"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/observability/metrics"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
	"github.com/smallbiznis/nexus360/internal/report/domain"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("nexus360/report")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Shares      domain.ShareRepository
	Assignments assignmentdomain.Repository
	Users       userdomain.Repository
	Questions   questiondomain.Repository
	Cycles      cycledomain.Service
	Assistant   *aiservice.Assistant
	Clock       clock.Clock
	Locker      tenantlock.Locker
	Metrics     *metrics.ReviewMetrics `optional:"true"`
	AuditSvc    auditdomain.Service    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	shares      domain.ShareRepository
	assignments assignmentdomain.Repository
	users       userdomain.Repository
	questions   questiondomain.Repository
	cycles      cycledomain.Service
	assistant   *aiservice.Assistant
	clock       clock.Clock
	locker      tenantlock.Locker
	metrics     *metrics.ReviewMetrics
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("report.service"),
		shares:      p.Shares,
		assignments: p.Assignments,
		users:       p.Users,
		questions:   p.Questions,
		cycles:      p.Cycles,
		assistant:   p.Assistant,
		clock:       p.Clock,
		locker:      p.Locker,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) BuildReport(ctx context.Context, subjectID snowflake.ID, cycleID *snowflake.ID) (domain.Report, error) {
	report, _, err := s.build(ctx, subjectID, cycleID)
	return report, err
}

func (s *Service) Summarize(ctx context.Context, subjectID snowflake.ID, cycleID *snowflake.ID) (domain.FullReport, error) {
	report, submitted, err := s.build(ctx, subjectID, cycleID)
	if err != nil {
		return domain.FullReport{}, err
	}

	req := aidomain.SummaryRequest{
		SubjectName: report.SubjectName,
		Categories:  make([]aidomain.CategoryScore, 0, len(report.CategoryScores)),
		Reviews:     make([]aidomain.ReviewText, 0, len(submitted)),
	}
	for _, c := range report.CategoryScores {
		req.Categories = append(req.Categories, aidomain.CategoryScore{
			Category:  c.Category,
			Score:     c.Score,
			SelfScore: c.SelfScore,
		})
	}
	for _, f := range report.Feedback {
		req.Reviews = append(req.Reviews, aidomain.ReviewText{
			Relationship: f.Relationship,
			Strengths:    f.Strengths,
			Improvements: f.Improvements,
		})
	}

	summary := s.assistant.Summarize(ctx, req)
	return domain.FullReport{
		Report: report,
		Summary: domain.Summary{
			Summary:      summary.Summary,
			Strengths:    summary.Strengths,
			Improvements: summary.Improvements,
		},
	}, nil
}

func (s *Service) build(ctx context.Context, subjectID snowflake.ID, cycleID *snowflake.ID) (domain.Report, []*assignmentdomain.Assignment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Report{}, nil, domain.ErrInvalidOrganization
	}

	ctx, span := tracer.Start(ctx, "report.build")
	defer span.End()

	subject, err := s.users.FindByID(ctx, s.db, orgID, subjectID)
	if err != nil {
		return domain.Report{}, nil, err
	}
	if subject == nil {
		return domain.Report{}, nil, domain.ErrSubjectNotFound
	}
	cycle, err := s.cycles.Resolve(ctx, s.db, orgID, cycleID)
	if err != nil {
		return domain.Report{}, nil, err
	}

	submitted, err := s.assignments.List(ctx, s.db, orgID, assignmentdomain.ListFilter{
		CycleID:   &cycle.ID,
		SubjectID: &subjectID,
		Status:    assignmentdomain.StatusSubmitted,
	})
	if err != nil {
		return domain.Report{}, nil, err
	}
	questions, err := s.questions.ListVisible(ctx, s.db, orgID)
	if err != nil {
		return domain.Report{}, nil, err
	}

	categories, reviews := aggregate(questions, submitted)
	span.SetAttributes(
		attribute.Int("submitted", len(submitted)),
		attribute.Int("reviews", reviews),
		attribute.Int("categories", len(categories)),
	)
	if reviews == 0 {
		s.metrics.ReportBuilt(metrics.OutcomeInsufficientData)
		return domain.Report{}, nil, domain.ErrInsufficientData
	}
	s.metrics.ReportBuilt(metrics.OutcomeReady)

	return domain.Report{
		SubjectID:      subject.ID,
		SubjectName:    subject.Name,
		CycleID:        cycle.ID,
		CategoryScores: categories,
		AverageScore:   averageScore(categories),
		ReviewCount:    reviews,
		Feedback:       feedbackOf(submitted),
	}, submitted, nil
}

func (s *Service) Share(ctx context.Context, subjectID snowflake.ID) error {
	return s.setShared(ctx, subjectID, true)
}

func (s *Service) Unshare(ctx context.Context, subjectID snowflake.ID) error {
	return s.setShared(ctx, subjectID, false)
}

func (s *Service) setShared(ctx context.Context, subjectID snowflake.ID, shared bool) error {
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
		subject, err := s.users.FindByID(ctx, tx, orgID, subjectID)
		if err != nil {
			return err
		}
		if subject == nil {
			return domain.ErrSubjectNotFound
		}
		if !shared {
			return s.shares.Delete(ctx, tx, orgID, subjectID)
		}
		share := domain.ReportShare{
			OrgID:     orgID,
			SubjectID: subjectID,
			CreatedAt: s.clock.Now().UTC(),
		}
		if actor, ok := orgcontext.ActorFromContext(ctx); ok {
			share.SharedBy = actor.UserID
		}
		return s.shares.Upsert(ctx, tx, &share)
	})
	if err != nil {
		return err
	}

	action := "report.unshare"
	if shared {
		action = "report.share"
	}
	s.audit(ctx, action, subjectID)
	return nil
}

// VisibleSubjects lists whose reports the viewer may open: everyone for an
// admin, otherwise the viewer, their direct reports and shared subjects.
func (s *Service) VisibleSubjects(ctx context.Context, viewerID snowflake.ID) ([]domain.Subject, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	viewer, err := s.users.FindByID(ctx, s.db, orgID, viewerID)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return nil, domain.ErrViewerNotFound
	}
	users, err := s.users.List(ctx, s.db, orgID, userdomain.ListFilter{})
	if err != nil {
		return nil, err
	}
	sharedIDs, err := s.shares.ListSubjects(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	shared := make(map[snowflake.ID]struct{}, len(sharedIDs))
	for _, id := range sharedIDs {
		shared[id] = struct{}{}
	}

	subjects := make([]domain.Subject, 0)
	for _, u := range users {
		if u == nil {
			continue
		}
		_, isShared := shared[u.ID]
		if !visibleTo(viewer, u, isShared) {
			continue
		}
		subjects = append(subjects, domain.Subject{
			ID:         u.ID,
			Name:       u.Name,
			Department: u.Department,
			Shared:     isShared,
		})
	}
	return subjects, nil
}

func (s *Service) CanView(ctx context.Context, viewerID, subjectID snowflake.ID) (bool, error) {
	subjects, err := s.VisibleSubjects(ctx, viewerID)
	if err != nil {
		return false, err
	}
	for _, subject := range subjects {
		if subject.ID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func visibleTo(viewer, subject *userdomain.User, shared bool) bool {
	switch {
	case viewer.Role == userdomain.RoleAdmin:
		return true
	case subject.ID == viewer.ID:
		return true
	case subject.ManagerID != nil && *subject.ManagerID == viewer.ID:
		return true
	default:
		return shared
	}
}

func (s *Service) audit(ctx context.Context, action string, subjectID snowflake.ID) {
	if s.auditSvc == nil {
		return
	}
	targetID := subjectID.String()
	if err := s.auditSvc.AuditLog(ctx, action, "report", &targetID, nil); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
