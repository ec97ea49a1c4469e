package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aidomain "github.com/smallbiznis/nexus360/internal/ai/domain"
	aiservice "github.com/smallbiznis/nexus360/internal/ai/service"
	"github.com/smallbiznis/nexus360/internal/apperror"
	"github.com/smallbiznis/nexus360/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/observability/metrics"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeSubmitted        = "submitted"
	outcomeDraft            = "draft"
	outcomeAlreadySubmitted = "already_submitted"
	outcomeCycleClosed      = "cycle_closed"
	outcomeInvalid          = "invalid"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Users     userdomain.Repository
	Directory userdomain.Service
	Cycles    cycledomain.Service
	Assistant *aiservice.Assistant
	Clock     clock.Clock
	Locker    tenantlock.Locker
	Policy    *config.ReviewPolicyHolder
	Metrics   *metrics.ReviewMetrics `optional:"true"`
	AuditSvc  auditdomain.Service    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	users     userdomain.Repository
	directory userdomain.Service
	cycles    cycledomain.Service
	assistant *aiservice.Assistant
	clock     clock.Clock
	locker    tenantlock.Locker
	policy    *config.ReviewPolicyHolder
	metrics   *metrics.ReviewMetrics
	auditSvc  auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("assignment.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		users:     p.Users,
		directory: p.Directory,
		cycles:    p.Cycles,
		assistant: p.Assistant,
		clock:     p.Clock,
		locker:    p.Locker,
		policy:    p.Policy,
		metrics:   p.Metrics,
		auditSvc:  p.AuditSvc,
	}
}

// Generate replaces the cycle's assignments with a freshly derived matrix.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.GenerateResult{}, domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer unlock()

	cycle, err := s.cycles.Resolve(ctx, s.db, orgID, req.CycleID)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	if cycle.Status == cycledomain.StatusClosed {
		return domain.GenerateResult{}, domain.ErrCycleClosed
	}
	users, err := s.users.List(ctx, s.db, orgID, userdomain.ListFilter{})
	if err != nil {
		return domain.GenerateResult{}, err
	}

	pairs := DeriveMatrix(ctx, derefUsers(users), s.policy.Get().MinPeerReviewers)
	now := s.clock.Now().UTC()
	rows := make([]*domain.Assignment, 0, len(pairs))
	counts := map[domain.Relationship]int{}
	for _, rel := range domain.Relationships {
		counts[rel] = 0
	}
	for _, pair := range pairs {
		rows = append(rows, s.newAssignment(orgID, cycle.ID, pair, domain.SourceGenerated, now))
		counts[pair.Relationship]++
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteByCycle(ctx, tx, orgID, cycle.ID); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, rows...)
	})
	if err != nil {
		return domain.GenerateResult{}, err
	}

	for rel, n := range counts {
		s.metrics.AssignmentsGenerated(string(rel), n)
	}
	s.audit(ctx, "assignment.generate", cycle.ID.String(), "cycle", map[string]any{
		"total":         len(rows),
		"self":          counts[domain.RelationshipSelf],
		"manager":       counts[domain.RelationshipManager],
		"direct_report": counts[domain.RelationshipDirectReport],
		"peer":          counts[domain.RelationshipPeer],
	})
	s.log.Info("assignment matrix generated",
		zap.String("org_id", orgID.String()),
		zap.String("cycle_id", cycle.ID.String()),
		zap.Int("assignments", len(rows)),
	)

	return domain.GenerateResult{
		CycleID:     cycle.ID,
		Assignments: derefAssignments(rows),
		Counts:      counts,
	}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateAssignmentRequest) (domain.Assignment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Assignment{}, domain.ErrInvalidOrganization
	}
	rel, ok := domain.ParseRelationship(req.Relationship)
	if !ok {
		return domain.Assignment{}, domain.ErrInvalidRelationship
	}
	if err := checkShape(req.ReviewerID, req.SubjectID, rel); err != nil {
		return domain.Assignment{}, err
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer unlock()

	var assignment *domain.Assignment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.openCycle(ctx, tx, orgID, req.CycleID)
		if err != nil {
			return err
		}
		reviewer, err := s.users.FindByID(ctx, tx, orgID, req.ReviewerID)
		if err != nil {
			return err
		}
		if reviewer == nil {
			return domain.ErrInvalidReviewer
		}
		subject, err := s.users.FindByID(ctx, tx, orgID, req.SubjectID)
		if err != nil {
			return err
		}
		if subject == nil {
			return domain.ErrInvalidSubject
		}

		assignment = s.newAssignment(orgID, cycle.ID, domain.Pair{
			ReviewerID:   reviewer.ID,
			SubjectID:    subject.ID,
			Relationship: rel,
		}, domain.SourceManual, s.clock.Now().UTC())
		return s.repo.Insert(ctx, tx, assignment)
	})
	if err != nil {
		return domain.Assignment{}, err
	}

	s.audit(ctx, "assignment.create", assignment.ID.String(), "assignment", map[string]any{
		"reviewer_id":  assignment.ReviewerID.String(),
		"subject_id":   assignment.SubjectID.String(),
		"relationship": string(assignment.Relationship),
	})
	return *assignment, nil
}

// ImportProposals merges new users and appends every valid proposal.
// Invalid proposals are reported in Skipped and do not abort the batch.
func (s *Service) ImportProposals(ctx context.Context, req domain.ImportRequest) (domain.ImportResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ImportResult{}, domain.ErrInvalidOrganization
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.ImportResult{}, err
	}
	defer unlock()

	result := domain.ImportResult{
		Users:       []userdomain.User{},
		Credentials: []userdomain.Credential{},
		Assignments: []domain.Assignment{},
		Skipped:     []domain.SkippedProposal{},
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.openCycle(ctx, tx, orgID, req.CycleID)
		if err != nil {
			return err
		}
		result.CycleID = cycle.ID

		imported, err := s.directory.ImportInTx(ctx, tx, orgID, req.NewUsers)
		if err != nil {
			return err
		}
		result.Users = imported.Users
		result.Credentials = imported.Credentials

		members, err := s.users.List(ctx, tx, orgID, userdomain.ListFilter{})
		if err != nil {
			return err
		}
		known := make(map[snowflake.ID]struct{}, len(members))
		for _, m := range members {
			known[m.ID] = struct{}{}
		}

		now := s.clock.Now().UTC()
		rows := make([]*domain.Assignment, 0, len(req.Proposals))
		for _, proposal := range req.Proposals {
			pair, err := resolveProposal(proposal, imported.Refs, known)
			if err != nil {
				result.Skipped = append(result.Skipped, domain.SkippedProposal{
					Proposal: proposal,
					Reason:   apperror.CodeOf(err),
				})
				continue
			}
			rows = append(rows, s.newAssignment(orgID, cycle.ID, pair, domain.SourceImported, now))
		}
		if err := s.repo.Insert(ctx, tx, rows...); err != nil {
			return err
		}
		result.Assignments = derefAssignments(rows)
		return nil
	})
	if err != nil {
		return domain.ImportResult{}, err
	}

	if len(result.Skipped) > 0 {
		s.log.Warn("skipped invalid proposals",
			zap.String("org_id", orgID.String()),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
	s.audit(ctx, "assignment.import", result.CycleID.String(), "cycle", map[string]any{
		"users":       len(result.Users),
		"assignments": len(result.Assignments),
		"skipped":     len(result.Skipped),
	})
	return result, nil
}

// SuggestRelationships asks the collaborator for a plan without storing it.
func (s *Service) SuggestRelationships(ctx context.Context, cycleID *snowflake.ID) ([]domain.Proposal, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	cycle, err := s.cycles.Resolve(ctx, s.db, orgID, cycleID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, s.db, orgID, userdomain.ListFilter{})
	if err != nil {
		return nil, err
	}

	suggested := s.assistant.SuggestRelationships(ctx, toPeople(users), cycle.ID.String())
	proposals := make([]domain.Proposal, 0, len(suggested))
	for _, item := range suggested {
		proposals = append(proposals, domain.Proposal{
			ReviewerRef:  item.ReviewerID,
			SubjectRef:   item.SubjectID,
			Relationship: item.Relationship,
		})
	}
	return proposals, nil
}

// ImportOrgChart parses an org chart with the collaborator and imports the
// result. The collaborator runs before the tenant lock is taken.
func (s *Service) ImportOrgChart(ctx context.Context, req domain.OrgChartRequest) (domain.ImportResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ImportResult{}, domain.ErrInvalidOrganization
	}
	users, err := s.users.List(ctx, s.db, orgID, userdomain.ListFilter{})
	if err != nil {
		return domain.ImportResult{}, err
	}

	chartReq := aidomain.OrgChartRequest{
		Text:          req.Text,
		ExistingUsers: toPeople(users),
	}
	if req.CycleID != nil {
		chartReq.CycleID = req.CycleID.String()
	}
	if len(req.Data) > 0 {
		chartReq.File = &aidomain.File{MimeType: req.MimeType, Data: req.Data}
	}
	chart := s.assistant.ParseOrgChart(ctx, chartReq)

	candidates := make([]userdomain.Candidate, 0, len(chart.NewUsers))
	for _, u := range chart.NewUsers {
		candidates = append(candidates, userdomain.Candidate{
			Ref:        u.ID,
			Name:       u.Name,
			Email:      u.Email,
			Role:       u.Role,
			Department: u.Department,
			ManagerRef: u.ManagerID,
		})
	}
	proposals := make([]domain.Proposal, 0, len(chart.Assignments))
	for _, a := range chart.Assignments {
		proposals = append(proposals, domain.Proposal{
			ReviewerRef:  a.ReviewerID,
			SubjectRef:   a.SubjectID,
			Relationship: a.Relationship,
		})
	}

	return s.ImportProposals(ctx, domain.ImportRequest{
		CycleID:   req.CycleID,
		NewUsers:  candidates,
		Proposals: proposals,
	})
}

// Remove deletes one assignment and nothing else.
func (s *Service) Remove(ctx context.Context, id snowflake.ID) error {
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
		n, err := s.repo.Delete(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "assignment.delete", id.String(), "assignment", nil)
	return nil
}

func (s *Service) SaveDraft(ctx context.Context, id snowflake.ID, req domain.SubmitRequest) (domain.Assignment, error) {
	return s.saveAnswers(ctx, id, req, domain.StatusDraft)
}

func (s *Service) Submit(ctx context.Context, id snowflake.ID, req domain.SubmitRequest) (domain.Assignment, error) {
	return s.saveAnswers(ctx, id, req, domain.StatusSubmitted)
}

func (s *Service) saveAnswers(ctx context.Context, id snowflake.ID, req domain.SubmitRequest, status domain.Status) (domain.Assignment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Assignment{}, domain.ErrInvalidOrganization
	}
	for _, score := range req.Scores {
		if score > 5 {
			s.metrics.Submission(outcomeInvalid)
			return domain.Assignment{}, domain.ErrInvalidScore
		}
	}

	unlock, err := s.locker.Lock(ctx, orgID)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer unlock()

	var saved domain.Assignment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assignment, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if assignment == nil {
			return domain.ErrNotFound
		}
		if assignment.Status == domain.StatusSubmitted {
			return domain.ErrAlreadySubmitted
		}
		cycleID := assignment.CycleID
		cycle, err := s.cycles.Resolve(ctx, tx, orgID, &cycleID)
		if err != nil {
			return err
		}
		if cycle.Status == cycledomain.StatusClosed {
			return domain.ErrCycleClosed
		}

		now := s.clock.Now().UTC()
		assignment.Scores = datatypes.NewJSONType(copyScores(req.Scores))
		assignment.Comments = datatypes.NewJSONType(copyComments(req.Comments))
		assignment.FeedbackStrengths = strings.TrimSpace(req.Strengths)
		assignment.FeedbackImprovements = strings.TrimSpace(req.Improvements)
		assignment.UpdatedAt = now
		var submittedAt *time.Time
		if status == domain.StatusSubmitted {
			submittedAt = &now
		}

		n, err := s.repo.SaveAnswers(ctx, tx, assignment, status, submittedAt)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrAlreadySubmitted
		}
		assignment.Status = status
		assignment.SubmittedAt = submittedAt
		saved = *assignment
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadySubmitted):
			s.metrics.Submission(outcomeAlreadySubmitted)
		case errors.Is(err, domain.ErrCycleClosed):
			s.metrics.Submission(outcomeCycleClosed)
		}
		return domain.Assignment{}, err
	}

	if status == domain.StatusSubmitted {
		s.metrics.Submission(outcomeSubmitted)
		s.audit(ctx, "assignment.submit", saved.ID.String(), "assignment", map[string]any{
			"answers": len(saved.Scores.Data()),
		})
	} else {
		s.metrics.Submission(outcomeDraft)
	}
	return saved, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Assignment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Assignment{}, domain.ErrInvalidOrganization
	}
	assignment, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	if assignment == nil {
		return domain.Assignment{}, domain.ErrNotFound
	}
	return *assignment, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Assignment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	filter := domain.ListFilter{
		CycleID:    req.CycleID,
		ReviewerID: req.ReviewerID,
		SubjectID:  req.SubjectID,
	}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return nil, domain.ErrInvalidStatus
		}
		filter.Status = status
	}
	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}
	return derefAssignments(items), nil
}

// openCycle resolves the target cycle and rejects closed ones.
func (s *Service) openCycle(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, id *snowflake.ID) (cycledomain.Cycle, error) {
	cycle, err := s.cycles.Resolve(ctx, tx, orgID, id)
	if err != nil {
		return cycledomain.Cycle{}, err
	}
	if cycle.Status == cycledomain.StatusClosed {
		return cycledomain.Cycle{}, domain.ErrCycleClosed
	}
	return cycle, nil
}

func (s *Service) newAssignment(orgID, cycleID snowflake.ID, pair domain.Pair, source domain.Source, now time.Time) *domain.Assignment {
	return &domain.Assignment{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		CycleID:      cycleID,
		ReviewerID:   pair.ReviewerID,
		SubjectID:    pair.SubjectID,
		Relationship: pair.Relationship,
		Status:       domain.StatusPending,
		Source:       source,
		Scores:       datatypes.NewJSONType(domain.Scores{}),
		Comments:     datatypes.NewJSONType(domain.Comments{}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Service) audit(ctx context.Context, action, targetID, targetType string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// checkShape enforces SELF iff reviewer equals subject.
func checkShape(reviewerID, subjectID snowflake.ID, rel domain.Relationship) error {
	if rel == domain.RelationshipSelf && reviewerID != subjectID {
		return domain.ErrSelfMismatch
	}
	if rel != domain.RelationshipSelf && reviewerID == subjectID {
		return domain.ErrSelfMismatch
	}
	return nil
}

func resolveProposal(p domain.Proposal, refs map[string]snowflake.ID, known map[snowflake.ID]struct{}) (domain.Pair, error) {
	rel, ok := domain.ParseRelationship(p.Relationship)
	if !ok {
		return domain.Pair{}, domain.ErrInvalidRelationship
	}
	reviewer, ok := resolveRef(p.ReviewerRef, refs, known)
	if !ok {
		return domain.Pair{}, domain.ErrInvalidReviewer
	}
	subject, ok := resolveRef(p.SubjectRef, refs, known)
	if !ok {
		return domain.Pair{}, domain.ErrInvalidSubject
	}
	if err := checkShape(reviewer, subject, rel); err != nil {
		return domain.Pair{}, err
	}
	return domain.Pair{ReviewerID: reviewer, SubjectID: subject, Relationship: rel}, nil
}

// resolveRef looks a ref up among the batch stubs first, then as the
// decimal id of an existing user.
func resolveRef(ref string, refs map[string]snowflake.ID, known map[snowflake.ID]struct{}) (snowflake.ID, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, false
	}
	if id, ok := refs[ref]; ok {
		return id, true
	}
	parsed, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, false
	}
	id := snowflake.ID(parsed)
	if _, ok := known[id]; !ok {
		return 0, false
	}
	return id, true
}

func toPeople(users []*userdomain.User) []aidomain.Person {
	people := make([]aidomain.Person, 0, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		person := aidomain.Person{
			ID:         u.ID.String(),
			Name:       u.Name,
			Role:       string(u.Role),
			Department: u.Department,
		}
		if u.ManagerID != nil {
			person.ManagerID = u.ManagerID.String()
		}
		people = append(people, person)
	}
	return people
}

func copyScores(in domain.Scores) domain.Scores {
	out := make(domain.Scores, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyComments(in domain.Comments) domain.Comments {
	out := make(domain.Comments, len(in))
	for k, v := range in {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out[k] = trimmed
		}
	}
	return out
}

func derefUsers(items []*userdomain.User) []userdomain.User {
	users := make([]userdomain.User, 0, len(items))
	for _, item := range items {
		if item != nil {
			users = append(users, *item)
		}
	}
	return users
}

func derefAssignments(items []*domain.Assignment) []domain.Assignment {
	assignments := make([]domain.Assignment, 0, len(items))
	for _, item := range items {
		if item != nil {
			assignments = append(assignments, *item)
		}
	}
	return assignments
}
