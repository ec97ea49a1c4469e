package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	aiclient "github.com/smallbiznis/nexus360/internal/ai/client"
	aidomain "github.com/smallbiznis/nexus360/internal/ai/domain"
	aiservice "github.com/smallbiznis/nexus360/internal/ai/service"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	assignmentrepository "github.com/smallbiznis/nexus360/internal/assignment/repository"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	cyclerepository "github.com/smallbiznis/nexus360/internal/cycle/repository"
	cycleservice "github.com/smallbiznis/nexus360/internal/cycle/service"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
	questionrepository "github.com/smallbiznis/nexus360/internal/question/repository"
	"github.com/smallbiznis/nexus360/internal/report/domain"
	"github.com/smallbiznis/nexus360/internal/report/repository"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	userrepository "github.com/smallbiznis/nexus360/internal/user/repository"
	"github.com/smallbiznis/nexus360/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	qFair     = snowflake.ID(11)
	qPressure = snowflake.ID(12)
	qStrategy = snowflake.ID(13)
)

type summaryCollaborator struct {
	aiclient.Noop
	got *aidomain.SummaryRequest
}

func (c summaryCollaborator) Summarize(_ context.Context, req aidomain.SummaryRequest) (aidomain.Summary, error) {
	*c.got = req
	return aidomain.Summary{Summary: "Consistent performer", Strengths: []string{"Fair"}}, nil
}

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	ctx    context.Context
	orgID  snowflake.ID
	cycle  cycledomain.Cycle
	users  userdomain.Repository
	nextID snowflake.ID
}

func newFixture(t *testing.T, collab aidomain.Collaborator) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&userdomain.User{},
		&cycledomain.Cycle{},
		&assignmentdomain.Assignment{},
		&questiondomain.Question{},
		&domain.ReportShare{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	locker := tenantlock.NewLocal()
	cycles := cycleservice.New(cycleservice.Params{
		DB:     conn,
		Log:    log,
		GenID:  node,
		Repo:   cyclerepository.Provide(),
		Clock:  fake,
		Locker: locker,
	})
	users := userrepository.Provide()

	svc := New(Params{
		DB:          conn,
		Log:         log,
		Shares:      repository.ProvideShares(),
		Assignments: assignmentrepository.Provide(),
		Users:       users,
		Questions:   questionrepository.Provide(),
		Cycles:      cycles,
		Assistant: aiservice.NewAssistant(aiservice.Params{
			Collaborator: collab,
			Log:          log,
			Policy:       config.StaticReviewPolicy(config.DefaultReviewPolicy()),
		}),
		Clock:  fake,
		Locker: locker,
	})

	orgID := snowflake.ID(3003)
	ctx := orgcontext.WithOrgID(context.Background(), orgID)
	cycle, err := cycles.Create(ctx, cycledomain.CreateCycleRequest{
		Name:    "Mid year",
		DueDate: fake.Now().AddDate(0, 1, 0),
		Status:  string(cycledomain.StatusActive),
	})
	require.NoError(t, err)

	now := fake.Now()
	questions := []*questiondomain.Question{
		{ID: qFair, Category: "Integrity", Text: "Treats people fairly", Position: 1, CreatedAt: now, UpdatedAt: now},
		{ID: qPressure, Category: "Integrity", Text: "Holds principles", Position: 2, CreatedAt: now, UpdatedAt: now},
		{ID: qStrategy, Category: "Strategy", Text: "Explains goals", Position: 3, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, questionrepository.Provide().Insert(ctx, conn, questions...))

	return &fixture{svc: svc, db: conn, ctx: ctx, orgID: orgID, cycle: cycle, users: users, nextID: 500}
}

func (f *fixture) addUser(t *testing.T, name string, role userdomain.Role, manager *userdomain.User) userdomain.User {
	t.Helper()
	f.nextID++
	u := userdomain.User{
		ID:           f.nextID,
		OrgID:        f.orgID,
		Name:         name,
		Username:     name,
		UsernameKey:  userdomain.UsernameKey(name),
		PasswordHash: "unused",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if manager != nil {
		id := manager.ID
		u.ManagerID = &id
	}
	require.NoError(t, f.users.Insert(f.ctx, f.db, &u))
	return u
}

func (f *fixture) review(t *testing.T, reviewer, subject snowflake.ID, rel assignmentdomain.Relationship, status assignmentdomain.Status, scores assignmentdomain.Scores, strengths string) {
	t.Helper()
	f.nextID++
	now := time.Now().UTC()
	a := assignmentdomain.Assignment{
		ID:                f.nextID,
		OrgID:             f.orgID,
		CycleID:           f.cycle.ID,
		ReviewerID:        reviewer,
		SubjectID:         subject,
		Relationship:      rel,
		Status:            status,
		Source:            assignmentdomain.SourceGenerated,
		Scores:            datatypes.NewJSONType(scores),
		Comments:          datatypes.NewJSONType(assignmentdomain.Comments{}),
		FeedbackStrengths: strengths,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if status == assignmentdomain.StatusSubmitted {
		a.SubmittedAt = &now
	}
	require.NoError(t, assignmentrepository.Provide().Insert(f.ctx, f.db, &a))
}

func TestBuildReportAggregatesCategories(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	boss := f.addUser(t, "Boss", userdomain.RoleManager, nil)
	subject := f.addUser(t, "Sam", userdomain.RoleEmployee, &boss)
	peer := f.addUser(t, "Pat", userdomain.RoleEmployee, nil)

	f.review(t, subject.ID, subject.ID, assignmentdomain.RelationshipSelf, assignmentdomain.StatusSubmitted,
		assignmentdomain.Scores{qFair: 3, qStrategy: 2}, "")
	f.review(t, boss.ID, subject.ID, assignmentdomain.RelationshipManager, assignmentdomain.StatusSubmitted,
		assignmentdomain.Scores{qFair: 4, qStrategy: 0, 999: 5}, "Reliable")
	f.review(t, peer.ID, subject.ID, assignmentdomain.RelationshipPeer, assignmentdomain.StatusSubmitted,
		assignmentdomain.Scores{qFair: 5}, "")
	// Not submitted, ignored.
	f.review(t, boss.ID, subject.ID, assignmentdomain.RelationshipPeer, assignmentdomain.StatusDraft,
		assignmentdomain.Scores{qFair: 1}, "")

	report, err := f.svc.BuildReport(f.ctx, subject.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sam", report.SubjectName)
	assert.Equal(t, f.cycle.ID, report.CycleID)
	assert.Equal(t, 2, report.ReviewCount)
	assert.Equal(t, []domain.CategoryScore{
		{Category: "Integrity", Score: 4.5, SelfScore: 3, FullMark: 5},
		{Category: "Strategy", Score: 0, SelfScore: 2, FullMark: 5},
	}, report.CategoryScores)
	assert.Equal(t, 4.5, report.AverageScore)
	require.Len(t, report.Feedback, 1)
	assert.Equal(t, "MANAGER", report.Feedback[0].Relationship)
	assert.Equal(t, "Reliable", report.Feedback[0].Strengths)
}

func TestBuildReportRoundsToOneDecimal(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	subject := f.addUser(t, "Sam", userdomain.RoleEmployee, nil)
	for i, score := range []int{4, 4, 5} {
		reviewer := f.addUser(t, "Peer"+string(rune('A'+i)), userdomain.RoleEmployee, nil)
		f.review(t, reviewer.ID, subject.ID, assignmentdomain.RelationshipPeer, assignmentdomain.StatusSubmitted,
			assignmentdomain.Scores{qPressure: score}, "")
	}

	report, err := f.svc.BuildReport(f.ctx, subject.ID, &f.cycle.ID)
	require.NoError(t, err)
	require.Len(t, report.CategoryScores, 1)
	assert.Equal(t, 4.3, report.CategoryScores[0].Score)
}

func TestBuildReportInsufficientData(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	subject := f.addUser(t, "Sam", userdomain.RoleEmployee, nil)

	_, err := f.svc.BuildReport(f.ctx, subject.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	f.review(t, subject.ID, subject.ID, assignmentdomain.RelationshipSelf, assignmentdomain.StatusSubmitted,
		assignmentdomain.Scores{qFair: 5}, "")
	_, err = f.svc.BuildReport(f.ctx, subject.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = f.svc.BuildReport(f.ctx, 424242, nil)
	assert.ErrorIs(t, err, domain.ErrSubjectNotFound)
}

func TestSummarizeFallsBack(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	subject := f.addUser(t, "Sam", userdomain.RoleEmployee, nil)
	peer := f.addUser(t, "Pat", userdomain.RoleEmployee, nil)
	f.review(t, peer.ID, subject.ID, assignmentdomain.RelationshipPeer, assignmentdomain.StatusSubmitted,
		assignmentdomain.Scores{qFair: 4}, "Kind")

	full, err := f.svc.Summarize(f.ctx, subject.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, aidomain.UnavailableSummary, full.Summary.Summary)
	assert.Empty(t, full.Summary.Strengths)
	assert.NotNil(t, full.Summary.Strengths)
	assert.Equal(t, 4.0, full.Report.AverageScore)
}

func TestSummarizePassesSubmittedReviews(t *testing.T) {
	var got aidomain.SummaryRequest
	f := newFixture(t, summaryCollaborator{got: &got})
	subject := f.addUser(t, "Sam", userdomain.RoleEmployee, nil)
	peer := f.addUser(t, "Pat", userdomain.RoleEmployee, nil)
	f.review(t, peer.ID, subject.ID, assignmentdomain.RelationshipPeer, assignmentdomain.StatusSubmitted,
		assignmentdomain.Scores{qFair: 4}, "Kind")

	full, err := f.svc.Summarize(f.ctx, subject.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Consistent performer", full.Summary.Summary)
	assert.Equal(t, "Sam", got.SubjectName)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, "Kind", got.Reviews[0].Strengths)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, 4.0, got.Categories[0].Score)
}

func TestVisibilityAndSharing(t *testing.T) {
	f := newFixture(t, aiclient.Noop{})
	admin := f.addUser(t, "Ada", userdomain.RoleAdmin, nil)
	manager := f.addUser(t, "Max", userdomain.RoleManager, nil)
	report := f.addUser(t, "Rae", userdomain.RoleEmployee, &manager)
	other := f.addUser(t, "Oli", userdomain.RoleEmployee, nil)

	ids := func(subjects []domain.Subject) []snowflake.ID {
		out := make([]snowflake.ID, 0, len(subjects))
		for _, s := range subjects {
			out = append(out, s.ID)
		}
		return out
	}

	all, err := f.svc.VisibleSubjects(f.ctx, admin.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := f.svc.VisibleSubjects(f.ctx, manager.ID)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{manager.ID, report.ID}, ids(mine))

	ok, err := f.svc.CanView(f.ctx, report.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	actorCtx := orgcontext.WithActor(f.ctx, orgcontext.Actor{UserID: admin.ID, Role: "ADMIN"})
	require.NoError(t, f.svc.Share(actorCtx, other.ID))
	require.NoError(t, f.svc.Share(actorCtx, other.ID))

	ok, err = f.svc.CanView(f.ctx, report.ID, other.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	visible, err := f.svc.VisibleSubjects(f.ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{report.ID, other.ID}, ids(visible))
	assert.True(t, visible[1].Shared)

	require.NoError(t, f.svc.Unshare(actorCtx, other.ID))
	ok, err = f.svc.CanView(f.ctx, report.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Share(actorCtx, 99999), domain.ErrSubjectNotFound)
	_, err = f.svc.VisibleSubjects(f.ctx, 99999)
	assert.ErrorIs(t, err, domain.ErrViewerNotFound)
}
