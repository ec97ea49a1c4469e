package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/nexus360/internal/ai/domain"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockCollaborator struct {
	mock.Mock
}

func (m *mockCollaborator) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Summary), args.Error(1)
}

func (m *mockCollaborator) SuggestRelationships(ctx context.Context, users []domain.Person, cycleID string) ([]domain.ProposedAssignment, error) {
	args := m.Called(ctx, users, cycleID)
	out, _ := args.Get(0).([]domain.ProposedAssignment)
	return out, args.Error(1)
}

func (m *mockCollaborator) ParseOrgChart(ctx context.Context, req domain.OrgChartRequest) (domain.OrgChart, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.OrgChart), args.Error(1)
}

func (m *mockCollaborator) ParseUserList(ctx context.Context, req domain.UserListRequest) ([]domain.ProposedUser, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).([]domain.ProposedUser)
	return out, args.Error(1)
}

func (m *mockCollaborator) GenerateQuestionnaire(ctx context.Context) ([]domain.QuestionDraft, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]domain.QuestionDraft)
	return out, args.Error(1)
}

// blockingCollaborator never answers until released.
type blockingCollaborator struct {
	mockCollaborator
	release chan struct{}
}

func (b *blockingCollaborator) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	<-b.release
	return domain.Summary{Summary: "late"}, nil
}

func newAssistant(t *testing.T, collab domain.Collaborator, timeout time.Duration) (*Assistant, *prometheus.Registry) {
	t.Helper()
	policy := config.DefaultReviewPolicy()
	policy.AITimeout = timeout
	reg := prometheus.NewRegistry()
	m, err := metrics.NewReviewMetrics(reg)
	require.NoError(t, err)
	return NewAssistant(Params{
		Collaborator: collab,
		Log:          zaptest.NewLogger(t),
		Policy:       config.StaticReviewPolicy(policy),
		Metrics:      m,
	}), reg
}

func fallbackCount(t *testing.T, reg *prometheus.Registry, op string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "nexus360_ai_fallbacks_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "operation" && label.GetValue() == op {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSummarizePassesThrough(t *testing.T) {
	collab := &mockCollaborator{}
	collab.On("Summarize", mock.Anything, mock.Anything).
		Return(domain.Summary{Summary: "Solid year", Strengths: []string{"focus"}}, nil)

	a, _ := newAssistant(t, collab, time.Second)
	out := a.Summarize(context.Background(), domain.SummaryRequest{SubjectName: "B"})

	assert.Equal(t, "Solid year", out.Summary)
	assert.Equal(t, []string{"focus"}, out.Strengths)
	assert.Equal(t, []string{}, out.Improvements)
	collab.AssertExpectations(t)
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	collab := &mockCollaborator{}
	collab.On("Summarize", mock.Anything, mock.Anything).
		Return(domain.Summary{}, domain.ErrRequestFailed)

	a, reg := newAssistant(t, collab, time.Second)
	out := a.Summarize(context.Background(), domain.SummaryRequest{})

	assert.Equal(t, FallbackSummary(), out)
	assert.Equal(t, domain.UnavailableSummary, out.Summary)
	assert.Equal(t, float64(1), fallbackCount(t, reg, OpSummarize))
}

func TestSummarizeTimesOutOnHungCollaborator(t *testing.T) {
	collab := &blockingCollaborator{release: make(chan struct{})}
	defer close(collab.release)

	a, _ := newAssistant(t, collab, 20*time.Millisecond)

	start := time.Now()
	out := a.Summarize(context.Background(), domain.SummaryRequest{})
	assert.Equal(t, domain.UnavailableSummary, out.Summary)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCallerCancellationReturnsFallback(t *testing.T) {
	collab := &blockingCollaborator{release: make(chan struct{})}
	defer close(collab.release)

	a, _ := newAssistant(t, collab, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := a.Summarize(ctx, domain.SummaryRequest{})
	assert.Equal(t, domain.UnavailableSummary, out.Summary)
}

func TestParseUserListNormalizesRoles(t *testing.T) {
	collab := &mockCollaborator{}
	collab.On("ParseUserList", mock.Anything, mock.Anything).Return([]domain.ProposedUser{
		{Name: "Ann", Role: "manager"},
		{Name: "Ben", Role: "CEO"},
		{Name: "  ", Role: "ADMIN"},
		{Name: "Cid"},
	}, nil)

	a, _ := newAssistant(t, collab, time.Second)
	users := a.ParseUserList(context.Background(), domain.UserListRequest{Text: "roster"})

	require.Len(t, users, 3)
	assert.Equal(t, "MANAGER", users[0].Role)
	assert.Equal(t, "EMPLOYEE", users[1].Role)
	assert.Equal(t, "EMPLOYEE", users[2].Role)
}

func TestEmptyFallbacks(t *testing.T) {
	collab := &mockCollaborator{}
	failure := errors.New("boom")
	collab.On("SuggestRelationships", mock.Anything, mock.Anything, mock.Anything).Return(nil, failure)
	collab.On("ParseOrgChart", mock.Anything, mock.Anything).Return(domain.OrgChart{}, failure)
	collab.On("ParseUserList", mock.Anything, mock.Anything).Return(nil, failure)
	collab.On("GenerateQuestionnaire", mock.Anything).Return(nil, failure)

	a, reg := newAssistant(t, collab, time.Second)
	ctx := context.Background()

	assert.Equal(t, []domain.ProposedAssignment{}, a.SuggestRelationships(ctx, nil, "1"))
	chart := a.ParseOrgChart(ctx, domain.OrgChartRequest{})
	assert.Empty(t, chart.NewUsers)
	assert.Empty(t, chart.Assignments)
	assert.NotNil(t, chart.NewUsers)
	assert.Equal(t, []domain.ProposedUser{}, a.ParseUserList(ctx, domain.UserListRequest{}))
	assert.Equal(t, []domain.QuestionDraft{}, a.GenerateQuestionnaire(ctx))

	assert.Equal(t, float64(1), fallbackCount(t, reg, OpGenerateQuestionnaire))
}

func TestPanickingCollaboratorIsContained(t *testing.T) {
	collab := &mockCollaborator{}
	collab.On("GenerateQuestionnaire", mock.Anything).Run(func(mock.Arguments) {
		panic("bad state")
	})

	a, _ := newAssistant(t, collab, time.Second)
	assert.Empty(t, a.GenerateQuestionnaire(context.Background()))
}
