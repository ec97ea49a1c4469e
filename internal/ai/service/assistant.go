package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/nexus360/internal/ai/domain"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	OpSummarize             = "summarize"
	OpSuggestRelationships  = "suggest_relationships"
	OpParseOrgChart         = "parse_org_chart"
	OpParseUserList         = "parse_user_list"
	OpGenerateQuestionnaire = "generate_questionnaire"
)

type Params struct {
	fx.In

	Collaborator domain.Collaborator
	Log          *zap.Logger
	Policy       *config.ReviewPolicyHolder
	Metrics      *metrics.ReviewMetrics `optional:"true"`
}

// Assistant is the only path from the engine to the collaborator. Every
// call is bounded by the policy timeout and the caller's context, and every
// failure collapses into the documented empty result.
type Assistant struct {
	collab  domain.Collaborator
	log     *zap.Logger
	policy  *config.ReviewPolicyHolder
	metrics *metrics.ReviewMetrics
}

func NewAssistant(p Params) *Assistant {
	return &Assistant{
		collab:  p.Collaborator,
		log:     p.Log.Named("ai.assistant"),
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

func FallbackSummary() domain.Summary {
	return domain.Summary{
		Summary:      domain.UnavailableSummary,
		Strengths:    []string{},
		Improvements: []string{},
	}
}

func (a *Assistant) Summarize(ctx context.Context, req domain.SummaryRequest) domain.Summary {
	out, ok := call(ctx, a, OpSummarize, func(ctx context.Context) (domain.Summary, error) {
		return a.collab.Summarize(ctx, req)
	})
	if !ok || strings.TrimSpace(out.Summary) == "" {
		return FallbackSummary()
	}
	if out.Strengths == nil {
		out.Strengths = []string{}
	}
	if out.Improvements == nil {
		out.Improvements = []string{}
	}
	return out
}

func (a *Assistant) SuggestRelationships(ctx context.Context, users []domain.Person, cycleID string) []domain.ProposedAssignment {
	out, ok := call(ctx, a, OpSuggestRelationships, func(ctx context.Context) ([]domain.ProposedAssignment, error) {
		return a.collab.SuggestRelationships(ctx, users, cycleID)
	})
	if !ok || out == nil {
		return []domain.ProposedAssignment{}
	}
	return out
}

func (a *Assistant) ParseOrgChart(ctx context.Context, req domain.OrgChartRequest) domain.OrgChart {
	out, ok := call(ctx, a, OpParseOrgChart, func(ctx context.Context) (domain.OrgChart, error) {
		return a.collab.ParseOrgChart(ctx, req)
	})
	if !ok {
		out = domain.OrgChart{}
	}
	if out.NewUsers == nil {
		out.NewUsers = []domain.ProposedUser{}
	}
	if out.Assignments == nil {
		out.Assignments = []domain.ProposedAssignment{}
	}
	return out
}

// ParseUserList drops nameless entries and coerces unknown roles to
// EMPLOYEE.
func (a *Assistant) ParseUserList(ctx context.Context, req domain.UserListRequest) []domain.ProposedUser {
	out, ok := call(ctx, a, OpParseUserList, func(ctx context.Context) ([]domain.ProposedUser, error) {
		return a.collab.ParseUserList(ctx, req)
	})
	users := []domain.ProposedUser{}
	if !ok {
		return users
	}
	for _, user := range out {
		if strings.TrimSpace(user.Name) == "" {
			continue
		}
		user.Role = normalizeRole(user.Role)
		users = append(users, user)
	}
	return users
}

func (a *Assistant) GenerateQuestionnaire(ctx context.Context) []domain.QuestionDraft {
	out, ok := call(ctx, a, OpGenerateQuestionnaire, func(ctx context.Context) ([]domain.QuestionDraft, error) {
		return a.collab.GenerateQuestionnaire(ctx)
	})
	drafts := []domain.QuestionDraft{}
	if !ok {
		return drafts
	}
	for _, draft := range out {
		if strings.TrimSpace(draft.Text) == "" {
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts
}

type outcome[T any] struct {
	value T
	err   error
}

// call runs fn in its own goroutine and stops waiting when the deadline or
// the caller's context fires. A call that never returns is abandoned.
func call[T any](ctx context.Context, a *Assistant, op string, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	if a == nil || a.collab == nil {
		return zero, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.policy.Get().AITimeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%w: panic: %v", domain.ErrRequestFailed, r)}
			}
		}()
		value, err := fn(ctx)
		done <- outcome[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			a.fallback(op, res.err)
			return zero, false
		}
		return res.value, true
	case <-ctx.Done():
		a.fallback(op, ctx.Err())
		return zero, false
	}
}

func (a *Assistant) fallback(op string, err error) {
	a.log.Warn("ai collaborator fallback", zap.String("operation", op), zap.Error(err))
	a.metrics.AIFallback(op)
}

func normalizeRole(raw string) string {
	switch role := strings.ToUpper(strings.TrimSpace(raw)); role {
	case "ADMIN", "MANAGER", "EMPLOYEE":
		return role
	default:
		return "EMPLOYEE"
	}
}
