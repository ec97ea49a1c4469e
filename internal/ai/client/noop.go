package client

import (
	"context"

	"github.com/smallbiznis/nexus360/internal/ai/domain"
)

// Noop is used when no AI backend is configured.
type Noop struct{}

func (Noop) Summarize(context.Context, domain.SummaryRequest) (domain.Summary, error) {
	return domain.Summary{}, domain.ErrUnavailable
}

func (Noop) SuggestRelationships(context.Context, []domain.Person, string) ([]domain.ProposedAssignment, error) {
	return nil, domain.ErrUnavailable
}

func (Noop) ParseOrgChart(context.Context, domain.OrgChartRequest) (domain.OrgChart, error) {
	return domain.OrgChart{}, domain.ErrUnavailable
}

func (Noop) ParseUserList(context.Context, domain.UserListRequest) ([]domain.ProposedUser, error) {
	return nil, domain.ErrUnavailable
}

func (Noop) GenerateQuestionnaire(context.Context) ([]domain.QuestionDraft, error) {
	return nil, domain.ErrUnavailable
}
