package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
)

// GenerateRequest targets the active cycle when CycleID is nil.
type GenerateRequest struct {
	CycleID *snowflake.ID
}

type GenerateResult struct {
	CycleID     snowflake.ID         `json:"cycle_id"`
	Assignments []Assignment         `json:"assignments"`
	Counts      map[Relationship]int `json:"counts"`
}

type CreateAssignmentRequest struct {
	CycleID      *snowflake.ID
	ReviewerID   snowflake.ID
	SubjectID    snowflake.ID
	Relationship string
}

type ImportRequest struct {
	CycleID   *snowflake.ID
	NewUsers  []userdomain.Candidate
	Proposals []Proposal
}

// SkippedProposal records a proposal that failed validation and the error
// code that rejected it.
type SkippedProposal struct {
	Proposal Proposal `json:"proposal"`
	Reason   string   `json:"reason"`
}

type ImportResult struct {
	CycleID     snowflake.ID            `json:"cycle_id"`
	Users       []userdomain.User       `json:"users"`
	Credentials []userdomain.Credential `json:"credentials"`
	Assignments []Assignment            `json:"assignments"`
	Skipped     []SkippedProposal       `json:"skipped"`
}

type OrgChartRequest struct {
	CycleID  *snowflake.ID
	Text     string
	MimeType string
	Data     []byte
}

type SubmitRequest struct {
	Scores       Scores
	Comments     Comments
	Strengths    string
	Improvements string
}

type ListRequest struct {
	CycleID    *snowflake.ID
	ReviewerID *snowflake.ID
	SubjectID  *snowflake.ID
	Status     string
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	Create(ctx context.Context, req CreateAssignmentRequest) (Assignment, error)
	ImportProposals(ctx context.Context, req ImportRequest) (ImportResult, error)
	SuggestRelationships(ctx context.Context, cycleID *snowflake.ID) ([]Proposal, error)
	ImportOrgChart(ctx context.Context, req OrgChartRequest) (ImportResult, error)
	Remove(ctx context.Context, id snowflake.ID) error
	SaveDraft(ctx context.Context, id snowflake.ID, req SubmitRequest) (Assignment, error)
	Submit(ctx context.Context, id snowflake.ID, req SubmitRequest) (Assignment, error)
	GetByID(ctx context.Context, id snowflake.ID) (Assignment, error)
	List(ctx context.Context, req ListRequest) ([]Assignment, error)
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidRelationship = apperror.Validation("invalid_relationship")
	ErrInvalidReviewer     = apperror.Validation("invalid_reviewer")
	ErrInvalidSubject      = apperror.Validation("invalid_subject")
	ErrSelfMismatch        = apperror.Validation("self_relationship_mismatch")
	ErrInvalidScore        = apperror.Validation("invalid_score")
	ErrInvalidStatus       = apperror.Validation("invalid_status")
	ErrAlreadySubmitted    = apperror.State("already_submitted")
	ErrCycleClosed         = apperror.State("cycle_closed")
	ErrNotFound            = apperror.NotFound("assignment_not_found")
)
