package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
)

// Subject is a user whose report a viewer may open.
type Subject struct {
	ID         snowflake.ID `json:"id"`
	Name       string       `json:"name"`
	Department string       `json:"department"`
	Shared     bool         `json:"shared"`
}

type Service interface {
	// BuildReport aggregates the subject's submitted reviews in the cycle,
	// or the active cycle when cycleID is nil.
	BuildReport(ctx context.Context, subjectID snowflake.ID, cycleID *snowflake.ID) (Report, error)
	Summarize(ctx context.Context, subjectID snowflake.ID, cycleID *snowflake.ID) (FullReport, error)
	Share(ctx context.Context, subjectID snowflake.ID) error
	Unshare(ctx context.Context, subjectID snowflake.ID) error
	VisibleSubjects(ctx context.Context, viewerID snowflake.ID) ([]Subject, error)
	CanView(ctx context.Context, viewerID, subjectID snowflake.ID) (bool, error)
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrSubjectNotFound     = apperror.NotFound("subject_not_found")
	ErrViewerNotFound      = apperror.NotFound("viewer_not_found")
	ErrInsufficientData    = apperror.State("insufficient_data")
)
