package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
)

const (
	ObjectOrganization = "organization"
	ObjectUser         = "user"
	ObjectQuestion     = "question"
	ObjectCycle        = "cycle"
	ObjectAssignment   = "assignment"
	ObjectReport       = "report"
	ObjectExport       = "export"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionView   = "view"
	ActionManage = "manage"
	// ActionSubmit covers drafting and submitting answers of an assignment.
	ActionSubmit = "submit"
	ActionShare  = "share"
)

type Service interface {
	// Authorize checks the capability of a user inside an organization. The
	// user's current role is read from storage on every call.
	Authorize(ctx context.Context, orgID, userID snowflake.ID, object string, action string) error
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidActor        = apperror.Auth("invalid_actor")
	ErrInvalidObject       = apperror.Validation("invalid_object")
	ErrInvalidAction       = apperror.Validation("invalid_action")
	ErrForbidden           = apperror.Forbidden("forbidden")
)
