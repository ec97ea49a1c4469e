package domain

import (
	"context"

	"github.com/smallbiznis/nexus360/internal/apperror"
)

type ListAuditLogRequest struct {
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}

type Service interface {
	AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) ([]AuditLog, error)
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidAction       = apperror.Validation("invalid_action")
)
