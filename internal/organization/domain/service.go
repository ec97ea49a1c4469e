package domain

import (
	"context"

	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/apperror"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	ResolveLoginCode(ctx context.Context, loginCode string) (*Organization, error)
	VerifyRecovery(ctx context.Context, loginCode, recoveryKey string) (*Organization, error)
	RecoverAdmin(ctx context.Context, req RecoverRequest) (*RecoverResult, error)
	RotateRecoveryKey(ctx context.Context) (string, error)
	GetCurrent(ctx context.Context) (*Organization, error)
}

type RegisterRequest struct {
	Name          string
	LoginCode     string
	AdminName     string
	AdminUsername string
	AdminPassword string
}

// RegisterResult carries the recovery key in plaintext. It is never shown
// again.
type RegisterResult struct {
	Organization Organization      `json:"organization"`
	Admin        userdomain.User   `json:"admin"`
	Cycle        cycledomain.Cycle `json:"cycle"`
	RecoveryKey  string            `json:"recovery_key"`
}

type RecoverRequest struct {
	LoginCode        string
	RecoveryKey      string
	NewAdminPassword string
}

type RecoverResult struct {
	Organization   Organization    `json:"organization"`
	Admin          userdomain.User `json:"admin"`
	NewRecoveryKey string          `json:"recovery_key"`
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidName         = apperror.Validation("invalid_name")
	ErrInvalidLoginCode    = apperror.Validation("invalid_login_code")
	ErrInvalidAdminName    = apperror.Validation("invalid_admin_name")
	ErrInvalidUsername     = apperror.Validation("invalid_admin_username")
	ErrInvalidPassword     = apperror.Validation("invalid_admin_password")
	ErrLoginCodeTaken      = apperror.Conflict("login_code_taken")
	ErrInvalidRecoveryKey  = apperror.Auth("invalid_recovery_key")
	ErrNotFound            = apperror.NotFound("organization_not_found")
	ErrNoAdmin             = apperror.NotFound("admin_not_found")
)
