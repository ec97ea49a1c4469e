package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name       string
	Username   string
	Password   string
	Email      string
	Role       string
	Department string
	ManagerID  *snowflake.ID
}

// CreateUserResult carries the issued credential when the password was
// generated rather than supplied.
type CreateUserResult struct {
	User       User        `json:"user"`
	Credential *Credential `json:"credential,omitempty"`
}

// UpdateUserRequest patches the fields that are set. ClearManager removes
// the manager link.
type UpdateUserRequest struct {
	Name         *string
	Username     *string
	Email        *string
	Role         *string
	Department   *string
	ManagerID    *snowflake.ID
	ClearManager bool
	Password     *string
}

type ListUserRequest struct {
	Role       string
	Department string
}

type ImportResult struct {
	Users       []User                  `json:"users"`
	Credentials []Credential            `json:"credentials"`
	Refs        map[string]snowflake.ID `json:"-"`
}

// ImportUserListRequest is a free-form roster handed to the AI
// collaborator: pasted text, an attached file, or both.
type ImportUserListRequest struct {
	Text     string
	MimeType string
	Data     []byte
}

type Service interface {
	Authenticate(ctx context.Context, username, password string) (User, error)
	Create(ctx context.Context, req CreateUserRequest) (CreateUserResult, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateUserRequest) (User, error)
	Delete(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id snowflake.ID) (User, error)
	List(ctx context.Context, req ListUserRequest) ([]User, error)
	ListDirectReports(ctx context.Context, managerID snowflake.ID) ([]User, error)
	ImportBatch(ctx context.Context, candidates []Candidate) (ImportResult, error)
	// ImportUserList parses a roster with the AI collaborator and imports
	// the result. A collaborator failure imports nothing.
	ImportUserList(ctx context.Context, req ImportUserListRequest) (ImportResult, error)
	// ImportInTx runs the import inside a transaction owned by the caller,
	// which must already hold the tenant lock.
	ImportInTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, candidates []Candidate) (ImportResult, error)
	ResetPassword(ctx context.Context, id snowflake.ID) (Credential, error)
	BatchResetPasswords(ctx context.Context, excludeUserID snowflake.ID) ([]Credential, error)
	ChangePassword(ctx context.Context, id snowflake.ID, oldPassword, newPassword string) error
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidName         = apperror.Validation("invalid_name")
	ErrInvalidUsername     = apperror.Validation("invalid_username")
	ErrInvalidPassword     = apperror.Validation("invalid_password")
	ErrInvalidRole         = apperror.Validation("invalid_role")
	ErrInvalidManager      = apperror.Validation("invalid_manager")
	ErrManagerCycle        = apperror.Validation("manager_cycle")
	ErrUsernameTaken       = apperror.Conflict("username_taken")
	ErrInvalidCredentials  = apperror.Auth("invalid_credentials")
	ErrNotFound            = apperror.NotFound("user_not_found")
)
