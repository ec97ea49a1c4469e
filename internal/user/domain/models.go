package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

// ParseRole accepts any casing of a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleManager, RoleEmployee:
		return role, true
	default:
		return "", false
	}
}

type User struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID  `gorm:"not null;uniqueIndex:ux_users_org_username,priority:1" json:"organization_id"`
	Name         string        `gorm:"not null" json:"name"`
	Username     string        `gorm:"not null" json:"username"`
	UsernameKey  string        `gorm:"not null;uniqueIndex:ux_users_org_username,priority:2" json:"-"`
	PasswordHash string        `gorm:"not null" json:"-"`
	Email        string        `gorm:"not null;default:''" json:"email"`
	Role         Role          `gorm:"type:varchar(16);not null" json:"role"`
	Department   string        `gorm:"not null;default:''" json:"department"`
	ManagerID    *snowflake.ID `gorm:"index" json:"manager_id,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// UsernameKey is the case-insensitive uniqueness key of a username.
func UsernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Credential is a plaintext password issued once to an administrator for
// distribution. It is never persisted.
type Credential struct {
	UserID     snowflake.ID `json:"user_id"`
	Name       string       `json:"name"`
	Username   string       `json:"username"`
	Password   string       `json:"password"`
	Role       Role         `json:"role"`
	Department string       `json:"department"`
}

// Candidate is a proposed user from a bulk import. Ref is an identifier
// scoped to the import batch; ManagerRef may point at another candidate's
// Ref or at an existing user id.
type Candidate struct {
	Ref        string
	Name       string
	Username   string
	Email      string
	Role       string
	Department string
	Password   string
	ManagerRef string
}
