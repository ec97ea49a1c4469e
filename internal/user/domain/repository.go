package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Role       Role
	Department string
	ManagerID  *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	Update(ctx context.Context, db *gorm.DB, user *User) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	UpdatePassword(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, hash string) error
	ClearManager(ctx context.Context, db *gorm.DB, orgID, managerID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*User, error)
	FindByUsernameKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*User, error)
	FindFirstAdmin(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*User, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*User, error)
	ListUsernameKeys(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]string, error)
}
