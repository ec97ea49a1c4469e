package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, questions ...*Question) error
	Update(ctx context.Context, db *gorm.DB, question *Question) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	DeleteOwned(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error
	// FindVisible returns a tenant question or a shared default.
	FindVisible(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Question, error)
	ListVisible(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*Question, error)
	MaxVisiblePosition(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error)
	CountShared(ctx context.Context, db *gorm.DB) (int64, error)
}
