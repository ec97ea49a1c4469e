package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cycle *Cycle) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Cycle, error)
	FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Cycle, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*Cycle, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status Status, updatedAt time.Time) error
}
