package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	CycleID    *snowflake.ID
	ReviewerID *snowflake.ID
	SubjectID  *snowflake.ID
	Status     Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, assignments ...*Assignment) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Assignment, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*Assignment, error)
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (int64, error)
	DeleteByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) error
	DeleteByUser(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) error
	// SaveAnswers stores answers and moves the assignment to status unless
	// it is already submitted. It reports the number of rows changed.
	SaveAnswers(ctx context.Context, db *gorm.DB, assignment *Assignment, status Status, submittedAt *time.Time) (int64, error)
}
