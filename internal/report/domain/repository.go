package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ShareRepository interface {
	// Upsert leaves an existing share untouched.
	Upsert(ctx context.Context, db *gorm.DB, share *ReportShare) error
	Delete(ctx context.Context, db *gorm.DB, orgID, subjectID snowflake.ID) error
	ListSubjects(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]snowflake.ID, error)
}
