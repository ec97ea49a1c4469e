package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	FindByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindByLoginCode(ctx context.Context, loginCode string) (*Organization, error)
	UpdateRecoveryKeyHash(ctx context.Context, id snowflake.ID, hash string, updatedAt time.Time) error
}
