package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/apperror"
	"gorm.io/gorm"
)

type CreateCycleRequest struct {
	Name    string
	DueDate time.Time
	Status  string
}

type Service interface {
	Create(ctx context.Context, req CreateCycleRequest) (Cycle, error)
	// CreateInTx inserts a cycle inside a transaction owned by the caller.
	CreateInTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req CreateCycleRequest) (Cycle, error)
	GetByID(ctx context.Context, id snowflake.ID) (Cycle, error)
	List(ctx context.Context) ([]Cycle, error)
	Active(ctx context.Context) (Cycle, error)
	// Resolve returns the cycle with the given id, or the active cycle when
	// id is nil. It reads through db so callers may pass a transaction.
	Resolve(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id *snowflake.ID) (Cycle, error)
	Activate(ctx context.Context, id snowflake.ID) (Cycle, error)
	Close(ctx context.Context, id snowflake.ID) (Cycle, error)
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization")
	ErrInvalidName         = apperror.Validation("invalid_cycle_name")
	ErrInvalidDueDate      = apperror.Validation("invalid_due_date")
	ErrInvalidStatus       = apperror.Validation("invalid_cycle_status")
	ErrInvalidTransition   = apperror.State("invalid_cycle_transition")
	ErrNotFound            = apperror.NotFound("cycle_not_found")
	ErrNoActiveCycle       = apperror.NotFound("no_active_cycle")
)
