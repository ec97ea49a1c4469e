package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/cycle/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cycle *domain.Cycle) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO review_cycles (id, org_id, name, status, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cycle.ID,
		cycle.OrgID,
		cycle.Name,
		cycle.Status,
		cycle.DueDate,
		cycle.CreatedAt,
		cycle.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Cycle, error) {
	var cycle domain.Cycle
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, status, due_date, created_at, updated_at
		 FROM review_cycles
		 WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Cycle, error) {
	var cycle domain.Cycle
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, status, due_date, created_at, updated_at
		 FROM review_cycles
		 WHERE org_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		orgID,
		domain.StatusActive,
	).Scan(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*domain.Cycle, error) {
	var cycles []*domain.Cycle
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, status, due_date, created_at, updated_at
		 FROM review_cycles
		 WHERE org_id = ?
		 ORDER BY created_at DESC, id DESC`,
		orgID,
	).Scan(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE review_cycles SET status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		status,
		updatedAt,
		orgID,
		id,
	).Error
}
