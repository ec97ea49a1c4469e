package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/question/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, questions ...*domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(questions).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, question *domain.Question) error {
	return db.WithContext(ctx).Exec(
		`UPDATE questions SET category = ?, text = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		question.Category,
		question.Text,
		question.UpdatedAt,
		question.OrgID,
		question.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM questions WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repo) DeleteOwned(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM questions WHERE org_id = ?`,
		orgID,
	).Error
}

func (r *repo) FindVisible(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Question, error) {
	var question domain.Question
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, category, text, position, created_at, updated_at
		 FROM questions
		 WHERE id = ? AND (org_id = ? OR org_id IS NULL)`,
		id,
		orgID,
	).Scan(&question).Error
	if err != nil {
		return nil, err
	}
	if question.ID == 0 {
		return nil, nil
	}
	return &question, nil
}

func (r *repo) ListVisible(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*domain.Question, error) {
	var questions []*domain.Question
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, category, text, position, created_at, updated_at
		 FROM questions
		 WHERE org_id = ? OR org_id IS NULL
		 ORDER BY position ASC, id ASC`,
		orgID,
	).Scan(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *repo) MaxVisiblePosition(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error) {
	var max int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(position), 0) FROM questions WHERE org_id = ? OR org_id IS NULL`,
		orgID,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (r *repo) CountShared(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Question{}).
		Where("org_id IS NULL").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
