package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/assignment/domain"
	"gorm.io/gorm"
)

const insertBatchSize = 200

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, assignments ...*domain.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(assignments, insertBatchSize).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Assignment, error) {
	var assignments []domain.Assignment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	return &assignments[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.Assignment, error) {
	var assignments []*domain.Assignment
	stmt := db.WithContext(ctx).
		Model(&domain.Assignment{}).
		Where("org_id = ?", orgID)
	if filter.CycleID != nil {
		stmt = stmt.Where("cycle_id = ?", *filter.CycleID)
	}
	if filter.ReviewerID != nil {
		stmt = stmt.Where("reviewer_id = ?", *filter.ReviewerID)
	}
	if filter.SubjectID != nil {
		stmt = stmt.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if err := stmt.Order("id asc").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM review_assignments WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM review_assignments WHERE org_id = ? AND cycle_id = ?`,
		orgID,
		cycleID,
	).Error
}

func (r *repo) DeleteByUser(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM review_assignments WHERE org_id = ? AND (reviewer_id = ? OR subject_id = ?)`,
		orgID,
		userID,
		userID,
	).Error
}

func (r *repo) SaveAnswers(ctx context.Context, db *gorm.DB, assignment *domain.Assignment, status domain.Status, submittedAt *time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE review_assignments
		 SET status = ?, scores = ?, comments = ?, feedback_strengths = ?,
		     feedback_improvements = ?, submitted_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status <> ?`,
		status,
		assignment.Scores,
		assignment.Comments,
		assignment.FeedbackStrengths,
		assignment.FeedbackImprovements,
		submittedAt,
		assignment.UpdatedAt,
		assignment.OrgID,
		assignment.ID,
		domain.StatusSubmitted,
	)
	return result.RowsAffected, result.Error
}
