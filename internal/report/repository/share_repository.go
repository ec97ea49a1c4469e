package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/report/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type shareRepo struct{}

func ProvideShares() domain.ShareRepository {
	return &shareRepo{}
}

func (r *shareRepo) Upsert(ctx context.Context, db *gorm.DB, share *domain.ReportShare) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(share).Error
}

func (r *shareRepo) Delete(ctx context.Context, db *gorm.DB, orgID, subjectID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM report_shares WHERE org_id = ? AND subject_id = ?`,
		orgID,
		subjectID,
	).Error
}

func (r *shareRepo) ListSubjects(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.ReportShare{}).
		Where("org_id = ?", orgID).
		Order("subject_id asc").
		Pluck("subject_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
