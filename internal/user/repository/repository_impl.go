package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET name = ?, username = ?, username_key = ?, email = ?, role = ?,
		     department = ?, manager_id = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		user.Name,
		user.Username,
		user.UsernameKey,
		user.Email,
		user.Role,
		user.Department,
		user.ManagerID,
		user.UpdatedAt,
		user.OrgID,
		user.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM users WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repo) UpdatePassword(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, hash string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET password_hash = ? WHERE org_id = ? AND id = ?`,
		hash,
		orgID,
		id,
	).Error
}

func (r *repo) ClearManager(ctx context.Context, db *gorm.DB, orgID, managerID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET manager_id = NULL WHERE org_id = ? AND manager_id = ?`,
		orgID,
		managerID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *repo) FindByUsernameKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).
		Where("org_id = ? AND username_key = ?", orgID, key).
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *repo) FindFirstAdmin(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).
		Where("org_id = ? AND role = ?", orgID, domain.RoleAdmin).
		Order("created_at asc, id asc").
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.User, error) {
	var users []*domain.User
	stmt := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("org_id = ?", orgID)
	if filter.Role != "" {
		stmt = stmt.Where("role = ?", filter.Role)
	}
	if department := strings.TrimSpace(filter.Department); department != "" {
		stmt = stmt.Where("department = ?", department)
	}
	if filter.ManagerID != nil {
		stmt = stmt.Where("manager_id = ?", *filter.ManagerID)
	}
	if err := stmt.Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) ListUsernameKeys(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("org_id = ?", orgID).
		Pluck("username_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
