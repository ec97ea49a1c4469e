// Package domain contains persistence models for the tenant registry.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization represents a tenant. LoginCode is stored lower-cased.
type Organization struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	LoginCode       string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_organizations_login_code" json:"login_code"`
	RecoveryKeyHash string       `gorm:"type:text;not null" json:"-"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
