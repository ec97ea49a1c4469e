package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultCategory labels questions created without a category.
const DefaultCategory = "Custom"

// Question is a scored statement. A nil OrgID marks a shared default that
// every tenant sees but none may change.
type Question struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID     *snowflake.ID `gorm:"index" json:"organization_id,omitempty"`
	Category  string        `gorm:"not null" json:"category"`
	Text      string        `gorm:"not null" json:"text"`
	Position  int           `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null" json:"updated_at"`
}

func (Question) TableName() string { return "questions" }

// Shared reports whether the question is a read-only default.
func (q Question) Shared() bool {
	return q.OrgID == nil
}
