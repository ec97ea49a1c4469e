package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusDraft, StatusActive, StatusClosed:
		return status, true
	default:
		return "", false
	}
}

// CanTransition reports whether a cycle may move from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusActive || to == StatusClosed
	case StatusActive:
		return to == StatusClosed
	case StatusClosed:
		return false
	default:
		return false
	}
}

type Cycle struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"organization_id"`
	Name      string       `gorm:"not null" json:"name"`
	Status    Status       `gorm:"type:varchar(16);not null" json:"status"`
	DueDate   time.Time    `gorm:"not null" json:"due_date"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Cycle) TableName() string { return "review_cycles" }
