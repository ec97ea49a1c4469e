package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FullMark is the top of the score scale.
const FullMark = 5

type CategoryScore struct {
	Category  string  `json:"category"`
	Score     float64 `json:"score"`
	SelfScore float64 `json:"self_score"`
	FullMark  int     `json:"full_mark"`
}

// Feedback is the free text of one submitted review tagged with the
// reviewer's relationship.
type Feedback struct {
	Relationship string `json:"relationship"`
	Strengths    string `json:"strengths,omitempty"`
	Improvements string `json:"improvements,omitempty"`
}

type Report struct {
	SubjectID      snowflake.ID    `json:"subject_id"`
	SubjectName    string          `json:"subject_name"`
	CycleID        snowflake.ID    `json:"cycle_id"`
	CategoryScores []CategoryScore `json:"category_scores"`
	AverageScore   float64         `json:"average_score"`
	ReviewCount    int             `json:"review_count"`
	Feedback       []Feedback      `json:"feedback"`
}

type Summary struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

type FullReport struct {
	Report  Report  `json:"report"`
	Summary Summary `json:"summary"`
}

// ReportShare makes a subject's report visible to every user of the tenant.
type ReportShare struct {
	OrgID     snowflake.ID `gorm:"primaryKey" json:"organization_id"`
	SubjectID snowflake.ID `gorm:"primaryKey" json:"subject_id"`
	SharedBy  snowflake.ID `gorm:"not null" json:"shared_by"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (ReportShare) TableName() string { return "report_shares" }
