package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Relationship is the reviewer's structural connection to the subject.
type Relationship string

const (
	RelationshipSelf         Relationship = "SELF"
	RelationshipManager      Relationship = "MANAGER"
	RelationshipDirectReport Relationship = "DIRECT_REPORT"
	RelationshipPeer         Relationship = "PEER"
)

// Relationships lists every relationship in report order.
var Relationships = []Relationship{
	RelationshipSelf,
	RelationshipManager,
	RelationshipDirectReport,
	RelationshipPeer,
}

func ParseRelationship(raw string) (Relationship, bool) {
	rel := Relationship(strings.ToUpper(strings.TrimSpace(raw)))
	switch rel {
	case RelationshipSelf, RelationshipManager, RelationshipDirectReport, RelationshipPeer:
		return rel, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
)

func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusDraft, StatusSubmitted:
		return status, true
	default:
		return "", false
	}
}

// Source records how an assignment entered the matrix.
type Source string

const (
	SourceGenerated Source = "GENERATED"
	SourceManual    Source = "MANUAL"
	SourceImported  Source = "IMPORTED"
)

// Scores maps question ids to 1..5. Non-positive values mean not applicable.
type Scores map[snowflake.ID]int

type Comments map[snowflake.ID]string

type Assignment struct {
	ID                   snowflake.ID                 `gorm:"primaryKey" json:"id"`
	OrgID                snowflake.ID                 `gorm:"not null;index:ix_assignments_org_cycle,priority:1" json:"organization_id"`
	CycleID              snowflake.ID                 `gorm:"not null;index:ix_assignments_org_cycle,priority:2" json:"cycle_id"`
	ReviewerID           snowflake.ID                 `gorm:"not null;index" json:"reviewer_id"`
	SubjectID            snowflake.ID                 `gorm:"not null;index" json:"subject_id"`
	Relationship         Relationship                 `gorm:"type:varchar(16);not null" json:"relationship"`
	Status               Status                       `gorm:"type:varchar(16);not null" json:"status"`
	Source               Source                       `gorm:"type:varchar(16);not null" json:"source"`
	Scores               datatypes.JSONType[Scores]   `json:"scores"`
	Comments             datatypes.JSONType[Comments] `json:"comments"`
	FeedbackStrengths    string                       `gorm:"not null;default:''" json:"feedback_strengths"`
	FeedbackImprovements string                       `gorm:"not null;default:''" json:"feedback_improvements"`
	SubmittedAt          *time.Time                   `json:"submitted_at,omitempty"`
	CreatedAt            time.Time                    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time                    `gorm:"not null" json:"updated_at"`
}

func (Assignment) TableName() string { return "review_assignments" }

// Pair is a derived reviewer to subject edge before it is persisted.
type Pair struct {
	ReviewerID   snowflake.ID
	SubjectID    snowflake.ID
	Relationship Relationship
}

// Proposal is an assignment suggested by an external source. Refs are
// either batch-local user stubs or decimal ids of existing users.
type Proposal struct {
	ReviewerRef  string `json:"reviewer_ref"`
	SubjectRef   string `json:"subject_ref"`
	Relationship string `json:"relationship"`
}
