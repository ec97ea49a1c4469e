// Package domain describes the generative-AI collaborator the review engine
// delegates narrative and parsing work to.
package domain

import (
	"context"

	"github.com/smallbiznis/nexus360/internal/apperror"
)

// File is an optional binary attachment such as a roster spreadsheet or an
// org chart image.
type File struct {
	MimeType string
	Data     []byte
}

type CategoryScore struct {
	Category  string  `json:"category"`
	Score     float64 `json:"score"`
	SelfScore float64 `json:"selfScore"`
}

type ReviewText struct {
	Relationship string `json:"relationship"`
	Strengths    string `json:"strengths"`
	Improvements string `json:"improvements"`
}

type SummaryRequest struct {
	SubjectName string
	Categories  []CategoryScore
	Reviews     []ReviewText
}

type Summary struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Person is the directory view handed to the collaborator.
type Person struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
	ManagerID  string `json:"managerId,omitempty"`
}

type ProposedAssignment struct {
	ReviewerID   string `json:"reviewerId"`
	SubjectID    string `json:"subjectId"`
	Relationship string `json:"relationship"`
}

type ProposedUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	ManagerID  string `json:"managerId"`
}

type OrgChart struct {
	NewUsers    []ProposedUser       `json:"newUsers"`
	Assignments []ProposedAssignment `json:"assignments"`
}

type OrgChartRequest struct {
	Text          string
	File          *File
	ExistingUsers []Person
	CycleID       string
}

type UserListRequest struct {
	Text string
	File *File
}

type QuestionDraft struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Collaborator is the raw AI boundary. Implementations may fail, block or
// return malformed data; callers go through service.Assistant.
type Collaborator interface {
	Summarize(ctx context.Context, req SummaryRequest) (Summary, error)
	SuggestRelationships(ctx context.Context, users []Person, cycleID string) ([]ProposedAssignment, error)
	ParseOrgChart(ctx context.Context, req OrgChartRequest) (OrgChart, error)
	ParseUserList(ctx context.Context, req UserListRequest) ([]ProposedUser, error)
	GenerateQuestionnaire(ctx context.Context) ([]QuestionDraft, error)
}

// UnavailableSummary is returned whenever a summary cannot be produced.
const UnavailableSummary = "AI unavailable"

var (
	ErrUnavailable       = apperror.External("ai_unavailable")
	ErrRequestFailed     = apperror.External("ai_request_failed")
	ErrMalformedResponse = apperror.External("ai_malformed_response")
)
