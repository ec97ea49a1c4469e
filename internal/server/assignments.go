package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	"github.com/smallbiznis/nexus360/internal/authorization"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
)

type cycleScopedRequest struct {
	CycleID *snowflake.ID `json:"cycle_id"`
}

type createAssignmentRequest struct {
	CycleID      *snowflake.ID `json:"cycle_id"`
	ReviewerID   snowflake.ID  `json:"reviewer_id"`
	SubjectID    snowflake.ID  `json:"subject_id"`
	Relationship string        `json:"relationship"`
}

type importAssignmentsRequest struct {
	CycleID   *snowflake.ID               `json:"cycle_id"`
	NewUsers  []importUserEntry           `json:"new_users"`
	Proposals []assignmentdomain.Proposal `json:"proposals"`
}

// answersRequest carries scores and comments keyed by question id.
type answersRequest struct {
	Scores       assignmentdomain.Scores   `json:"scores"`
	Comments     assignmentdomain.Comments `json:"comments"`
	Strengths    string                    `json:"strengths"`
	Improvements string                    `json:"improvements"`
}

func (r answersRequest) toDomain() assignmentdomain.SubmitRequest {
	return assignmentdomain.SubmitRequest{
		Scores:       r.Scores,
		Comments:     r.Comments,
		Strengths:    r.Strengths,
		Improvements: r.Improvements,
	}
}

func (s *Server) ListAssignments(c *gin.Context) {
	cycleID, err := queryCycleID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	reviewerID, err := parseOptionalSnowflakeID(c.Query("reviewer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("reviewer_id", "invalid_reviewer_id", "invalid reviewer_id"))
		return
	}
	subjectID, err := parseOptionalSnowflakeID(c.Query("subject_id"))
	if err != nil {
		AbortWithError(c, newValidationError("subject_id", "invalid_subject_id", "invalid subject_id"))
		return
	}

	assignments, err := s.assignmentSvc.List(c.Request.Context(), assignmentdomain.ListRequest{
		CycleID:    cycleID,
		ReviewerID: reviewerID,
		SubjectID:  subjectID,
		Status:     strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": assignments})
}

func (s *Server) ListMyAssignments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	cycleID, err := queryCycleID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reviewerID := actor.UserID
	assignments, err := s.assignmentSvc.List(c.Request.Context(), assignmentdomain.ListRequest{
		CycleID:    cycleID,
		ReviewerID: &reviewerID,
		Status:     strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": assignments})
}

func (s *Server) GetAssignment(c *gin.Context) {
	assignment, ok := s.loadAssignment(c, true)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

func (s *Server) CreateAssignment(c *gin.Context) {
	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	assignment, err := s.assignmentSvc.Create(c.Request.Context(), assignmentdomain.CreateAssignmentRequest{
		CycleID:      req.CycleID,
		ReviewerID:   req.ReviewerID,
		SubjectID:    req.SubjectID,
		Relationship: req.Relationship,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": assignment})
}

func (s *Server) DeleteAssignment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.assignmentSvc.Remove(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GenerateAssignments rebuilds the cycle's assignments from the org chart.
func (s *Server) GenerateAssignments(c *gin.Context) {
	var req cycleScopedRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.assignmentSvc.Generate(c.Request.Context(), assignmentdomain.GenerateRequest{CycleID: req.CycleID})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SuggestAssignments returns proposals for review. Nothing is persisted.
func (s *Server) SuggestAssignments(c *gin.Context) {
	var req cycleScopedRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	proposals, err := s.assignmentSvc.SuggestRelationships(c.Request.Context(), req.CycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": proposals})
}

func (s *Server) ImportAssignments(c *gin.Context) {
	var req importAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newUsers := make([]userdomain.Candidate, 0, len(req.NewUsers))
	for _, entry := range req.NewUsers {
		newUsers = append(newUsers, userdomain.Candidate{
			Ref:        entry.Ref,
			Name:       entry.Name,
			Username:   entry.Username,
			Email:      entry.Email,
			Role:       entry.Role,
			Department: entry.Department,
			Password:   entry.Password,
			ManagerRef: entry.ManagerRef,
		})
	}

	result, err := s.assignmentSvc.ImportProposals(c.Request.Context(), assignmentdomain.ImportRequest{
		CycleID:   req.CycleID,
		NewUsers:  newUsers,
		Proposals: req.Proposals,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ImportOrgChart(c *gin.Context) {
	cycleID, err := parseOptionalSnowflakeID(c.PostForm("cycle_id"))
	if err != nil {
		AbortWithError(c, newValidationError("cycle_id", "invalid_cycle_id", "invalid cycle_id"))
		return
	}
	doc, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.assignmentSvc.ImportOrgChart(c.Request.Context(), assignmentdomain.OrgChartRequest{
		CycleID:  cycleID,
		Text:     doc.Text,
		MimeType: doc.MimeType,
		Data:     doc.Data,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) SaveDraft(c *gin.Context) {
	assignment, ok := s.loadAssignment(c, false)
	if !ok {
		return
	}

	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	saved, err := s.assignmentSvc.SaveDraft(c.Request.Context(), assignment.ID, req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": saved})
}

func (s *Server) SubmitAssignment(c *gin.Context) {
	assignment, ok := s.loadAssignment(c, false)
	if !ok {
		return
	}

	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	submitted, err := s.assignmentSvc.Submit(c.Request.Context(), assignment.ID, req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": submitted})
}

// loadAssignment fetches the path assignment and checks that the caller is
// its reviewer. With adminMayRead, callers who manage assignments may read
// any of them. Answers are only written by the reviewer.
func (s *Server) loadAssignment(c *gin.Context, adminMayRead bool) (assignmentdomain.Assignment, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return assignmentdomain.Assignment{}, false
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return assignmentdomain.Assignment{}, false
	}

	assignment, err := s.assignmentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return assignmentdomain.Assignment{}, false
	}
	if assignment.ReviewerID == actor.UserID {
		return assignment, true
	}

	if adminMayRead {
		allowed, err := s.can(c, authorization.ObjectAssignment, authorization.ActionManage)
		if err != nil {
			AbortWithError(c, err)
			return assignmentdomain.Assignment{}, false
		}
		if allowed {
			return assignment, true
		}
	}

	// Someone else's assignment is indistinguishable from a missing one.
	AbortWithError(c, assignmentdomain.ErrNotFound)
	return assignmentdomain.Assignment{}, false
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}
