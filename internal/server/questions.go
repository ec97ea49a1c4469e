package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
)

type createQuestionRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type updateQuestionRequest struct {
	Category *string `json:"category"`
	Text     *string `json:"text"`
}

func (s *Server) ListQuestions(c *gin.Context) {
	questions, err := s.questionSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": questions})
}

func (s *Server) CreateQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	question, err := s.questionSvc.Create(c.Request.Context(), questiondomain.CreateQuestionRequest{
		Category: req.Category,
		Text:     req.Text,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": question})
}

func (s *Server) UpdateQuestion(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	question, err := s.questionSvc.Update(c.Request.Context(), id, questiondomain.UpdateQuestionRequest{
		Category: req.Category,
		Text:     req.Text,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": question})
}

func (s *Server) DeleteQuestion(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.questionSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GenerateQuestionnaire replaces the organization's own questions with an
// AI drafted set. The result is unchanged when the assistant is unavailable.
func (s *Server) GenerateQuestionnaire(c *gin.Context) {
	questions, err := s.questionSvc.GenerateQuestionnaire(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": questions})
}
