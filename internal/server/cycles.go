package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
)

type createCycleRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"due_date"`
	Status  string `json:"status"`
}

func (s *Server) ListCycles(c *gin.Context) {
	cycles, err := s.cycleSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycles})
}

func (s *Server) CreateCycle(c *gin.Context) {
	var req createCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	cycle, err := s.cycleSvc.Create(c.Request.Context(), cycledomain.CreateCycleRequest{
		Name:    req.Name,
		DueDate: dueDate,
		Status:  req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": cycle})
}

func (s *Server) ActiveCycle(c *gin.Context) {
	cycle, err := s.cycleSvc.Active(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

func (s *Server) GetCycle(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycle, err := s.cycleSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

func (s *Server) ActivateCycle(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycle, err := s.cycleSvc.Activate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

func (s *Server) CloseCycle(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycle, err := s.cycleSvc.Close(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}
