package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexus360/internal/export"
	obsmiddleware "github.com/smallbiznis/nexus360/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) ExportUsers(c *gin.Context) {
	table, err := s.exports.UserRoster(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeCSV(c, http.StatusOK, "users.csv", table)
}

func (s *Server) ExportAssignments(c *gin.Context) {
	cycleID, err := queryCycleID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	table, err := s.exports.AssignmentRoster(c.Request.Context(), cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeCSV(c, http.StatusOK, "assignments.csv", table)
}

func writeCSV(c *gin.Context, status int, filename string, table export.Table) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(status)
	if err := export.WriteCSV(c.Writer, table); err != nil {
		// Headers are already on the wire.
		obsmiddleware.FromContext(c.Request.Context()).Warn("csv export interrupted", zap.String("filename", filename), zap.Error(err))
	}
}
