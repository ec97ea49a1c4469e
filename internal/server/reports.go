package server

import (
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexus360/internal/export"
	reportdomain "github.com/smallbiznis/nexus360/internal/report/domain"
)

func (s *Server) ListReportSubjects(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	subjects, err := s.reportSvc.VisibleSubjects(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": subjects})
}

func (s *Server) GetReport(c *gin.Context) {
	subjectID, cycleID, ok := s.reportTarget(c)
	if !ok {
		return
	}

	report, err := s.reportSvc.BuildReport(c.Request.Context(), subjectID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetReportSummary adds the narrative summary. The summary degrades to a
// fixed fallback when the assistant is unavailable.
func (s *Server) GetReportSummary(c *gin.Context) {
	subjectID, cycleID, ok := s.reportTarget(c)
	if !ok {
		return
	}

	full, err := s.reportSvc.Summarize(c.Request.Context(), subjectID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": full})
}

func (s *Server) DownloadReportPDF(c *gin.Context) {
	subjectID, cycleID, ok := s.reportTarget(c)
	if !ok {
		return
	}

	full, err := s.reportSvc.Summarize(c.Request.Context(), subjectID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycle, err := s.cycleSvc.GetByID(c.Request.Context(), full.Report.CycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := export.ReportPDF(full, cycle.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("report-%s.pdf", subjectID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) ShareReport(c *gin.Context) {
	subjectID, err := pathID(c, "subjectId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.reportSvc.Share(c.Request.Context(), subjectID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) UnshareReport(c *gin.Context) {
	subjectID, err := pathID(c, "subjectId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.reportSvc.Unshare(c.Request.Context(), subjectID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// reportTarget resolves the subject and cycle of a report request and
// enforces report visibility for the caller.
func (s *Server) reportTarget(c *gin.Context) (snowflake.ID, *snowflake.ID, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, nil, false
	}
	subjectID, err := pathID(c, "subjectId")
	if err != nil {
		AbortWithError(c, err)
		return 0, nil, false
	}
	cycleID, err := queryCycleID(c)
	if err != nil {
		AbortWithError(c, err)
		return 0, nil, false
	}

	allowed, err := s.reportSvc.CanView(c.Request.Context(), actor.UserID, subjectID)
	if err != nil {
		AbortWithError(c, err)
		return 0, nil, false
	}
	if !allowed {
		AbortWithError(c, reportdomain.ErrSubjectNotFound)
		return 0, nil, false
	}
	return subjectID, cycleID, true
}
