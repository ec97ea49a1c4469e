package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/nexus360/internal/ai"
	"github.com/smallbiznis/nexus360/internal/assignment"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	"github.com/smallbiznis/nexus360/internal/audit"
	auditdomain "github.com/smallbiznis/nexus360/internal/audit/domain"
	"github.com/smallbiznis/nexus360/internal/authorization"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/cycle"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/export"
	"github.com/smallbiznis/nexus360/internal/observability"
	obsmiddleware "github.com/smallbiznis/nexus360/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nexus360/internal/observability/metrics"
	obstracing "github.com/smallbiznis/nexus360/internal/observability/tracing"
	"github.com/smallbiznis/nexus360/internal/organization"
	organizationdomain "github.com/smallbiznis/nexus360/internal/organization/domain"
	"github.com/smallbiznis/nexus360/internal/question"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
	"github.com/smallbiznis/nexus360/internal/ratelimit"
	"github.com/smallbiznis/nexus360/internal/report"
	reportdomain "github.com/smallbiznis/nexus360/internal/report/domain"
	"github.com/smallbiznis/nexus360/internal/session"
	"github.com/smallbiznis/nexus360/internal/user"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ai.Module,
	audit.Module,
	authorization.Module,
	session.Module,
	organization.Module,
	user.Module,
	question.Module,
	cycle.Module,
	assignment.Module,
	report.Module,
	export.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	sessions        *session.Manager
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	userSvc         userdomain.Service
	questionSvc     questiondomain.Service
	cycleSvc        cycledomain.Service
	assignmentSvc   assignmentdomain.Service
	reportSvc       reportdomain.Service
	exports         *export.Service
	limiter         ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Sessions        *session.Manager
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	UserSvc         userdomain.Service
	QuestionSvc     questiondomain.Service
	CycleSvc        cycledomain.Service
	AssignmentSvc   assignmentdomain.Service
	ReportSvc       reportdomain.Service
	Exports         *export.Service
	Limiter         ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		sessions:        p.Sessions,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		userSvc:         p.UserSvc,
		questionSvc:     p.QuestionSvc,
		cycleSvc:        p.CycleSvc,
		assignmentSvc:   p.AssignmentSvc,
		reportSvc:       p.ReportSvc,
		exports:         p.Exports,
		limiter:         p.Limiter,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/register", s.throttle("register"), s.Register)
	auth.POST("/login", s.throttle("login"), s.Login)
	auth.POST("/recover", s.throttle("recover"), s.Recover)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organization --------
	api.GET("/organization", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionView), s.GetOrganization)
	api.POST("/organization/recovery-key", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionManage), s.RotateRecoveryKey)

	// -------- Users --------
	api.GET("/users", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionView), s.ListUsers)
	api.POST("/users", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.CreateUser)
	api.POST("/users/import", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.ImportUsers)
	api.POST("/users/import/ai", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.ImportUserList)
	api.POST("/users/reset-passwords", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.BatchResetPasswords)
	api.GET("/users/:id", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionView), s.GetUser)
	api.PATCH("/users/:id", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.UpdateUser)
	api.DELETE("/users/:id", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.DeleteUser)
	api.POST("/users/:id/reset-password", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionManage), s.ResetPassword)

	// -------- Questions --------
	api.GET("/questions", s.authorizeOrgAction(authorization.ObjectQuestion, authorization.ActionView), s.ListQuestions)
	api.POST("/questions", s.authorizeOrgAction(authorization.ObjectQuestion, authorization.ActionManage), s.CreateQuestion)
	api.POST("/questions/generate", s.authorizeOrgAction(authorization.ObjectQuestion, authorization.ActionManage), s.GenerateQuestionnaire)
	api.PATCH("/questions/:id", s.authorizeOrgAction(authorization.ObjectQuestion, authorization.ActionManage), s.UpdateQuestion)
	api.DELETE("/questions/:id", s.authorizeOrgAction(authorization.ObjectQuestion, authorization.ActionManage), s.DeleteQuestion)

	// -------- Cycles --------
	api.GET("/cycles", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionView), s.ListCycles)
	api.POST("/cycles", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionManage), s.CreateCycle)
	api.GET("/cycles/active", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionView), s.ActiveCycle)
	api.GET("/cycles/:id", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionView), s.GetCycle)
	api.POST("/cycles/:id/activate", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionManage), s.ActivateCycle)
	api.POST("/cycles/:id/close", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionManage), s.CloseCycle)

	// -------- Assignments --------
	api.GET("/assignments", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.ListAssignments)
	api.POST("/assignments", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.CreateAssignment)
	api.GET("/assignments/mine", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionSubmit), s.ListMyAssignments)
	api.POST("/assignments/generate", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.GenerateAssignments)
	api.POST("/assignments/suggest", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.SuggestAssignments)
	api.POST("/assignments/import", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.ImportAssignments)
	api.POST("/assignments/import/org-chart", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.ImportOrgChart)
	api.GET("/assignments/:id", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionSubmit), s.GetAssignment)
	api.DELETE("/assignments/:id", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionManage), s.DeleteAssignment)
	api.PUT("/assignments/:id/draft", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionSubmit), s.SaveDraft)
	api.POST("/assignments/:id/submit", s.authorizeOrgAction(authorization.ObjectAssignment, authorization.ActionSubmit), s.SubmitAssignment)

	// -------- Reports --------
	api.GET("/reports", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionView), s.ListReportSubjects)
	api.GET("/reports/:subjectId", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionView), s.GetReport)
	api.GET("/reports/:subjectId/summary", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionView), s.GetReportSummary)
	api.GET("/reports/:subjectId/pdf", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionView), s.DownloadReportPDF)
	api.POST("/reports/:subjectId/share", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionShare), s.ShareReport)
	api.DELETE("/reports/:subjectId/share", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionShare), s.UnshareReport)

	// -------- Exports --------
	api.GET("/exports/users.csv", s.authorizeOrgAction(authorization.ObjectExport, authorization.ActionView), s.ExportUsers)
	api.GET("/exports/assignments.csv", s.authorizeOrgAction(authorization.ObjectExport, authorization.ActionView), s.ExportAssignments)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
