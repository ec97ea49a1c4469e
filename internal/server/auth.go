package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/nexus360/internal/organization/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
)

type registerRequest struct {
	Name          string `json:"name"`
	LoginCode     string `json:"login_code"`
	AdminName     string `json:"admin_name"`
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`
}

type loginRequest struct {
	LoginCode string `json:"login_code"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type recoverRequest struct {
	LoginCode        string `json:"login_code"`
	RecoveryKey      string `json:"recovery_key"`
	NewAdminPassword string `json:"new_admin_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	Token        string                          `json:"token"`
	ExpiresAt    time.Time                       `json:"expires_at"`
	User         userdomain.User                 `json:"user"`
	Organization organizationdomain.Organization `json:"organization"`
}

// Register creates a tenant with its first admin. The recovery key is only
// ever returned here and on rotation.
func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.organizationSvc.Register(c.Request.Context(), organizationdomain.RegisterRequest{
		Name:          req.Name,
		LoginCode:     req.LoginCode,
		AdminName:     req.AdminName,
		AdminUsername: req.AdminUsername,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	token, expiresAt, err := s.sessions.Issue(result.Organization.ID, result.Admin.ID, string(result.Admin.Role))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"organization": result.Organization,
		"admin":        result.Admin,
		"cycle":        result.Cycle,
		"recovery_key": result.RecoveryKey,
		"token":        token,
		"expires_at":   expiresAt,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.LoginCode) == "" {
		AbortWithError(c, newValidationError("login_code", "invalid_login_code", "login_code is required"))
		return
	}

	org, err := s.organizationSvc.ResolveLoginCode(c.Request.Context(), req.LoginCode)
	if err != nil {
		// An unknown tenant answers like a wrong password.
		if errors.Is(err, organizationdomain.ErrNotFound) {
			err = userdomain.ErrInvalidCredentials
		}
		AbortWithError(c, err)
		return
	}

	ctx := orgcontext.WithOrgID(c.Request.Context(), org.ID)
	user, err := s.userSvc.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	token, expiresAt, err := s.sessions.Issue(org.ID, user.ID, string(user.Role))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		Token:        token,
		ExpiresAt:    expiresAt,
		User:         user,
		Organization: *org,
	})
}

// Recover resets the first admin's password with the organization's
// recovery key and rotates the key.
func (s *Server) Recover(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.organizationSvc.RecoverAdmin(c.Request.Context(), organizationdomain.RecoverRequest{
		LoginCode:        req.LoginCode,
		RecoveryKey:      req.RecoveryKey,
		NewAdminPassword: req.NewAdminPassword,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) Me(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	org, err := s.organizationSvc.GetCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "organization": org})
}

func (s *Server) ChangePassword(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.userSvc.ChangePassword(c.Request.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
