package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexus360/internal/export"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
)

type createUserRequest struct {
	Name       string        `json:"name"`
	Username   string        `json:"username"`
	Password   string        `json:"password"`
	Email      string        `json:"email"`
	Role       string        `json:"role"`
	Department string        `json:"department"`
	ManagerID  *snowflake.ID `json:"manager_id"`
}

type updateUserRequest struct {
	Name         *string       `json:"name"`
	Username     *string       `json:"username"`
	Email        *string       `json:"email"`
	Role         *string       `json:"role"`
	Department   *string       `json:"department"`
	ManagerID    *snowflake.ID `json:"manager_id"`
	ClearManager bool          `json:"clear_manager"`
	Password     *string       `json:"password"`
}

type importUserEntry struct {
	Ref        string `json:"ref"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Password   string `json:"password"`
	ManagerRef string `json:"manager_ref"`
}

type importUsersRequest struct {
	Users []importUserEntry `json:"users"`
}

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.userSvc.List(c.Request.Context(), userdomain.ListUserRequest{
		Role:       strings.TrimSpace(c.Query("role")),
		Department: strings.TrimSpace(c.Query("department")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) GetUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.userSvc.Create(c.Request.Context(), userdomain.CreateUserRequest{
		Name:       req.Name,
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		Role:       req.Role,
		Department: req.Department,
		ManagerID:  req.ManagerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) UpdateUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.Update(c.Request.Context(), id, userdomain.UpdateUserRequest{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		Role:         req.Role,
		Department:   req.Department,
		ManagerID:    req.ManagerID,
		ClearManager: req.ClearManager,
		Password:     req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) DeleteUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if actor, ok := actorFromContext(c); ok && actor.UserID == id {
		AbortWithError(c, newValidationError("id", "invalid_id", "cannot delete yourself"))
		return
	}

	if err := s.userSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ImportUsers(c *gin.Context) {
	var req importUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	candidates := make([]userdomain.Candidate, 0, len(req.Users))
	for _, entry := range req.Users {
		candidates = append(candidates, userdomain.Candidate{
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

	result, err := s.userSvc.ImportBatch(c.Request.Context(), candidates)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondCredentials(c, http.StatusCreated, result.Credentials, result)
}

// ImportUserList asks the assistant to read a roster document. Nothing is
// imported when the assistant is unavailable.
func (s *Server) ImportUserList(c *gin.Context) {
	doc, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.userSvc.ImportUserList(c.Request.Context(), userdomain.ImportUserListRequest{
		Text:     doc.Text,
		MimeType: doc.MimeType,
		Data:     doc.Data,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondCredentials(c, http.StatusOK, result.Credentials, result)
}

func (s *Server) ResetPassword(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cred, err := s.userSvc.ResetPassword(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondCredentials(c, http.StatusOK, []userdomain.Credential{cred}, gin.H{"data": cred})
}

// BatchResetPasswords regenerates every password except the caller's own.
func (s *Server) BatchResetPasswords(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	creds, err := s.userSvc.BatchResetPasswords(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondCredentials(c, http.StatusOK, creds, gin.H{"data": creds})
}

// respondCredentials writes freshly issued credentials as JSON, or as a
// printable CSV roster when format=csv is requested.
func (s *Server) respondCredentials(c *gin.Context, status int, creds []userdomain.Credential, body any) {
	if !strings.EqualFold(strings.TrimSpace(c.Query("format")), "csv") {
		c.JSON(status, body)
		return
	}
	writeCSV(c, status, "credentials.csv", export.CredentialRoster(creds))
}
