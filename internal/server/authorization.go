package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexus360/internal/authorization"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
)

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(ctx, orgID, actor.UserID, object, action)
}

// can reports whether the caller holds a capability without failing the
// request. Only a denial is swallowed.
func (s *Server) can(c *gin.Context, object string, action string) (bool, error) {
	err := s.authorizeOrgActionWithContext(c, object, action)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, authorization.ErrForbidden):
		return false, nil
	default:
		return false, err
	}
}
