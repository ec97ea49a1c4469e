package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obsmiddleware "github.com/smallbiznis/nexus360/internal/observability/logger"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	"github.com/smallbiznis/nexus360/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	contextActorKey = "actor"
	bearerPrefix    = "bearer "
)

// AuthRequired verifies the bearer token and scopes the request context to
// the token's organization and user.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.sessions.Parse(strings.TrimSpace(header[len(bearerPrefix):]))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		actor := orgcontext.Actor{UserID: claims.UserID, Role: claims.Role}
		ctx := orgcontext.WithOrgID(c.Request.Context(), claims.OrgID)
		ctx = orgcontext.WithActor(ctx, actor)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (orgcontext.Actor, bool) {
	return orgcontext.ActorFromContext(c.Request.Context())
}

// throttle limits attempts per client address on the unauthenticated auth
// endpoints. A failing limiter lets the request through.
func (s *Server) throttle(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		res, err := s.limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			obsmiddleware.FromContext(c.Request.Context()).Warn("rate limiter unavailable",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !res.Allowed {
			seconds := int(math.Ceil(res.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ratelimit.ErrTooManyAttempts)
			return
		}
		c.Next()
	}
}
