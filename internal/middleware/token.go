package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/posetrack/backend/internal/auth"
	"github.com/posetrack/backend/pkg/response"
)

const (
	// ContextSessionID is the key for the authorized session ID in gin context.
	ContextSessionID = "session_id"
)

// SessionToken returns a middleware that validates the bearer token and
// requires its session claim to match the :id route parameter.
func SessionToken(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := tokens.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		if idParam := c.Param("id"); idParam != "" {
			sessionID, err := uuid.Parse(idParam)
			if err != nil || sessionID != claims.SessionID {
				response.Forbidden(c, "token not valid for this session")
				c.Abort()
				return
			}
		}
		c.Set(ContextSessionID, claims.SessionID)
		c.Next()
	}
}
