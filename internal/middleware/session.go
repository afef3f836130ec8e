package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/railsense/railsense/internal/pkg/errcode"
	"github.com/railsense/railsense/internal/pkg/jwt"
	"github.com/railsense/railsense/internal/pkg/response"
)

const ContextSessionIDKey = "session_id"

// SessionAuth validates the bearer session token and exposes the session id
// to handlers. Sessions are anonymous; the token only ties messages to one
// conversation.
func SessionAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrSessionExpired, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextSessionIDKey, claims.SessionID)
		c.Next()
	}
}
