package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"example.com/snackhouse/delivery/internal/services"
)

// SessionValidator checks a session token and reports whether it is still valid.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) error
}

// SessionAuth guards routes behind a valid bearer session token.
func SessionAuth(auth SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		if err := auth.ValidateSession(c.Request.Context(), token); err != nil {
			if errors.Is(err, services.ErrInvalidSession) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or invalid"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to validate session"})
			return
		}

		c.Set("session_token", token)
		c.Next()
	}
}
