package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrade/internal/auth"
)

const userIDKey = "user_id"

// Authenticated rejects requests without a valid Bearer access token and
// stores the token's user id in the gin context.
func Authenticated(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		id, err := authSvc.VerifyAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userIDKey, id)
		c.Next()
	}
}
