package api

import (
	"net/http"
	"strings"

	"storylab-server/models"

	"github.com/gin-gonic/gin"
)

const currentUserKey = "currentUser"

// RequireAuth resolves the caller from the bearer token on every protected
// request. Missing/invalid/expired tokens and unknown subjects all come back
// as 401.
func (h *Handlers) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		subject, err := h.Tokens.Subject(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		user, err := models.GetUserByID(h.DB, subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(currentUserKey, user.Public())
		c.Next()
	}
}

func currentUser(c *gin.Context) models.PublicUser {
	return c.MustGet(currentUserKey).(models.PublicUser)
}
