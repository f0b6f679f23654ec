package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucasmnrd/requestline/internal/service"
)

const djIDKey = "dj_id"

// bearerToken pulls the token out of the Authorization header.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireAuth rejects requests without a valid DJ token.
func RequireAuth(djSvc service.DJService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		djID, err := djSvc.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(djIDKey, djID)
		c.Next()
	}
}

// OptionalAuth resolves the DJ identity when a token is present but lets
// anonymous requests through. Ownership checks downstream decide what an
// anonymous caller may touch.
func OptionalAuth(djSvc service.DJService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if djID, err := djSvc.ParseToken(token); err == nil {
				c.Set(djIDKey, djID)
			}
		}
		c.Next()
	}
}

// djID returns the authenticated DJ id, or nil for anonymous callers.
func djID(c *gin.Context) *string {
	v, ok := c.Get(djIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}
