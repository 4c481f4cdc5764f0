package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	visitorIDContextKey = "auth_visitor_id"
	authTokenContextKey = "auth_token"
)

// Middleware validates visitor tokens and stores the visitor id in the
// request context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}
		visitorID, err := s.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(visitorIDContextKey, visitorID)
		c.Set(authTokenContextKey, token)
		c.Next()
	}
}

// VisitorIDFromContext retrieves the authenticated visitor id from the gin
// context.
func VisitorIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(visitorIDContextKey)
	if !ok {
		return 0, false
	}
	visitorID, ok := val.(int64)
	return visitorID, ok
}

// AuthTokenFromContext retrieves the token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
