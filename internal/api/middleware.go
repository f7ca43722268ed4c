package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsMiddleware allows browser-based OPDS/reader clients on a
// different origin, matching the teacher's permissive dev-mode CORS
// handling.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAuth validates a bearer token from the Authorization header
// or a query-string token param (the latter so OPDS readers and img
// tags that can't set headers can still authenticate).
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, fail("missing bearer token"))
			return
		}
		claims, err := s.issuer.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, fail("invalid or expired token"))
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("isAdmin", claims.IsAdmin)
		c.Next()
	}
}
