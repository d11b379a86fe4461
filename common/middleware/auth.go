package middleware

import (
	"net/http"
	"strings"

	"github.com/aarthurxk/calibrasil-sub001/common/auth"
	"github.com/gin-gonic/gin"
)

// Context keys set by AdminAuth.
const (
	UserContextKey = "userID"
	RoleContextKey = "role"
	ActorKey       = "actor"
)

// AdminAuth accepts a bearer JWT (or the access_token cookie set by the API
// gateway) and requires the admin role.
func AdminAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			if v, err := c.Cookie("access_token"); err == nil {
				tokenString = v
			}
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			c.Abort()
			return
		}

		claims, err := auth.ParseAndValidateToken(key, tokenString, "")
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		if claims.Role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			c.Abort()
			return
		}

		actor := claims.Email
		if actor == "" {
			actor = claims.Subject
		}
		c.Set(UserContextKey, claims.Subject)
		c.Set(RoleContextKey, claims.Role)
		c.Set(ActorKey, actor)
		c.Next()
	}
}

// GetActor returns who is acting on an admin request.
func GetActor(c *gin.Context) string {
	if v, ok := c.Get(ActorKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "admin"
}
