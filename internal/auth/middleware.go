package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"apartner/internal/models"
	"apartner/internal/policy"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey   = "user_id"
	userTypeKey = "user_type"
)

// RoleLookup resolves the current user type. Roles change when a contract is
// signed, so the stored role wins over the one in the token.
type RoleLookup interface {
	UserType(ctx context.Context, userID uint) (models.UserType, error)
}

// Middleware validates bearer tokens and stores the caller in the context.
// roles may be nil, in which case the token's user type is trusted.
func (m *TokenManager) Middleware(roles RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Expected: Bearer <token>",
			})
			return
		}

		claims, err := m.ValidateToken(parts[1])
		if err != nil {
			slog.Debug("token validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		userType := claims.UserType
		if roles != nil {
			current, err := roles.UserType(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Unknown user",
				})
				return
			}
			userType = current
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userTypeKey, userType)

		c.Next()
	}
}

// RequirePermission rejects callers whose user type the table does not allow for op
func RequirePermission(table *policy.Table, op policy.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserType(c)
		if !ok || !table.Allows(op, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "You do not have permission to perform this action.",
			})
			return
		}
		c.Next()
	}
}

// GetUserID retrieves the user ID from the context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}

	id, ok := userID.(uint)
	return id, ok
}

// GetUserType retrieves the user type from the context
func GetUserType(c *gin.Context) (models.UserType, bool) {
	v, exists := c.Get(userTypeKey)
	if !exists {
		return "", false
	}

	role, ok := v.(models.UserType)
	return role, ok
}
