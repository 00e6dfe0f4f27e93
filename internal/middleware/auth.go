package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rapidride/internal/auth"
	"rapidride/internal/domain"
)

// Context keys set by Authenticate.
const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
	contextKeyClaims = "claims"
)

// TokenParser validates session tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// exposes the session claims on the gin context.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after
// Authenticate.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Role(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "access denied for role " + string(role),
		})
	}
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// Role returns the authenticated user's role.
func Role(c *gin.Context) domain.Role {
	if v, ok := c.Get(ContextKeyRole); ok {
		if role, ok := v.(domain.Role); ok {
			return role
		}
	}
	return ""
}

// Claims returns the session claims, or nil on unauthenticated routes.
func Claims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(contextKeyClaims); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}
