// README: Bearer-token auth middleware; exposes the caller id and role to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridehail/internal/errs"
	"ridehail/internal/infra"
	"ridehail/internal/types"
)

const (
	ctxKeyUID  = "caller_uid"
	ctxKeyRole = "caller_role"
)

// Auth verifies the Authorization: Bearer header with verifier. Tokens without
// a role claim are treated as passengers.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		role := types.RolePassenger
		if v, ok := token.Claims["role"].(string); ok && v != "" {
			role = types.Role(v)
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyRole, role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "role not allowed")
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

func CallerRole(c *gin.Context) types.Role {
	v, _ := c.Get(ctxKeyRole)
	role, _ := v.(types.Role)
	return role
}

// Actor is the authenticated caller as the core modules see it.
func Actor(c *gin.Context) types.Actor {
	return types.Actor{ID: types.ID(CallerUID(c)), Role: CallerRole(c)}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": errs.CodeUnauthorized})
}
