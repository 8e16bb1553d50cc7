// README: Bearer token auth. Puts the caller's uid and role on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridebook/internal/http/response"
	"ridebook/internal/infra"
	"ridebook/internal/types"
)

const (
	ctxKeyUID  = "caller_uid"
	ctxKeyRole = "caller_role"

	bearerPrefix = "Bearer "
)

// Auth verifies "Authorization: Bearer <token>". Websocket clients, which cannot
// set headers from a browser, may pass the token as ?token= instead.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		var token string
		switch {
		case raw != "":
			if !strings.HasPrefix(raw, bearerPrefix) {
				response.AbortWithError(c, http.StatusUnauthorized, "invalid Authorization; expected Bearer <token>")
				return
			}
			token = strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
		case c.Query("token") != "":
			token = c.Query("token")
		}
		if token == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "missing token")
			return
		}

		tok, err := verifier.VerifyIDToken(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ctxKeyUID, tok.UID)
		c.Set(ctxKeyRole, roleFromClaims(tok.Claims))
		c.Next()
	}
}

// RequireRole rejects callers whose token carries a different role.
func RequireRole(role types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != string(role) {
			response.AbortWithError(c, http.StatusForbidden, "forbidden: "+string(role)+" only")
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}

func Caller(c *gin.Context) types.Identity {
	return types.Identity{UserID: types.ID(CallerUID(c)), Role: types.Role(CallerRole(c))}
}

func roleFromClaims(claims map[string]interface{}) string {
	role, _ := claims["role"].(string)
	switch types.Role(role) {
	case types.RoleClient, types.RoleDriver:
		return role
	}
	return ""
}
