package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roomkit/console-backend/internal/auth"
	"github.com/roomkit/console-backend/pkg/response"
)

// ContextAPIKey is set to true in gin context when the request authenticated
// with the server-to-server API key.
const ContextAPIKey = "api_key_auth"

// APIKeyOrJWT returns a middleware that accepts either the configured
// X-API-Key header or a Bearer JWT. API-key callers get full access without a
// user identity.
func APIKeyOrJWT(apiKey string, jwtMiddleware gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got := c.GetHeader("X-API-Key"); got != "" {
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				response.Unauthorized(c, "invalid api key")
				c.Abort()
				return
			}
			c.Set(ContextAPIKey, true)
			c.Next()
			return
		}
		jwtMiddleware(c)
	}
}

// FlexibleAuth accepts an API key or a Bearer JWT, but unlike APIKeyOrJWT it
// lets requests with neither continue anonymously. Recording routes use it so
// access-secret holders can call without an account; the handler rejects
// anonymous requests that carry no valid secret.
func FlexibleAuth(apiKey string, jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got := c.GetHeader("X-API-Key"); got != "" {
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				response.Unauthorized(c, "invalid api key")
				c.Abort()
				return
			}
			c.Set(ContextAPIKey, true)
			c.Next()
			return
		}
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(c, "invalid authorization header")
				c.Abort()
				return
			}
			claims, err := jwtService.Validate(parts[1])
			if err != nil {
				response.Unauthorized(c, "invalid or expired token")
				c.Abort()
				return
			}
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUserRole, claims.Role)
			c.Set(ContextUserEmail, claims.Email)
		}
		c.Next()
	}
}
