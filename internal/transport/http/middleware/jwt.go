package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pagewise/internal/pkg/jwtutil"
	"pagewise/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// AuthJWT admits requests carrying a valid HS256 bearer token and stores the
// caller on the context for handlers.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, reason := bearerToken(c.GetHeader("Authorization"))
		if reason != "" {
			unauthorized(c, reason)
			return
		}

		claims, err := jwtutil.ParseToken(secret, raw)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header. The scheme is
// matched case-insensitively. reason is empty on success.
func bearerToken(header string) (token, reason string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization scheme"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

func unauthorized(c *gin.Context, reason string) {
	c.Header("WWW-Authenticate", `Bearer realm="pagewise"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.APIResponse{
		Code:    response.CodeUnauthorized,
		Message: reason,
	})
}
