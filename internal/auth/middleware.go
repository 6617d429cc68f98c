package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sammogharabi/seda.fm-sub007/pkg/jwt"
)

// UserIDKey is where the middleware stores the verified caller id.
const UserIDKey = "user_id"

// Middleware verifies the caller's JWT. Token issuance happens elsewhere;
// this service only checks signatures. The token is taken from the
// Authorization header, the auth cookie, or a query param (WebSocket
// clients cannot set headers).
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie("auth_token")
		}
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
