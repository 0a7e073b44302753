package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth enforces bearer JWT tokens signed with HS256. The token
// subject (admin email) is stored on the context for handlers.
func AdminAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := ParseAccess(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Set("adminEmail", claims.Subject)
		c.Next()
	}
}
