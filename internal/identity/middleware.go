package identity

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxClaimsKey = "identity_claims"

// Middleware resolves the caller's chain address from a bearer token and
// stashes it on the request context.
func Middleware(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
			c.Abort()
			return
		}

		raw := strings.TrimSpace(h[len("Bearer "):])
		claims, err := tokens.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// AdminMiddleware gates maintenance endpoints behind a shared secret header.
// With no secret configured every request is refused.
func AdminMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Admin-Secret")), []byte(secret)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// MustGetAddress returns the verified caller address, or "" when the route
// was not behind Middleware.
func MustGetAddress(c *gin.Context) string {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return ""
	}
	claims, _ := v.(*Claims)
	if claims == nil {
		return ""
	}
	return claims.Address
}
