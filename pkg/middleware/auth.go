package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/postboard/postboard/backend/go-services/internal/sessions"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	var errs []error
	for _, v := range c {
		if v == nil {
			continue
		}
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}

// BearerToken extracts the raw token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	var token string
	if n, _ := fmt.Sscanf(header, "Bearer %s", &token); n != 1 || token == "" {
		return "", false
	}
	return token, true
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := BearerToken(auth)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		black, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), token)
		if err != nil {
			// blacklist unavailable: keep serving, the token is still verified below
			logger.Warnf("token blacklist lookup failed: %v", err)
		}
		if black {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debugf("token verification failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}

		c.Set("claims", claims)
		c.Set("token", token)
		c.Next()
	}
}

// Claims returns the verified claims placed by AuthMiddleware, or nil.
func Claims(c *gin.Context) map[string]interface{} {
	v, ok := c.Get("claims")
	if !ok {
		return nil
	}
	cm, _ := v.(map[string]interface{})
	return cm
}

// Subject returns the stable id of the authenticated caller. Tokens issued by
// Keycloak carry "sub"; tokens minted by older clients sometimes only carry
// "id" or "_id".
func Subject(c *gin.Context) string {
	cm := Claims(c)
	for _, k := range []string{"sub", "id", "_id"} {
		if s, ok := cm[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// HasRole reports whether claims grant role, looking at "role", "roles" and
// Keycloak's "realm_access.roles".
func HasRole(claims map[string]interface{}, role string) bool {
	if r, ok := claims["role"].(string); ok && strings.EqualFold(r, role) {
		return true
	}
	if containsRole(claims["roles"], role) {
		return true
	}
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		return containsRole(ra["roles"], role)
	}
	return false
}

func containsRole(v interface{}, role string) bool {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok && strings.EqualFold(s, role) {
				return true
			}
		}
	case []string:
		for _, s := range t {
			if strings.EqualFold(s, role) {
				return true
			}
		}
	}
	return false
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasRole(Claims(c), role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
