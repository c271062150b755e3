package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/sessions"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middlewares.
const (
	ClaimsKey      = "claims"
	ActorKey       = "actor"
	AccessTokenKey = "accessToken"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (ch Chain) Verify(ctx context.Context, raw string) (Token, error) {
	var errs []error
	for _, v := range ch {
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

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	var token string
	if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 || token == "" {
		return "", false
	}
	return token, true
}

// authenticate verifies raw and stores claims and actor on the context.
func authenticate(c *gin.Context, ver Verifier, raw string) (int, string) {
	revoked, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), raw)
	if err != nil {
		logger.Warnf("blacklist lookup failed: %v", err)
	}
	if revoked {
		return http.StatusUnauthorized, "token revoked"
	}

	idToken, err := ver.Verify(c.Request.Context(), raw)
	if err != nil {
		logger.Debugf("token rejected: %v", err)
		return http.StatusUnauthorized, "invalid token"
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return http.StatusUnauthorized, "failed to parse claims"
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return http.StatusUnauthorized, "token has no subject"
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = models.RoleAlumni
	}

	c.Set(ClaimsKey, claims)
	c.Set(ActorKey, models.Actor{ID: sub, Role: role})
	c.Set(AccessTokenKey, raw)
	return 0, ""
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		if status, msg := authenticate(c, ver, raw); status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid bearer token is present and
// lets anonymous requests through. An invalid token is still rejected.
func OptionalAuth(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		if status, msg := authenticate(c, ver, raw); status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not listed. It must
// run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires role " + strings.Join(roles, " or ")})
	}
}

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return models.Actor{}, false
	}
	a, ok := v.(models.Actor)
	return a, ok
}

// AccessToken returns the raw bearer token of the authenticated request.
func AccessToken(c *gin.Context) string {
	return c.GetString(AccessTokenKey)
}
