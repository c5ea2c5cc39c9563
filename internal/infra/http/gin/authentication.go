package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"learnhub/internal/app/policies"
	"learnhub/internal/app/services/auth"
)

const principalContextKey = "learnhub.principal"

type principal struct {
	ID          string
	DisplayName string
	Role        string
}

type AuthMiddleware struct {
	Service *auth.Service
	Logger  *slog.Logger
}

// Handle resolves the bearer token when present. Anonymous requests pass through and
// are rejected by handlers that need a principal.
func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Service == nil {
		c.Next()
		return
	}
	resolved, err := m.Service.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, policies.ErrDirectoryUnavailable) {
			if m.Logger != nil {
				m.Logger.Error("principal lookup failed", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "user directory unavailable"})
			return
		}
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{
		ID:          string(resolved.ID),
		DisplayName: resolved.Profile.DisplayName,
		Role:        string(resolved.Profile.Role),
	})
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
	c.Set("user_id", p.ID)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requirePrincipal(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
