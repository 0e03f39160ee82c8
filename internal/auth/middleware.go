package auth

import (
	"net/http"
	"strings"
	"time"

	"voice-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAccessToken authenticates dashboard requests. The identity is put in
// the request context and tags the request logger; role checks are left to
// internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := m.Verify(tok, time.Now())
		if err != nil {
			logger.From(ctx).InfoContext(ctx, "dashboard token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx = WithIdentity(ctx, id)
		ctx = logger.With(ctx, logger.From(ctx).With("user_id", id.UserID, "company_id", id.CompanyID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
