package main

import (
	"net/http"

	"voice-assistant/internal/auth"
	"voice-assistant/internal/config"
	"voice-assistant/internal/httpapi"
	"voice-assistant/internal/rbac"
	"voice-assistant/internal/telephony"
	"voice-assistant/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, a *app, authManager *auth.Manager, m *metrics.Metrics) {
	h := httpapi.Handlers{
		Auth:            authManager,
		Stats:           a.stats,
		Calls:           a.calls,
		Audio:           a.audio,
		AllowTokenIssue: !cfg.IsProduction(),
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/audio/:file", h.ServeAudio)

	// Provider webhooks (public, optionally signature-checked).
	{
		hooks := r.Group("/webhooks/twilio")
		if cfg.Twilio.ValidateSignature {
			hooks.Use(telephony.RequireTwilioSignature(cfg.Twilio.AuthToken, cfg.App.PublicBaseURL))
		}
		telephony.TwilioWebhookHandler{Engine: a.engine}.Register(hooks)
	}

	// Development token issuance sits outside the bearer check.
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	{
		v1.GET("/me", func(c *gin.Context) {
			id, err := auth.IdentityFrom(c.Request.Context())
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			c.JSON(http.StatusOK, id)
		})

		v1.GET("/stats", append(httpapi.RequireCompanyAndAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleViewer), h.GetStats)...)
		v1.GET("/calls/:call_id", append(httpapi.RequireCompanyAndAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleSupport), h.GetCall)...)
	}
}
