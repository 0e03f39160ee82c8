package httpapi

import (
	"errors"
	"net/http"
	"time"

	"voice-assistant/internal/audiocache"
	"voice-assistant/internal/auth"
	"voice-assistant/internal/calls"
	"voice-assistant/internal/rbac"
	"voice-assistant/internal/reporting"
	"voice-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth  *auth.Manager
	Stats *reporting.Service
	Calls calls.Store
	Audio audiocache.Store

	// AllowTokenIssue enables POST /v1/auth/token. Never set in production.
	AllowTokenIssue bool

	Now func() time.Time
}

const defaultStatsWindow = 30 * 24 * time.Hour

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type tokenRequest struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

// IssueToken issues a dashboard token without checking credentials.
// It only exists for local development and is disabled in production.
func (h Handlers) IssueToken(c *gin.Context) {
	if !h.AllowTokenIssue {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tok, expires, err := h.Auth.Issue(h.now(), auth.Identity{UserID: req.UserID, CompanyID: req.CompanyID, Role: req.Role})
	if errors.Is(err, auth.ErrIncompleteIdentity) || errors.Is(err, auth.ErrUnknownRole) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, company_id, valid role required"})
		return
	}
	if err != nil {
		logger.From(c.Request.Context()).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok, "expires_at": expires.UTC().Format(time.RFC3339)})
}

// --- Stats ---

// GetStats aggregates the company's calls. from/to accept RFC 3339 or
// YYYY-MM-DD; the default window is the last 30 days.
func (h Handlers) GetStats(c *gin.Context) {
	if h.Stats == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats not configured"})
		return
	}
	companyID, ok := rbac.CompanyScope(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "company_id required"})
		return
	}

	to := h.now()
	from := to.Add(-defaultStatsWindow)
	var err error
	if v := c.Query("to"); v != "" {
		if to, err = parseTime(v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
	}
	if v := c.Query("from"); v != "" {
		if from, err = parseTime(v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
	}

	stats, err := h.Stats.CallStats(c.Request.Context(), reporting.StatsRequest{
		CompanyID: companyID,
		Range:     reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.From(c.Request.Context()).Error("stats failed", "company_id", companyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

// --- Calls ---

// GetCall returns one call with its transcript. Calls of other companies are
// reported as not found.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	companyID, ok := rbac.CompanyScope(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "company_id required"})
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, calls.ErrNotFound) || (err == nil && call.CompanyID != companyID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.From(c.Request.Context()).Error("call lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, call)
}

// --- Audio ---

// ServeAudio streams a cached TTS entry. Twilio fetches these for <Play>.
func (h Handlers) ServeAudio(c *gin.Context) {
	if h.Audio == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "audio not configured"})
		return
	}
	rc, entry, err := h.Audio.Open(c.Request.Context(), c.Param("file"))
	switch {
	case errors.Is(err, audiocache.ErrInvalidName):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return
	case errors.Is(err, audiocache.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "audio not found"})
		return
	case err != nil:
		logger.From(c.Request.Context()).Error("audio open failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audio failed"})
		return
	}
	defer rc.Close()

	// Entries are content-addressed and never change.
	c.DataFromReader(http.StatusOK, entry.Size, audiocache.ContentType(entry.Format), rc, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
	})
}

// Convenience middleware bundles.

func RequireCompanyAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireCompany(), rbac.RequireAnyRole(roles...)}
}
