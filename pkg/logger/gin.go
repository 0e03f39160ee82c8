package logger

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-Id"

// Paths polled by probes and scrapers are summarized at debug level.
var quietPaths = map[string]bool{"/healthz": true, "/metrics": true}

// Middleware puts a request logger in the request context and writes one
// summary line per request. Telephony webhooks are tagged with the Twilio
// CallSid; attributes added downstream (for example the dashboard identity)
// appear on the summary line.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" || len(rid) > 64 {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLog := l.With("request_id", rid)
		if sid := callSid(c); sid != "" {
			reqLog = reqLog.With("call_sid", sid)
		}
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLog))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		ctx := c.Request.Context()
		final := From(ctx)
		switch {
		case status >= 500:
			final.ErrorContext(ctx, "request", attrs...)
		case status >= 400:
			final.WarnContext(ctx, "request", attrs...)
		case quietPaths[route]:
			final.DebugContext(ctx, "request", attrs...)
		default:
			final.InfoContext(ctx, "request", attrs...)
		}
	}
}

// callSid reads CallSid from Twilio form posts only; other bodies are left unread.
func callSid(c *gin.Context) string {
	if c.Request.Method != "POST" {
		return ""
	}
	if !strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		return ""
	}
	return c.PostForm("CallSid")
}
