package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestFanout_WritesToAllHandlers(t *testing.T) {
	var a, b bytes.Buffer
	l := slog.New(fanout{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	})
	l.Info("hello", "k", "v")
	l.Warn("careful")

	if !strings.Contains(a.String(), "hello") || !strings.Contains(a.String(), "careful") {
		t.Fatalf("first handler missing records: %s", a.String())
	}
	if strings.Contains(b.String(), "hello") {
		t.Fatalf("second handler must filter info: %s", b.String())
	}
	if !strings.Contains(b.String(), "careful") {
		t.Fatalf("second handler missing warn: %s", b.String())
	}
}

func TestMiddleware_SetsRequestIDAndCallSid(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(base))
	r.POST("/hook", func(c *gin.Context) {
		From(c.Request.Context()).Info("inside")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("CallSid=CA42"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected request id header")
	}
	if !strings.Contains(buf.String(), `"call_sid":"CA42"`) {
		t.Fatalf("expected call_sid in logs: %s", buf.String())
	}
}

func TestMiddleware_LevelFollowsStatusAndKeepsDownstreamAttrs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := gin.New()
	r.Use(Middleware(base))
	r.GET("/v1/stats", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(With(ctx, From(ctx).With("company_id", "acme")))
		c.Status(http.StatusForbidden)
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	line := buf.String()
	if !strings.Contains(line, `"level":"WARN"`) || !strings.Contains(line, `"company_id":"acme"`) {
		t.Fatalf("expected warn summary with company_id: %s", line)
	}
	if strings.Contains(line, "call_sid") {
		t.Fatalf("GET requests must not be tagged with call_sid: %s", line)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Fatalf("expected debug summary for health checks: %s", buf.String())
	}
}
