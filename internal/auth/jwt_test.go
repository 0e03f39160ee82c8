package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-assistant/internal/config"

	"github.com/gin-gonic/gin"
)

func dashboardRoles(role string) bool { return role == "owner" || role == "viewer" }

func newManager(t *testing.T, cfg config.AuthConfig) *Manager {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "secret"
	}
	m, err := NewManager(cfg, dashboardRoles)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}, nil); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	m := newManager(t, config.AuthConfig{JWTIssuer: "issuer", JWTAudience: "aud", TokenTTL: 15 * time.Minute})

	now := time.Unix(1700000000, 0).UTC()
	tok, expires, err := m.Issue(now, Identity{UserID: "user-1", CompanyID: "acme", Role: "owner"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", expires)
	}

	id, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != (Identity{UserID: "user-1", CompanyID: "acme", Role: "owner"}) {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestIssue_RejectsUnknownRoleAndMissingCompany(t *testing.T) {
	m := newManager(t, config.AuthConfig{})
	now := time.Now()
	if _, _, err := m.Issue(now, Identity{UserID: "u", CompanyID: "acme", Role: "root"}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if _, _, err := m.Issue(now, Identity{UserID: "u", Role: "owner"}); !errors.Is(err, ErrIncompleteIdentity) {
		t.Fatalf("expected ErrIncompleteIdentity, got %v", err)
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	m := newManager(t, config.AuthConfig{TokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, _, err := m.Issue(now, Identity{UserID: "u", CompanyID: "acme", Role: "viewer"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(10*time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_RejectsOtherAudienceAndSecret(t *testing.T) {
	now := time.Now()
	id := Identity{UserID: "u", CompanyID: "acme", Role: "owner"}

	other := newManager(t, config.AuthConfig{JWTAudience: "billing"})
	tok, _, err := other.Issue(now, id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := newManager(t, config.AuthConfig{JWTAudience: "dashboard"}).Verify(tok, now); err == nil {
		t.Fatalf("expected audience mismatch")
	}
	if _, err := newManager(t, config.AuthConfig{JWTSecret: "different", JWTAudience: "billing"}).Verify(tok, now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
	}
	for in, want := range cases {
		if got, ok := bearerToken(in); !ok || got != want {
			t.Fatalf("%q: got %q %v", in, got, ok)
		}
	}
	for _, in := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		if _, ok := bearerToken(in); ok {
			t.Fatalf("%q must be rejected", in)
		}
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t, config.AuthConfig{TokenTTL: time.Hour})

	r := gin.New()
	r.GET("/me", RequireAccessToken(m), func(c *gin.Context) {
		id, err := IdentityFrom(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", w.Code)
	}

	tok, _, err := m.Issue(time.Now(), Identity{UserID: "u", CompanyID: "acme", Role: "owner"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"company_id":"acme"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
