package auth

import (
	"errors"
	"fmt"
	"time"

	"voice-assistant/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret      = errors.New("auth: JWT secret required")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrIncompleteIdentity = errors.New("auth: user, company and role required")
	ErrUnknownRole        = errors.New("auth: unknown role")
)

const clockSkew = 30 * time.Second

// Manager signs and checks HS256 dashboard tokens. Each token is bound to a
// single company and carries one role.
type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	knownRole func(string) bool
}

// NewManager builds a Manager. knownRole decides which roles may appear in a
// token; nil accepts any non-empty role.
func NewManager(cfg config.AuthConfig, knownRole func(string) bool) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		audience:  cfg.JWTAudience,
		ttl:       ttl,
		knownRole: knownRole,
	}, nil
}

func (m *Manager) check(id Identity) error {
	if id.UserID == "" || id.CompanyID == "" || id.Role == "" {
		return ErrIncompleteIdentity
	}
	if m.knownRole != nil && !m.knownRole(id.Role) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, id.Role)
	}
	return nil
}

// Issue signs a token for id that expires one TTL after now.
func (m *Manager) Issue(now time.Time, id Identity) (string, time.Time, error) {
	if err := m.check(id); err != nil {
		return "", time.Time{}, err
	}
	expires := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		CompanyID: id.CompanyID,
		Role:      id.Role,
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature, the validity window as seen at now, the
// issuer and audience when configured, and the identity the token carries.
func (m *Manager) Verify(token string, now time.Time) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return m.secret, nil }, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	id := claims.identity()
	if err := m.check(id); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return id, nil
}
