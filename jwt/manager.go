// Package jwt issues and verifies the signed session token handed to the
// host application after a completed login flow.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config tunes the token manager. Only HS256 is supported; the token is a
// session handle, not an access-control credential.
type Config struct {
	TTL    time.Duration
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// Manager signs and parses session tokens.
type Manager struct {
	config Config
}

// SessionClaims is the claim set carried by a session token.
type SessionClaims struct {
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and builds a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a secret")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// CreateSession signs a token binding the user, role and session id.
func (m *Manager) CreateSession(userID, role, sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Role: role,
		SID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// ParseSession verifies a token's signature and expiry and returns its
// claims.
func (m *Manager) ParseSession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return m.config.Secret, nil
		},
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.config.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
