// Package auth extracts and validates request principals. Identity
// management itself lives outside this service; the only contract here is
// that a request carries a signed principal claim.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common auth errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims carries the principal identity inside a bearer token. The principal
// doubles as the subject's own bucket name.
type Claims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

// Manager validates bearer tokens and mints them for tests and tooling.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewManager creates a new auth manager with an HMAC signing secret.
func NewManager(secret string) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: "convoshare",
		ttl:    24 * time.Hour,
	}
}

// GenerateToken mints a signed bearer token for a principal.
func (m *Manager) GenerateToken(principal string) (string, error) {
	if principal == "" {
		return "", fmt.Errorf("principal is required")
	}

	now := time.Now()
	claims := Claims{
		Principal: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidatePrincipal verifies a bearer token and returns the principal.
func (m *Manager) ValidatePrincipal(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Principal == "" {
		return "", ErrInvalidToken
	}

	return claims.Principal, nil
}
