// Package auth issues and checks the admin tokens that guard the auditor
// endpoints.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrBadSecret is returned by Exchange when the presented admin secret is wrong
// or no secret is configured.
var ErrBadSecret = errors.New("invalid admin secret")

const defaultAdminTTL = 8 * time.Hour

// Claims are the JWT claims of an admin token.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
}

// TokenIssuer signs admin tokens with HMAC-SHA256 keyed by the admin secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. An empty secret yields an issuer that
// refuses every exchange.
func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Enabled reports whether an admin secret is configured.
func (t *TokenIssuer) Enabled() bool { return len(t.secret) > 0 }

// Exchange issues an admin token in exchange for the static admin secret.
func (t *TokenIssuer) Exchange(secret string, ttl time.Duration) (string, error) {
	if !t.Enabled() || subtle.ConstantTimeCompare([]byte(secret), t.secret) != 1 {
		return "", ErrBadSecret
	}
	return t.IssueAdminToken(ttl)
}

// IssueAdminToken creates a signed admin token.
func (t *TokenIssuer) IssueAdminToken(ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = defaultAdminTTL
	}
	now := t.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Type: "admin",
		Role: "admin",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an admin token, returning its claims.
func (t *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	if !t.Enabled() {
		return nil, errors.New("admin tokens are disabled")
	}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify admin token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	return claims, nil
}
