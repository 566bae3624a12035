// Package auth issues and verifies the access tokens of the self-hosted
// backend, hashes passwords and generates demo credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Bota93/spendesk/internal/core"
)

// Claims is the payload of an access token. The token id (jti) names the
// server-side session row so the token can be revoked.
type Claims struct {
	Email  string `json:"email"`
	IsDemo bool   `json:"is_demo"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer returns an issuer for secret. now may be nil.
func NewIssuer(secret string, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), issuer: "spendesk", now: now}
}

// Issue signs a token for user that names session sessionID and expires at
// expiresAt.
func (i *Issuer) Issue(user core.User, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		Email:  user.Email,
		IsDemo: user.IsDemo,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its claims. Any verification failure is
// reported as core.ErrUnauthenticated.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", core.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, core.ErrUnauthenticated
	}
	return claims, nil
}

// User rebuilds the user carried by c.
func (c *Claims) User() core.User {
	return core.User{ID: c.Subject, Email: c.Email, IsDemo: c.IsDemo}
}
