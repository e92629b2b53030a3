package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Services override them from configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 180 * 24 * time.Hour
)

// Token use values carried in the "use" claim. A refresh token is never
// accepted where an access token is expected and vice versa.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are the claims embedded in every token we mint.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the display name of the authenticated user.
	Username string `json:"username,omitempty"`

	// Roles granted to the user, only present on access tokens.
	Roles []string `json:"roles,omitempty"`

	// Use is either UseAccess or UseRefresh.
	Use string `json:"use"`
}

// NewClaims builds minimally-correct claims.
func NewClaims(
	subject, username string,
	roles []string,
	use string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Username: username,
		Roles:    roles,
		Use:      use,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateUse checks the token was minted for the expected purpose.
func (c *Claims) ValidateUse(expected string) error {
	if c.Use != expected {
		return ErrWrongUse
	}
	return nil
}

// ValidateExpiry ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
