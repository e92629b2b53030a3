package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACSecretLen is the shortest secret accepted for HS256.
const MinHMACSecretLen = 32

// HMAC signs and verifies HS256 tokens with a single static secret. The
// secret is loaded once at start-up and never rotated at runtime.
type HMAC struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewHMAC validates the secret length and returns a signer/verifier pair.
func NewHMAC(secret []byte, issuer string) (*HMAC, error) {
	if len(secret) < MinHMACSecretLen {
		return nil, ErrWeakSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &HMAC{key: key, issuer: issuer, now: time.Now}, nil
}

// WithClock returns a copy of h that reads time from now. Tests use it to
// verify tokens at a fixed instant.
func (h *HMAC) WithClock(now func() time.Time) *HMAC {
	cp := *h
	cp.now = now
	return &cp
}

func (h *HMAC) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign takes your claims and turns them into a signed JWT string.
func (h *HMAC) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(h.key)
}

// Verify checks signature, algorithm, expiry and issuer. Expired tokens with
// a valid signature report ErrExpired; everything else is ErrMalformed or
// ErrInvalidSig so callers can tell the two apart.
func (h *HMAC) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(h.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return h.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return Claims{}, ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, ErrInvalidSig
	default:
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}
