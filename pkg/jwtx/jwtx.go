// Package jwtx signs and verifies the service's HS256 access and refresh
// tokens.
package jwtx

import "errors"

type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// Verifier returns the claims of a token whose signature, issuer and time
// window all check out.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrWeakSecret = errors.New("jwtx: hmac secret must be at least 32 bytes")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrWrongUse    = errors.New("jwtx: token used for the wrong purpose")
)
