package service

import (
	"errors"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
)

// TokenService mints and checks the bearer tokens handed to clients.
type TokenService struct {
	Signer     jwtx.Signer
	Verifier   jwtx.Verifier
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Metrics    *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewTokenService builds a TokenService around a single HMAC key. Zero TTLs
// fall back to the jwtx defaults.
func NewTokenService(h *jwtx.HMAC, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return &TokenService{
		Signer:     h,
		Verifier:   h,
		Issuer:     issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue mints an access/refresh pair for user. Roles are only embedded in
// the access token.
func (s *TokenService) Issue(user domain.User) (domain.TokenPair, error) {
	now := s.now()

	access, err := s.Signer.Sign(jwtx.NewClaims(user.ID, user.Name, user.Roles, jwtx.UseAccess, s.AccessTTL, s.Issuer, now))
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.Signer.Sign(jwtx.NewClaims(user.ID, user.Name, nil, jwtx.UseRefresh, s.RefreshTTL, s.Issuer, now))
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.TokenIssued(jwtx.UseAccess)
	s.Metrics.TokenIssued(jwtx.UseRefresh)

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Validate verifies token and returns its claims. An expired token with a
// valid signature yields ErrTokenExpired; any other failure is
// ErrTokenMalformed.
func (s *TokenService) Validate(token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrExpired):
		return jwtx.Claims{}, ErrTokenExpired
	default:
		return jwtx.Claims{}, ErrTokenMalformed
	}
}

// Refresh checks that refreshToken is a live refresh token belonging to
// user and mints a new pair. The refresh token is rotated every time.
func (s *TokenService) Refresh(refreshToken string, user domain.User) (domain.TokenPair, error) {
	claims, err := s.Validate(refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if claims.ValidateUse(jwtx.UseRefresh) != nil || claims.Subject != user.ID {
		return domain.TokenPair{}, ErrTokenMalformed
	}
	return s.Issue(user)
}

// ExtractUserID returns the subject of a valid access token.
func (s *TokenService) ExtractUserID(token string) (string, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return "", err
	}
	if claims.ValidateUse(jwtx.UseAccess) != nil {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}
