package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Session represents a signed-in user. The access token is refreshed
// automatically through the refresh cookie once it expires.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	user         *User
}

func newSession(client *SDKClient, auth *AuthResponse, refreshToken string) *Session {
	s := &Session{client: client, refreshToken: refreshToken, user: auth.User}
	s.setAccess(auth)
	return s
}

// setAccess must be called with mu held or before the session is shared.
func (s *Session) setAccess(auth *AuthResponse) {
	s.accessToken = auth.AccessToken
	// Refresh 30 seconds before actual expiry.
	s.expiresAt = time.Now().Add(time.Duration(auth.ExpiresIn)*time.Second - 30*time.Second)
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// Refresh forces a token refresh, rotating the refresh token.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return fmt.Errorf("access token expired and no refresh token available")
	}

	auth, rotated, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	s.setAccess(auth)
	if rotated != "" {
		s.refreshToken = rotated
	}
	return nil
}

// Logout clears the server cookie and forgets the tokens.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.accessToken, s.refreshToken = "", ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	return nil
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// User returns the account returned at sign-in, if the server sent one.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// ============================================================================
// Account operations
// ============================================================================

// Me fetches the signed-in user's profile.
func (s *Session) Me(ctx context.Context) (*User, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/api/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var u User
	if err := decodeJSON(resp, &u, http.StatusOK); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser changes profile fields. LOCAL accounts must set CurrentPassword.
func (s *Session) UpdateUser(ctx context.Context, req UpdateUserRequest) (*User, error) {
	var u User
	if err := s.sendJSON(ctx, http.MethodPut, "/api/auth/update-user", req, &u); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return &u, nil
}

// EnableTOTP starts TOTP enrollment. The returned QR code must be scanned
// and the first code passed to ConfirmTwoFactor.
func (s *Session) EnableTOTP(ctx context.Context) (*TOTPEnrollmentResponse, error) {
	var out TOTPEnrollmentResponse
	if err := s.sendJSON(ctx, http.MethodPost, "/api/auth/me/enable-2fa", EnableTwoFactorRequest{Type: "TOTP"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnableSMS turns on SMS two-factor for phoneNumber.
func (s *Session) EnableSMS(ctx context.Context, phoneNumber string) error {
	var out MessageResponse
	return s.sendJSON(ctx, http.MethodPost, "/api/auth/me/enable-2fa", EnableTwoFactorRequest{Type: "SMS", PhoneNumber: phoneNumber}, &out)
}

// ConfirmTwoFactor completes TOTP enrollment.
func (s *Session) ConfirmTwoFactor(ctx context.Context, code string) error {
	var out MessageResponse
	return s.sendJSON(ctx, http.MethodPost, "/api/auth/me/confirm-2fa", ConfirmTwoFactorRequest{Code: code}, &out)
}

// DisableTwoFactor turns off whichever method is enabled.
func (s *Session) DisableTwoFactor(ctx context.Context) error {
	var out MessageResponse
	return s.sendJSON(ctx, http.MethodPost, "/api/auth/me/disable-2fa", nil, &out)
}

func (s *Session) sendJSON(ctx context.Context, method, path string, body, target any) error {
	var buf *bytes.Reader
	headers := map[string]string{}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		buf = bytes.NewReader(b)
		headers["Content-Type"] = "application/json"
	}

	var resp *http.Response
	var err error
	if buf != nil {
		resp, err = s.doAuthRequest(ctx, method, path, buf, headers)
	} else {
		resp, err = s.doAuthRequest(ctx, method, path, nil, headers)
	}
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}
