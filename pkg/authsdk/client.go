package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// SDKClient is a client for the CraftHub auth service. It performs the
// unauthenticated calls and hands out a Session once the user is signed in.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SignUp creates a LOCAL account and signs it in.
func (c *SDKClient) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	resp, err := c.postJSON(ctx, "/api/auth/signup", req, nil)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp)
}

// SignIn authenticates with email and password. When the account has
// two-factor enabled the error is a *TwoFactorRequiredError.
func (c *SDKClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.postJSON(ctx, "/api/auth/signin", SignInRequest{Email: email, Password: password}, nil)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp)
}

// VerifyTwoFactor completes a sign-in that was answered with a challenge.
func (c *SDKClient) VerifyTwoFactor(ctx context.Context, req VerifyTwoFactorRequest) (*Session, error) {
	resp, err := c.postJSON(ctx, "/api/auth/verify-2fa", req, nil)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp)
}

// OAuthLogin exchanges an authorization code obtained from provider
// ("google", "github").
func (c *SDKClient) OAuthLogin(ctx context.Context, provider, code, redirectURI string) (*Session, error) {
	path := "/api/oauth/" + url.PathEscape(strings.ToLower(provider))
	resp, err := c.postJSON(ctx, path, OAuthLoginRequest{Code: code, RedirectURI: redirectURI}, nil)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp)
}

// Refresh trades a refresh token for a new access token and a rotated
// refresh token.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, string, error) {
	resp, err := c.postJSON(ctx, "/api/auth/refresh", nil, &http.Cookie{Name: RefreshCookieName, Value: refreshToken})
	if err != nil {
		return nil, "", err
	}
	rotated := refreshCookie(resp)

	var out AuthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, "", err
	}
	return &out, rotated, nil
}

// Logout asks the server to clear the refresh cookie.
func (c *SDKClient) Logout(ctx context.Context) error {
	resp, err := c.postJSON(ctx, "/api/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	var out MessageResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

// NewSessionFromTokens resumes a session from stored tokens.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return newSession(c, &AuthResponse{AccessToken: accessToken, ExpiresIn: expiresIn}, refreshToken)
}

// sessionFrom turns a 200 into a Session and a 202 into a
// TwoFactorRequiredError.
func (c *SDKClient) sessionFrom(resp *http.Response) (*Session, error) {
	if resp.StatusCode == http.StatusAccepted {
		var challenge TwoFactorChallengeResponse
		if err := decodeJSON(resp, &challenge, http.StatusAccepted); err != nil {
			return nil, err
		}
		return nil, &TwoFactorRequiredError{
			UserID:   challenge.UserID,
			Email:    challenge.Email,
			Provider: challenge.Provider,
			Method:   challenge.Method,
		}
	}

	refreshToken := refreshCookie(resp)
	var auth AuthResponse
	if err := decodeJSON(resp, &auth, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, &auth, refreshToken), nil
}

func (c *SDKClient) postJSON(ctx context.Context, path string, body any, cookie *http.Cookie) (*http.Response, error) {
	var r io.Reader
	headers := map[string]string{}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
		headers["Content-Type"] = "application/json"
	}
	if cookie != nil {
		headers["Cookie"] = cookie.String()
	}
	return c.doRequest(ctx, http.MethodPost, path, r, headers)
}

func refreshCookie(resp *http.Response) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == RefreshCookieName {
			return ck.Value
		}
	}
	return ""
}
