package authsdk

import "time"

// ============================================================================
// Requests
// ============================================================================

type SignUpRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountType string `json:"accountType,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyTwoFactorRequest identifies the user by UserID after a password
// sign-in, or by Email and Provider after a federated one.
type VerifyTwoFactorRequest struct {
	UserID   string `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`
	Code     string `json:"code"`
}

type OAuthLoginRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// UpdateUserRequest fields left empty are not changed.
type UpdateUserRequest struct {
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword,omitempty"`
	NewEmail        string `json:"newEmail,omitempty"`
	NewName         string `json:"newName,omitempty"`
	AccountType     string `json:"accountType,omitempty"`
}

// EnableTwoFactorRequest selects the method: "TOTP" or "SMS".
type EnableTwoFactorRequest struct {
	Type        string `json:"type"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type ConfirmTwoFactorRequest struct {
	Code string `json:"code"`
}

// ============================================================================
// Responses
// ============================================================================

// User is the public view of an account. Secrets and hashes never leave
// the server.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	AccountType      string    `json:"accountType"`
	Roles            []string  `json:"roles"`
	Provider         string    `json:"provider"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	TwoFactorMethod  string    `json:"twoFactorMethod,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AuthResponse is returned by every call that authenticates the caller. The
// refresh token travels separately, in the refreshToken cookie.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	User        *User  `json:"user,omitempty"`
}

// TwoFactorChallengeResponse is sent with 202 Accepted when a second factor
// is needed. UserID is omitted for federated sign-ins.
type TwoFactorChallengeResponse struct {
	TwoFactorRequired bool   `json:"twoFactorRequired"`
	UserID            string `json:"userId,omitempty"`
	Email             string `json:"email"`
	Provider          string `json:"provider,omitempty"`
	Method            string `json:"method,omitempty"`
}

type TOTPEnrollmentResponse struct {
	QRCode     string `json:"qrCode"`
	OTPAuthURL string `json:"otpauthUrl"`
	Secret     string `json:"secret"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// HealthResponse is the body of /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Codes    string `json:"codes,omitempty"`
}
