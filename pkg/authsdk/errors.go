package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/TimurCravtov/CraftHub/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest           = "invalid_request"
	ErrorCodeInvalidCredentials       = "invalid_credentials"
	ErrorCodeTokenExpired             = "token_expired"
	ErrorCodeTokenMalformed           = "token_malformed"
	ErrorCodeMissingRefreshToken      = "missing_refresh_token"
	ErrorCodeInvalidTwoFactorCode     = "invalid_two_factor_code"
	ErrorCodeNoTwoFactorEnrollment    = "no_two_factor_enrollment_in_progress"
	ErrorCodeTwoFactorAlreadyEnabled  = "two_factor_already_enabled"
	ErrorCodeTwoFactorNotEnabled      = "two_factor_not_enabled"
	ErrorCodePhoneNumberRequired      = "phone_number_required"
	ErrorCodeUnsupportedTwoFactorType = "unsupported_two_factor_type"
	ErrorCodeSmsDispatchFailed        = "sms_dispatch_failed"
	ErrorCodeTwoFactorStateChanged    = "two_factor_state_changed"
	ErrorCodeUnsupportedOAuthProvider = "unsupported_oauth_provider"
	ErrorCodeOAuthExchangeFailed      = "oauth_exchange_failed"
	ErrorCodeWeakPassword             = "weak_password"
	ErrorCodeEmailAlreadyExists       = "email_already_exists"
	ErrorCodeUserNotFound             = "user_not_found"
	ErrorCodeServerError              = "server_error"
	ErrorCodeRateLimited              = "Too Many Requests"
	ErrorCodeUnauthorized             = "Unauthorized"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the error body shared by the server and the SDK. Handlers
// write it with WriteError; the SDK returns it from failed calls.
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"error"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// WriteError writes e as a JSON response with its status code.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   e.Code,
		Message: e.Message,
		Errors:  e.Errors,
	})
}

// WithStatus returns a copy of e that is written with a different status.
func (e *APIError) WithStatus(status int) *APIError {
	c := *e
	c.StatusCode = status
	return &c
}

func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidRequest,
		Message:    "the request is malformed or missing required fields",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidCredentials,
		Message:    "invalid email or password",
	}

	ErrTokenExpired = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeTokenExpired,
		Message:    "token expired",
	}

	ErrTokenMalformed = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeTokenMalformed,
		Message:    "token malformed",
	}

	ErrMissingRefreshToken = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeMissingRefreshToken,
		Message:    "refresh token cookie is missing",
	}

	ErrInvalidTwoFactorCode = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidTwoFactorCode,
		Message:    "invalid two-factor code",
	}

	ErrNoTwoFactorEnrollment = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeNoTwoFactorEnrollment,
		Message:    "no two-factor enrollment in progress",
	}

	ErrTwoFactorAlreadyEnabled = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeTwoFactorAlreadyEnabled,
		Message:    "two-factor authentication is already enabled",
	}

	ErrTwoFactorNotEnabled = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeTwoFactorNotEnabled,
		Message:    "two-factor authentication is not enabled",
	}

	ErrTwoFactorStateChanged = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeTwoFactorStateChanged,
		Message:    "two-factor settings changed during the request, try again",
	}

	ErrPhoneNumberRequired = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodePhoneNumberRequired,
		Message:    "a phone number is required for SMS two-factor",
	}

	ErrUnsupportedTwoFactorType = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeUnsupportedTwoFactorType,
		Message:    "type must be TOTP or SMS",
	}

	ErrSmsDispatchFailed = &APIError{
		StatusCode: http.StatusBadGateway,
		Code:       ErrorCodeSmsDispatchFailed,
		Message:    "failed to send verification code",
	}

	ErrUnsupportedOAuthProvider = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeUnsupportedOAuthProvider,
		Message:    "unsupported OAuth provider",
	}

	ErrOAuthExchangeFailed = &APIError{
		StatusCode: http.StatusBadGateway,
		Code:       ErrorCodeOAuthExchangeFailed,
		Message:    "failed to authenticate with the OAuth provider",
	}

	ErrEmailAlreadyExists = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeEmailAlreadyExists,
		Message:    "an account with this email already exists",
	}

	ErrUserNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeUserNotFound,
		Message:    "user not found",
	}

	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeServerError,
		Message:    "internal server error",
	}
)

// WeakPassword builds the 403 response listing every violated rule.
func WeakPassword(violations []string) *APIError {
	return &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeWeakPassword,
		Message:    "password does not meet the strength requirements",
		Errors:     violations,
	}
}

// ============================================================================
// Two-factor challenge
// ============================================================================

// TwoFactorRequiredError is returned by SignIn and OAuthLogin when the
// server answers 202 Accepted. Pass its fields to VerifyTwoFactor together
// with the code.
type TwoFactorRequiredError struct {
	UserID   string
	Email    string
	Provider string
	Method   string
}

func (e *TwoFactorRequiredError) Error() string {
	return fmt.Sprintf("two-factor authentication required: method=%s", e.Method)
}

// Attempt returns a VerifyTwoFactorRequest identifying the same user.
func (e *TwoFactorRequiredError) Attempt(code string) VerifyTwoFactorRequest {
	if e.UserID != "" {
		return VerifyTwoFactorRequest{UserID: e.UserID, Code: code}
	}
	return VerifyTwoFactorRequest{Email: e.Email, Provider: e.Provider, Code: code}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.Error,
			Message:    errResp.Message,
			Errors:     errResp.Errors,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeServerError,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
