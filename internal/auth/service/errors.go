package service

import (
	"errors"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenMalformed     = errors.New("token_malformed")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrEmailAlreadyExists = errors.New("email_already_exists")

	ErrTwoFactorRequired               = errors.New("two_factor_required")
	ErrInvalidTwoFactorCode            = errors.New("invalid_two_factor_code")
	ErrNoTwoFactorEnrollmentInProgress = errors.New("no_two_factor_enrollment_in_progress")
	ErrTwoFactorAlreadyEnabled         = errors.New("two_factor_already_enabled")
	ErrTwoFactorNotEnabled             = errors.New("two_factor_not_enabled")
	ErrPhoneNumberRequired             = errors.New("phone_number_required")
	ErrSmsDispatchFailed               = errors.New("sms_dispatch_failed")
	ErrTwoFactorStateChanged           = errors.New("two_factor_state_changed")

	ErrUnsupportedOAuthProvider = errors.New("unsupported_oauth_provider")
	ErrOAuthExchangeFailed      = errors.New("oauth_exchange_failed")
)

// WeakPasswordError carries every password rule the input violated.
type WeakPasswordError struct {
	Errors []string
}

func (e *WeakPasswordError) Error() string {
	return "weak_password: " + strings.Join(e.Errors, "; ")
}
