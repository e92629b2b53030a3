package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

const maxBodyBytes = 1 << 20

// serviceErrors maps service sentinels onto their wire form. Anything not
// listed is an internal error.
var serviceErrors = []struct {
	err error
	api *authsdk.APIError
}{
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrTokenExpired, authsdk.ErrTokenExpired},
	{service.ErrTokenMalformed, authsdk.ErrTokenMalformed},
	{service.ErrInvalidTwoFactorCode, authsdk.ErrInvalidTwoFactorCode},
	{service.ErrNoTwoFactorEnrollmentInProgress, authsdk.ErrNoTwoFactorEnrollment},
	{service.ErrTwoFactorAlreadyEnabled, authsdk.ErrTwoFactorAlreadyEnabled},
	{service.ErrTwoFactorNotEnabled, authsdk.ErrTwoFactorNotEnabled},
	{service.ErrPhoneNumberRequired, authsdk.ErrPhoneNumberRequired},
	{service.ErrTwoFactorStateChanged, authsdk.ErrTwoFactorStateChanged},
	{service.ErrSmsDispatchFailed, authsdk.ErrSmsDispatchFailed},
	{service.ErrUnsupportedOAuthProvider, authsdk.ErrUnsupportedOAuthProvider},
	{service.ErrOAuthExchangeFailed, authsdk.ErrOAuthExchangeFailed},
	{service.ErrEmailAlreadyExists, authsdk.ErrEmailAlreadyExists},
	{service.ErrUserNotFound, authsdk.ErrUserNotFound},
}

// apiError translates err. Internal errors are logged and replaced by a
// generic 500 so their text never reaches the client.
func apiError(r *http.Request, err error) *authsdk.APIError {
	var weak *service.WeakPasswordError
	if errors.As(err, &weak) {
		return authsdk.WeakPassword(weak.Errors)
	}

	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			return e.api
		}
	}

	slogx.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	return authsdk.ErrServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	apiError(r, err).WriteError(w)
}

// decodeBody reads a JSON request body of bounded size.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func invalidRequest(w http.ResponseWriter, r *http.Request, message string) {
	slogx.FromContext(r.Context()).Warn("invalid request", "path", r.URL.Path, "reason", message)
	authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, message).WriteError(w)
}
