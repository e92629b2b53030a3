package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

// TwoFactorHandler manages the caller's own second factor.
type TwoFactorHandler struct {
	TwoFactorService *service.TwoFactorService
}

// HandleEnable handles POST /api/auth/me/enable-2fa. TOTP starts an
// enrollment that must be confirmed; SMS is enabled at once.
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrTokenMalformed.WriteError(w)
		return
	}

	var req authsdk.EnableTwoFactorRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}

	method, ok := domain.ParseTwoFactorMethod(req.Type)
	if !ok {
		authsdk.ErrUnsupportedTwoFactorType.WriteError(w)
		return
	}

	switch method {
	case domain.TwoFactorTOTP:
		enrollment, err := h.TwoFactorService.Enroll(ctx, userID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		log.Info("TOTP enrollment started", "user_id", userID)
		httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollmentResponse{
			QRCode:     enrollment.QRCode,
			OTPAuthURL: enrollment.OTPAuthURL,
			Secret:     enrollment.Secret,
		})

	case domain.TwoFactorSMS:
		if err := h.TwoFactorService.EnableSMS(ctx, userID, req.PhoneNumber); err != nil {
			writeServiceError(w, r, err)
			return
		}
		log.Info("SMS two-factor enabled", "user_id", userID)
		httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
			Message: "SMS two-factor authentication enabled",
		})
	}
}

// HandleConfirm handles POST /api/auth/me/confirm-2fa. A wrong code is a
// client error here, not an authentication failure.
func (h *TwoFactorHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrTokenMalformed.WriteError(w)
		return
	}

	var req authsdk.ConfirmTwoFactorRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		invalidRequest(w, r, "code is required")
		return
	}

	if err := h.TwoFactorService.Confirm(ctx, userID, code); err != nil {
		if errors.Is(err, service.ErrInvalidTwoFactorCode) {
			authsdk.ErrInvalidTwoFactorCode.WithStatus(http.StatusBadRequest).WriteError(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("TOTP enabled", "user_id", userID)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Message: "Two-factor authentication enabled",
	})
}

// HandleDisable handles POST /api/auth/me/disable-2fa
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrTokenMalformed.WriteError(w)
		return
	}

	if err := h.TwoFactorService.Disable(ctx, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("two-factor disabled", "user_id", userID)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Message: "Two-factor authentication disabled",
	})
}
