package http

import (
	"net/http"
	"strings"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/password"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

// maxPasswordBytes bounds any password field before it reaches the validator
// or the hasher. It leaves room for MaxLength four-byte runes plus padding.
const maxPasswordBytes = 1024

// AuthHandler serves sign-up, sign-in and the account endpoints under
// /api/auth.
type AuthHandler struct {
	AuthService *service.AuthService
	Cookies     CookieConfig
}

func userView(u domain.User) *authsdk.User {
	return &authsdk.User{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		AccountType:      string(u.AccountType),
		Roles:            u.Roles,
		Provider:         string(u.Provider),
		TwoFactorEnabled: u.TwoFactor.Enabled,
		TwoFactorMethod:  string(u.TwoFactor.Method),
		CreatedAt:        u.CreatedAt,
	}
}

// writeOutcome sends 200 with the access token and the refresh cookie, or
// 202 with the second-factor challenge. withUserID is false for federated
// sign-ins, which are completed by email and provider.
func writeOutcome(w http.ResponseWriter, cookies CookieConfig, outcome domain.SignInOutcome, withUserID bool) {
	if outcome.Kind == domain.OutcomeTwoFactorRequired {
		c := outcome.Challenge
		resp := authsdk.TwoFactorChallengeResponse{
			TwoFactorRequired: true,
			Email:             c.Email,
			Provider:          string(c.Provider),
			Method:            string(c.Method),
		}
		if withUserID {
			resp.UserID = c.UserID
		}
		httpx.WriteJSON(w, http.StatusAccepted, resp)
		return
	}

	cookies.setRefresh(w, outcome.Tokens.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthResponse{
		AccessToken: outcome.Tokens.AccessToken,
		ExpiresIn:   int(outcome.Tokens.ExpiresIn.Seconds()),
		User:        userView(outcome.User),
	})
}

// parseAccountType treats an empty value as "not set".
func parseAccountType(s string) (domain.AccountType, bool) {
	if strings.TrimSpace(s) == "" {
		return "", true
	}
	return domain.ParseAccountType(s)
}

// HandleSignUp handles POST /api/auth/signup
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignUpRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || !strings.Contains(req.Email, "@") {
		invalidRequest(w, r, "name and a valid email are required")
		return
	}
	accountType, ok := parseAccountType(req.AccountType)
	if !ok {
		invalidRequest(w, r, "accountType must be BUYER or SELLER")
		return
	}
	if len(req.Password) > maxPasswordBytes {
		authsdk.WeakPassword([]string{password.MsgTooLong}).WriteError(w)
		return
	}

	outcome, err := h.AuthService.SignUp(r.Context(), service.SignUpInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		AccountType: accountType,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeOutcome(w, h.Cookies, outcome, true)
}

// HandleSignIn handles POST /api/auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignInRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		invalidRequest(w, r, "email and password are required")
		return
	}

	if len(req.Password) > maxPasswordBytes {
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	}

	outcome, err := h.AuthService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeOutcome(w, h.Cookies, outcome, true)
}

// HandleVerifyTwoFactor handles POST /api/auth/verify-2fa
func (h *AuthHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyTwoFactorRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Code) == "" || (req.UserID == "" && req.Email == "") {
		invalidRequest(w, r, "code and either userId or email are required")
		return
	}

	attempt := service.TwoFactorAttempt{
		UserID: req.UserID,
		Email:  req.Email,
		Code:   strings.TrimSpace(req.Code),
	}
	if req.Provider != "" {
		p, ok := domain.ParseAuthProvider(req.Provider)
		if !ok {
			invalidRequest(w, r, "unknown provider")
			return
		}
		attempt.Provider = p
	}

	outcome, err := h.AuthService.CompleteTwoFactor(r.Context(), attempt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeOutcome(w, h.Cookies, outcome, true)
}

// HandleRefresh handles POST /api/auth/refresh. The refresh token is read
// from the cookie and rotated on success.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(authsdk.RefreshCookieName)
	if err != nil || ck.Value == "" {
		authsdk.ErrMissingRefreshToken.WriteError(w)
		return
	}

	tokens, u, err := h.AuthService.Refresh(r.Context(), ck.Value)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("refresh rejected", "err", err)
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.setRefresh(w, tokens.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthResponse{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   int(tokens.ExpiresIn.Seconds()),
		User:        userView(u),
	})
}

// HandleLogout handles POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.clearRefresh(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Logged out"})
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrTokenMalformed.WriteError(w)
		return
	}

	u, err := h.AuthService.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userView(u))
}

// HandleUpdateUser handles PUT /api/auth/update-user
func (h *AuthHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrTokenMalformed.WriteError(w)
		return
	}

	var req authsdk.UpdateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}
	accountType, ok := parseAccountType(req.AccountType)
	if !ok {
		invalidRequest(w, r, "accountType must be BUYER or SELLER")
		return
	}
	if req.NewEmail != "" && !strings.Contains(req.NewEmail, "@") {
		invalidRequest(w, r, "newEmail is not a valid email")
		return
	}
	if len(req.CurrentPassword) > maxPasswordBytes {
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	}
	if len(req.NewPassword) > maxPasswordBytes {
		authsdk.WeakPassword([]string{password.MsgTooLong}).WriteError(w)
		return
	}

	u, err := h.AuthService.UpdateUser(r.Context(), userID, service.UpdateUserInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		NewEmail:        req.NewEmail,
		NewName:         req.NewName,
		AccountType:     accountType,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("user updated", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusOK, userView(u))
}
