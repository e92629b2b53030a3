package http

import (
	"net/http"
	"strings"

	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
)

// OAuthHandler completes a provider login started by the browser.
type OAuthHandler struct {
	FederationService *service.FederationService
	Cookies           CookieConfig
}

// HandleLogin handles POST /api/oauth/{provider}
func (h *OAuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(r.PathValue("provider"))

	var req authsdk.OAuthLoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		invalidRequest(w, r, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		invalidRequest(w, r, "code is required")
		return
	}

	outcome, err := h.FederationService.AuthenticateWithCode(r.Context(), req.Code, req.RedirectURI, provider)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeOutcome(w, h.Cookies, outcome, false)
}
