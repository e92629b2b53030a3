package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

// AuthnMiddleware requires a valid access token in the Authorization header.
// Refresh tokens are rejected even though they carry a valid signature. The
// request logger gains a user_id attribute on success.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				desc := "token malformed"
				if errors.Is(err, jwtx.ErrExpired) {
					desc = "token expired"
				} else {
					slogx.FromContext(r.Context()).Warn("jwt verify failed", "err", err)
				}
				writeBearerError(w, desc)
				return
			}
			if claims.ValidateUse(jwtx.UseAccess) != nil {
				writeBearerError(w, "access token required")
				return
			}

			ctx := slogx.With(withClaims(r.Context(), claims), "user_id", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credential of an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeBearerError answers 401 with an RFC 6750 challenge.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":   "Unauthorized",
		"message": desc,
	})
}
