package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
)

// CookieConfig controls the refresh-token cookie.
type CookieConfig struct {
	MaxAge   time.Duration
	SameSite http.SameSite
	Secure   bool
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		MaxAge:   7 * 24 * time.Hour,
		SameSite: http.SameSiteNoneMode,
		Secure:   true,
	}
}

// ParseSameSite accepts Strict, Lax or None in any case.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none", "":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("invalid SameSite value %q", s)
	}
}

func (c CookieConfig) setRefresh(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsdk.RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsdk.RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // emitted as Max-Age=0
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}
