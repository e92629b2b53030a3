package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/otp"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	codes otp.Store

	AuthService       *service.AuthService
	TwoFactorService  *service.TwoFactorService
	FederationService *service.FederationService
	Metrics           *metrics.Metrics
	Cookies           CookieConfig
}

// NewRouter builds a router whose global chain is request logging followed
// by the rate limiter. A nil limiter disables rate limiting.
func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	codes otp.Store,
	limiter *httpx.RateLimiter,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		codes:        codes,
		logger:       logger,
		Cookies:      DefaultCookieConfig(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger, "/livez", "/readyz"),
	}
	if limiter != nil {
		r.middlewares = append(r.middlewares, httpx.RateLimitMiddleware(limiter, httpx.ClientIP))
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerOAuth()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// account guards the signed-in user's own endpoints: a valid access token
// carrying a marketplace role.
func (r *Router) account(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyRole(domain.RoleUser, domain.RoleAdmin),
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		Cookies:     r.Cookies,
	}

	r.Mux.Handle("POST /api/auth/signup", http.HandlerFunc(h.HandleSignUp))
	r.Mux.Handle("POST /api/auth/signin", http.HandlerFunc(h.HandleSignIn))
	r.Mux.Handle("POST /api/auth/verify-2fa", http.HandlerFunc(h.HandleVerifyTwoFactor))
	r.Mux.Handle("POST /api/auth/refresh", http.HandlerFunc(h.HandleRefresh))
	r.Mux.Handle("POST /api/auth/logout", http.HandlerFunc(h.HandleLogout))

	r.Mux.Handle("GET /api/auth/me", r.account(h.HandleMe))
	r.Mux.Handle("PUT /api/auth/update-user", r.account(h.HandleUpdateUser))
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactorService: r.TwoFactorService}

	r.Mux.Handle("POST /api/auth/me/enable-2fa", r.account(h.HandleEnable))
	r.Mux.Handle("POST /api/auth/me/confirm-2fa", r.account(h.HandleConfirm))
	r.Mux.Handle("POST /api/auth/me/disable-2fa", r.account(h.HandleDisable))
}

func (r *Router) registerOAuth() {
	h := &OAuthHandler{
		FederationService: r.FederationService,
		Cookies:           r.Cookies,
	}

	r.Mux.Handle("POST /api/oauth/{provider}", http.HandlerFunc(h.HandleLogin))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.codes))
	r.Mux.Handle("GET /metrics", r.Metrics.Handler())
}
