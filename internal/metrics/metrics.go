// Package metrics defines the Prometheus collectors exported by the auth
// service. A nil *Metrics is valid and records nothing, so services and
// tests can run without a registry.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct {
	signIns      *prometheus.CounterVec
	twoFactor    *prometheus.CounterVec
	oauthLogins  *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	tokensIssued *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New creates the collectors and registers them on reg (the default
// registerer when nil). Registering twice on the same registry reuses the
// collectors already there.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	var err error
	if m.signIns, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "auth_signin_total",
		Help: "Password and federated sign-in attempts by outcome",
	}, "outcome"); err != nil {
		return nil, err
	}
	if m.twoFactor, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "auth_twofactor_verifications_total",
		Help: "Second-factor code checks by method and result",
	}, "method", "result"); err != nil {
		return nil, err
	}
	if m.oauthLogins, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "auth_oauth_logins_total",
		Help: "OAuth code exchanges by provider and result",
	}, "provider", "result"); err != nil {
		return nil, err
	}
	if m.rateLimited, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "auth_ratelimit_rejections_total",
		Help: "Requests rejected by the rate limiter by endpoint key",
	}, "endpoint"); err != nil {
		return nil, err
	}
	if m.tokensIssued, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "auth_token_issued_total",
		Help: "Tokens minted by kind",
	}, "kind"); err != nil {
		return nil, err
	}

	return m, nil
}

// registerCounterVec registers a counter vec, ignoring duplicates.
func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// Handler serves the registry the collectors were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SignIn(outcome string) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TwoFactorVerification(method string, ok bool) {
	if m == nil {
		return
	}
	m.twoFactor.WithLabelValues(method, result(ok)).Inc()
}

func (m *Metrics) OAuthLogin(provider string, ok bool) {
	if m == nil {
		return
	}
	m.oauthLogins.WithLabelValues(provider, result(ok)).Inc()
}

// RateLimitRejected has the signature expected by httpx.RateLimiter.OnReject.
func (m *Metrics) RateLimitRejected(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
