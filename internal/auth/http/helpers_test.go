package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	authhttp "github.com/TimurCravtov/CraftHub/internal/auth/http"
	"github.com/TimurCravtov/CraftHub/internal/auth/oauth"
	"github.com/TimurCravtov/CraftHub/internal/auth/otp"
	"github.com/TimurCravtov/CraftHub/internal/auth/password"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/internal/auth/store/drivers/sqlite"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "crafthub-test"
	testFieldKey = "fedcba9876543210fedcba9876543210"
	strongPass   = "Xk9!mQ2vLp"
	strongPass2  = "Rv3#tW8zNq"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, _, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, body)
	return nil
}

func (s *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no sms was sent")
	return strings.TrimPrefix(s.sent[len(s.sent)-1], "Your verification code is: ")
}

type fakeProvider struct {
	name  string
	ident domain.ExternalIdentity

	mu      sync.Mutex
	exchErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) failExchange(err error) {
	p.mu.Lock()
	p.exchErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	p.mu.Lock()
	err := p.exchErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: "at-" + code, TokenType: "Bearer"}, nil
}

func (p *fakeProvider) FetchIdentity(context.Context, *oauth2.Token) (domain.ExternalIdentity, error) {
	return p.ident, nil
}

type testServer struct {
	*httptest.Server
	client  *authsdk.SDKClient
	store   *sqlite.Store
	sender  *recordingSender
	google  *fakeProvider
	tokens  *service.TokenService
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

type serverOption func(*authhttp.Router)

// newServer wires the full handler stack on an in-memory database. The
// limiter is generous unless a test passes its own.
func newServer(t *testing.T, limiter *httpx.RateLimiter, opts ...serverOption) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	h, err := jwtx.NewHMAC([]byte(testSecret), testIssuer)
	require.NoError(t, err)
	codec, err := cryptox.NewFieldCodec([]byte(testFieldKey))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	codes := otp.NewMemoryStore()
	sender := &recordingSender{}
	hasher := cryptox.NewPasswordHasher("test-pepper")

	tokens := service.NewTokenService(h, testIssuer, 15*time.Minute, 0)
	tokens.Metrics = m
	tfa := &service.TwoFactorService{
		Store:   st,
		Codec:   codec,
		Codes:   codes,
		SMS:     sender,
		Issuer:  "CraftHub",
		Metrics: m,
	}
	google := &fakeProvider{
		name: "google",
		ident: domain.ExternalIdentity{
			Provider:   domain.ProviderGoogle,
			ProviderID: "g-2002",
			Email:      "ion.rusu@gmail.com",
			Name:       "Ion Rusu",
		},
	}

	if limiter == nil {
		limiter = httpx.NewRateLimiter(httpx.RateLimitConfig{
			Capacity:     1000,
			RefillTokens: 1000,
			RefillPeriod: time.Minute,
		}, time.Hour, nil)
	}
	limiter.OnReject(m.RateLimitRejected)

	router := authhttp.NewRouter(h, "test", st, codes, limiter, slogx.Discard())
	router.AuthService = &service.AuthService{
		Store:     st,
		Tokens:    tokens,
		TwoFactor: tfa,
		Hasher:    hasher,
		Passwords: password.NewValidator(nil),
		Metrics:   m,
	}
	router.TwoFactorService = tfa
	router.FederationService = &service.FederationService{
		Store:     st,
		Providers: oauth.NewRegistry(google),
		Tokens:    tokens,
		TwoFactor: tfa,
		Hasher:    hasher,
		Metrics:   m,
	}
	router.Metrics = m
	for _, opt := range opts {
		opt(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:  srv,
		client:  authsdk.NewSDKClient(srv.URL),
		store:   st,
		sender:  sender,
		google:  google,
		tokens:  tokens,
		metrics: m,
		reg:     reg,
	}
}

// do sends a raw JSON request and returns the response with its body
// already read.
func (s *testServer) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: authsdk.RefreshCookieName, Value: value})
	}
}

func decodeError(t *testing.T, body []byte) authsdk.ErrorResponse {
	t.Helper()
	var e authsdk.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	return e
}

func refreshCookieOf(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == authsdk.RefreshCookieName {
			return c
		}
	}
	return nil
}

// signUp registers a LOCAL account through the SDK.
func (s *testServer) signUp(t *testing.T, email string) *authsdk.Session {
	t.Helper()
	session, err := s.client.SignUp(t.Context(), authsdk.SignUpRequest{
		Name:     "Ana Popescu",
		Email:    email,
		Password: strongPass,
	})
	require.NoError(t, err)
	return session
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "want *authsdk.APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
}
