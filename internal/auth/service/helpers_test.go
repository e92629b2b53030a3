package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/oauth"
	"github.com/TimurCravtov/CraftHub/internal/auth/otp"
	"github.com/TimurCravtov/CraftHub/internal/auth/password"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/internal/auth/store/drivers/sqlite"
	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "crafthub-test"
	strongPass   = "Xk9!mQ2vLp"
	strongPass2  = "Rv3#tW8zNq"
	testFieldKey = "fedcba9876543210fedcba9876543210"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingSender captures outgoing texts.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, _, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, body)
	return nil
}

func (s *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no sms was sent")
	body := s.sent[len(s.sent)-1]
	require.True(t, strings.HasPrefix(body, "Your verification code is: "), body)
	return strings.TrimPrefix(body, "Your verification code is: ")
}

// fakeProvider returns a fixed identity without any network traffic.
type fakeProvider struct {
	name     string
	ident    domain.ExternalIdentity
	exchErr  error
	fetchErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	if p.exchErr != nil {
		return nil, p.exchErr
	}
	return &oauth2.Token{AccessToken: "at-" + code, TokenType: "Bearer"}, nil
}

func (p *fakeProvider) FetchIdentity(context.Context, *oauth2.Token) (domain.ExternalIdentity, error) {
	if p.fetchErr != nil {
		return domain.ExternalIdentity{}, p.fetchErr
	}
	return p.ident, nil
}

type fixture struct {
	store  *sqlite.Store
	clock  *clock
	codes  *otp.MemoryStore
	sender *recordingSender
	google *fakeProvider

	tokens *service.TokenService
	tfa    *service.TwoFactorService
	fed    *service.FederationService
	auth   *service.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	h, err := jwtx.NewHMAC([]byte(testSecret), testIssuer)
	require.NoError(t, err)

	codec, err := cryptox.NewFieldCodec([]byte(testFieldKey))
	require.NoError(t, err)

	clk := newClock()
	codes := otp.NewMemoryStore().WithClock(clk.Now)
	sender := &recordingSender{}
	hasher := cryptox.NewPasswordHasher("test-pepper")

	tokens := service.NewTokenService(h, testIssuer, 0, 0)
	tfa := &service.TwoFactorService{
		Store:   st,
		Codec:   codec,
		Codes:   codes,
		SMS:     sender,
		Issuer:  "CraftHub",
		CodeTTL: 5 * time.Minute,
		Now:     clk.Now,
	}

	google := &fakeProvider{
		name: "google",
		ident: domain.ExternalIdentity{
			Provider:   domain.ProviderGoogle,
			ProviderID: "g-1001",
			Email:      "Maria.Lopez@Gmail.com",
			Name:       "Maria Lopez",
		},
	}

	return &fixture{
		store:  st,
		clock:  clk,
		codes:  codes,
		sender: sender,
		google: google,
		tokens: tokens,
		tfa:    tfa,
		fed: &service.FederationService{
			Store:     st,
			Providers: oauth.NewRegistry(google),
			Tokens:    tokens,
			TwoFactor: tfa,
			Hasher:    hasher,
		},
		auth: &service.AuthService{
			Store:     st,
			Tokens:    tokens,
			TwoFactor: tfa,
			Hasher:    hasher,
			Passwords: password.NewValidator(nil),
		},
	}
}

// signUp registers a local account with a strong password.
func (f *fixture) signUp(t *testing.T, email string) domain.User {
	t.Helper()
	out, err := f.auth.SignUp(context.Background(), service.SignUpInput{
		Name:     "Ana Popescu",
		Email:    email,
		Password: strongPass,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAuthenticated, out.Kind)
	return out.User
}
