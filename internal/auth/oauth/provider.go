// Package oauth exchanges authorization codes with external identity
// providers and reads back who the user is.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"golang.org/x/oauth2"
)

// ErrIncompleteProfile is returned when the provider's user info lacks an id.
var ErrIncompleteProfile = errors.New("oauth: provider profile is missing required fields")

const maxUserInfoBytes = 1 << 20

// Extractor turns a provider's user-info JSON into an identity.
type Extractor func(body []byte) (domain.ExternalIdentity, error)

// ProviderConfig describes one upstream provider.
type ProviderConfig struct {
	Name         string // lower-case route name, e.g. "google"
	Kind         domain.AuthProvider
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	Extract      Extractor
}

// Provider performs the two network steps of federated sign-in.
type Provider interface {
	Name() string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	FetchIdentity(ctx context.Context, token *oauth2.Token) (domain.ExternalIdentity, error)
}

type provider struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewProvider builds a Provider. Every outbound call made through it is
// bounded by timeout.
func NewProvider(cfg ProviderConfig, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &provider{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (p *provider) Name() string { return p.cfg.Name }

func (p *provider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	oc := &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: %s code exchange: %w", p.cfg.Name, err)
	}
	return tok, nil
}

func (p *provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (domain.ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("oauth: %s user info: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ExternalIdentity{}, fmt.Errorf("oauth: %s user info: status %d", p.cfg.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("oauth: %s user info: %w", p.cfg.Name, err)
	}

	id, err := p.cfg.Extract(body)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	id.Provider = p.cfg.Kind
	return id, nil
}

// Registry maps lower-case provider names to providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
