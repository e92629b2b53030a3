package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/oauth"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/TimurCravtov/CraftHub/pkg/idx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// findOrCreateTimeout bounds the shared lookup, which outlives any single
// caller's context.
const findOrCreateTimeout = 10 * time.Second

// FederationService signs users in with an authorization code issued by an
// external OAuth provider, creating the local account on first use.
type FederationService struct {
	Store     store.Store
	Providers *oauth.Registry
	Tokens    *TokenService
	TwoFactor *TwoFactorService
	Hasher    *cryptox.PasswordHasher
	Metrics   *metrics.Metrics

	group singleflight.Group
}

// AuthenticateWithCode exchanges code at the named provider, resolves the
// linked local user and either issues tokens or asks for a second factor.
// Provider failures are logged and reported as ErrOAuthExchangeFailed.
func (s *FederationService) AuthenticateWithCode(ctx context.Context, code, redirectURI, provider string) (domain.SignInOutcome, error) {
	p, ok := s.Providers.Get(provider)
	if !ok {
		return domain.SignInOutcome{}, ErrUnsupportedOAuthProvider
	}
	l := slogx.FromContext(ctx).With("provider", p.Name())

	token, err := p.Exchange(ctx, code, redirectURI)
	if err != nil {
		l.Warn("oauth code exchange failed", "err", err)
		s.Metrics.OAuthLogin(p.Name(), false)
		return domain.SignInOutcome{}, ErrOAuthExchangeFailed
	}
	ident, err := p.FetchIdentity(ctx, token)
	if err != nil {
		l.Warn("oauth identity fetch failed", "err", err)
		s.Metrics.OAuthLogin(p.Name(), false)
		return domain.SignInOutcome{}, ErrOAuthExchangeFailed
	}
	s.Metrics.OAuthLogin(p.Name(), true)

	u, err := s.FindOrCreate(ctx, ident)
	if err != nil {
		return domain.SignInOutcome{}, err
	}
	if u.Banned {
		s.Metrics.SignIn(domain.OutcomeRejected.String())
		return domain.SignInOutcome{}, ErrInvalidCredentials
	}

	if u.TwoFactor.Enabled {
		if u.TwoFactor.Method == domain.TwoFactorSMS {
			if err := s.TwoFactor.SendCode(ctx, u.ID); err != nil {
				return domain.SignInOutcome{}, err
			}
		}
		s.Metrics.SignIn(domain.OutcomeTwoFactorRequired.String())
		return domain.TwoFactorRequired(u), nil
	}

	tokens, err := s.Tokens.Issue(u)
	if err != nil {
		return domain.SignInOutcome{}, err
	}
	s.Metrics.SignIn(domain.OutcomeAuthenticated.String())
	return domain.Authenticated(u, tokens), nil
}

// FindOrCreate returns the user linked to ident, creating it if needed.
// Concurrent calls for the same identity share one lookup; a lost insert
// race falls back to reading the winner's row. The shared lookup runs
// detached from ctx, so one caller giving up does not fail the others.
func (s *FederationService) FindOrCreate(ctx context.Context, ident domain.ExternalIdentity) (domain.User, error) {
	key := string(ident.Provider) + ":" + ident.ProviderID

	ch := s.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), findOrCreateTimeout)
		defer cancel()
		users := s.Store.Users()

		u, err := users.GetUserByProvider(ctx, ident.Provider, ident.ProviderID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		hash, err := s.Hasher.PlaceholderHash()
		if err != nil {
			return nil, err
		}

		providerID := ident.ProviderID
		u = domain.User{
			ID:           idx.New().String(),
			Name:         ident.Name,
			Email:        strings.ToLower(strings.TrimSpace(ident.Email)),
			PasswordHash: hash,
			Provider:     ident.Provider,
			ProviderID:   &providerID,
			AccountType:  domain.AccountBuyer,
			Roles:        []string{domain.RoleUser},
		}

		err = users.CreateUser(ctx, u)
		switch {
		case err == nil:
			slogx.FromContext(ctx).Info("federated user created", "user_id", u.ID, "provider", ident.Provider)
			return users.GetUserByID(ctx, u.ID)
		case !errors.Is(err, store.ErrAlreadyExists):
			return nil, fmt.Errorf("failed to create federated user: %w", err)
		}

		u, err = users.GetUserByProvider(ctx, ident.Provider, ident.ProviderID)
		if errors.Is(err, store.ErrNotFound) {
			// The email belongs to an account linked elsewhere.
			return nil, ErrEmailAlreadyExists
		}
		return u, err
	})

	select {
	case <-ctx.Done():
		return domain.User{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.User{}, res.Err
		}
		return res.Val.(domain.User), nil
	}
}
