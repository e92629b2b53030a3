package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/password"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/TimurCravtov/CraftHub/pkg/idx"
	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

type SignUpInput struct {
	Name        string
	Email       string
	Password    string
	AccountType domain.AccountType
}

// TwoFactorAttempt identifies the user either by id or, after a federated
// sign-in where no id was handed out, by email and provider.
type TwoFactorAttempt struct {
	UserID   string
	Email    string
	Provider domain.AuthProvider
	Code     string
}

// UpdateUserInput fields left blank are not changed.
type UpdateUserInput struct {
	CurrentPassword string
	NewPassword     string
	NewEmail        string
	NewName         string
	AccountType     domain.AccountType
}

// AuthService implements local sign-up and sign-in and ties the token,
// two-factor and password components together.
type AuthService struct {
	Store     store.Store
	Tokens    *TokenService
	TwoFactor *TwoFactorService
	Hasher    *cryptox.PasswordHasher
	Passwords *password.Validator
	Metrics   *metrics.Metrics
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (domain.SignInOutcome, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.AccountType == "" {
		in.AccountType = domain.AccountBuyer
	}

	if res := s.Passwords.Validate(ctx, in.Password, in.Email, in.Name); !res.Valid {
		return domain.SignInOutcome{}, &WeakPasswordError{Errors: res.Errors}
	}

	_, err := s.Store.Users().GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return domain.SignInOutcome{}, ErrEmailAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		return domain.SignInOutcome{}, err
	}

	hash, err := s.Hasher.Hash(strings.TrimSpace(in.Password))
	if err != nil {
		return domain.SignInOutcome{}, fmt.Errorf("failed to hash password: %w", err)
	}

	u := domain.User{
		ID:           idx.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Provider:     domain.ProviderLocal,
		AccountType:  in.AccountType,
		Roles:        []string{domain.RoleUser},
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.SignInOutcome{}, ErrEmailAlreadyExists
		}
		return domain.SignInOutcome{}, err
	}
	u, err = s.Store.Users().GetUserByID(ctx, u.ID)
	if err != nil {
		return domain.SignInOutcome{}, err
	}

	slogx.FromContext(ctx).Info("user signed up", "user_id", u.ID, "account_type", u.AccountType)

	tokens, err := s.Tokens.Issue(u)
	if err != nil {
		return domain.SignInOutcome{}, err
	}
	return domain.Authenticated(u, tokens), nil
}

// SignIn checks an email/password pair. Unknown email, wrong password and
// banned account are indistinguishable to the caller.
func (s *AuthService) SignIn(ctx context.Context, email, pw string) (domain.SignInOutcome, error) {
	outcome, err := s.signIn(ctx, email, pw)
	s.Metrics.SignIn(outcome.Kind.String())
	return outcome, err
}

func (s *AuthService) signIn(ctx context.Context, email, pw string) (domain.SignInOutcome, error) {
	rejected := domain.SignInOutcome{Kind: domain.OutcomeRejected}

	u, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Hasher.VerifyDecoy(strings.TrimSpace(pw))
			return rejected, ErrInvalidCredentials
		}
		return rejected, err
	}
	if err := s.Hasher.Verify(strings.TrimSpace(pw), u.PasswordHash); err != nil {
		return rejected, ErrInvalidCredentials
	}
	if u.Banned {
		slogx.FromContext(ctx).Warn("banned user attempted sign-in", "user_id", u.ID)
		return rejected, ErrInvalidCredentials
	}

	if u.TwoFactor.Enabled {
		if u.TwoFactor.Method == domain.TwoFactorSMS {
			if err := s.TwoFactor.SendCode(ctx, u.ID); err != nil {
				return rejected, err
			}
		}
		return domain.TwoFactorRequired(u), nil
	}

	tokens, err := s.Tokens.Issue(u)
	if err != nil {
		return rejected, err
	}
	return domain.Authenticated(u, tokens), nil
}

// CompleteTwoFactor finishes a sign-in that returned TwoFactorRequired.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, in TwoFactorAttempt) (domain.SignInOutcome, error) {
	u, err := s.resolveAttempt(ctx, in)
	if err != nil {
		return domain.SignInOutcome{}, err
	}
	if u.Banned {
		return domain.SignInOutcome{}, ErrInvalidCredentials
	}

	if err := s.TwoFactor.Verify(ctx, u.ID, in.Code); err != nil {
		if errors.Is(err, ErrTwoFactorNotEnabled) {
			return domain.SignInOutcome{}, ErrInvalidTwoFactorCode
		}
		return domain.SignInOutcome{}, err
	}

	tokens, err := s.Tokens.Issue(u)
	if err != nil {
		return domain.SignInOutcome{}, err
	}
	return domain.Authenticated(u, tokens), nil
}

func (s *AuthService) resolveAttempt(ctx context.Context, in TwoFactorAttempt) (domain.User, error) {
	users := s.Store.Users()

	var (
		u   domain.User
		err error
	)
	switch {
	case in.UserID != "":
		id, perr := idx.Parse(in.UserID)
		if perr != nil {
			return domain.User{}, ErrInvalidCredentials
		}
		u, err = users.GetUserByID(ctx, id.String())
	case in.Email != "":
		u, err = users.GetUserByEmail(ctx, normalizeEmail(in.Email))
		provider := in.Provider
		if provider == "" {
			provider = domain.ProviderLocal
		}
		if err == nil && u.Provider != provider {
			err = store.ErrNotFound
		}
	default:
		return domain.User{}, ErrInvalidCredentials
	}

	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, err
}

// Refresh exchanges a refresh token for a new pair. The user is reloaded so
// that banned accounts and changed roles take effect.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, domain.User, error) {
	claims, err := s.Tokens.Validate(refreshToken)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	if claims.ValidateUse(jwtx.UseRefresh) != nil {
		return domain.TokenPair{}, domain.User{}, ErrTokenMalformed
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, domain.User{}, ErrTokenMalformed
		}
		return domain.TokenPair{}, domain.User{}, err
	}
	if u.Banned {
		return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
	}

	tokens, err := s.Tokens.Refresh(refreshToken, u)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	return tokens, u, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateUser changes profile fields. Local accounts must present their
// current password; a new password goes through the strength policy.
func (s *AuthService) UpdateUser(ctx context.Context, userID string, in UpdateUserInput) (domain.User, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if !u.IsFederated() {
		if err := s.Hasher.Verify(strings.TrimSpace(in.CurrentPassword), u.PasswordHash); err != nil {
			return domain.User{}, ErrInvalidCredentials
		}
	}

	if name := strings.TrimSpace(in.NewName); name != "" {
		u.Name = name
	}

	newEmail := normalizeEmail(in.NewEmail)
	if newEmail == u.Email {
		newEmail = ""
	}

	if strings.TrimSpace(in.NewPassword) != "" {
		email := u.Email
		if newEmail != "" {
			email = newEmail
		}
		if res := s.Passwords.Validate(ctx, in.NewPassword, email, u.Name); !res.Valid {
			return domain.User{}, &WeakPasswordError{Errors: res.Errors}
		}
		hash, err := s.Hasher.Hash(strings.TrimSpace(in.NewPassword))
		if err != nil {
			return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	if in.AccountType != "" {
		u.AccountType = in.AccountType
	}

	// The email check and the write share a transaction; slow work such as
	// hashing and the breach lookup stays outside it.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if newEmail != "" {
			other, err := tx.Users().GetUserByEmail(ctx, newEmail)
			switch {
			case err == nil && other.ID != u.ID:
				return ErrEmailAlreadyExists
			case err != nil && !errors.Is(err, store.ErrNotFound):
				return err
			}
			u.Email = newEmail
		}
		return tx.Users().UpdateUser(ctx, u)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, err
	}
	return s.Me(ctx, u.ID)
}
