package domain

import (
	"slices"
	"strings"
	"time"
)

// AuthProvider records where an account's credentials live.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
	ProviderGitHub AuthProvider = "GITHUB"
)

// ParseAuthProvider accepts a provider name in any case ("google", "GitHub").
func ParseAuthProvider(s string) (AuthProvider, bool) {
	switch p := AuthProvider(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProviderLocal, ProviderGoogle, ProviderGitHub:
		return p, true
	default:
		return "", false
	}
}

// AccountType is the marketplace role of an account.
type AccountType string

const (
	AccountBuyer  AccountType = "BUYER"
	AccountSeller AccountType = "SELLER"
)

func ParseAccountType(s string) (AccountType, bool) {
	switch t := AccountType(strings.ToUpper(strings.TrimSpace(s))); t {
	case AccountBuyer, AccountSeller:
		return t, true
	default:
		return "", false
	}
}

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string // argon2 encoded; random placeholder for federated accounts
	Provider     AuthProvider
	ProviderID   *string // nil for LOCAL accounts
	AccountType  AccountType
	Roles        []string
	TwoFactor    TwoFactorState
	Banned       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// IsFederated reports whether the account signs in through an OAuth provider.
func (u User) IsFederated() bool {
	return u.Provider != "" && u.Provider != ProviderLocal
}
