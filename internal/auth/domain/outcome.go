package domain

// OutcomeKind discriminates SignInOutcome.
type OutcomeKind int

const (
	OutcomeRejected OutcomeKind = iota
	OutcomeAuthenticated
	OutcomeTwoFactorRequired
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeTwoFactorRequired:
		return "two_factor_required"
	default:
		return "rejected"
	}
}

// TwoFactorChallenge tells the client which user must present a second
// factor and how.
type TwoFactorChallenge struct {
	UserID   string
	Email    string
	Provider AuthProvider
	Method   TwoFactorMethod
}

// SignInOutcome is the result of a password or federated sign-in. Exactly
// one of Tokens or Challenge is meaningful, depending on Kind.
type SignInOutcome struct {
	Kind      OutcomeKind
	User      User
	Tokens    TokenPair
	Challenge TwoFactorChallenge
}

func Authenticated(u User, tokens TokenPair) SignInOutcome {
	return SignInOutcome{Kind: OutcomeAuthenticated, User: u, Tokens: tokens}
}

func TwoFactorRequired(u User) SignInOutcome {
	return SignInOutcome{
		Kind: OutcomeTwoFactorRequired,
		User: u,
		Challenge: TwoFactorChallenge{
			UserID:   u.ID,
			Email:    u.Email,
			Provider: u.Provider,
			Method:   u.TwoFactor.Method,
		},
	}
}
