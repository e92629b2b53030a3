package domain

// ExternalIdentity is what an OAuth provider tells us about the user.
type ExternalIdentity struct {
	Provider   AuthProvider
	ProviderID string
	Email      string
	Name       string
}
