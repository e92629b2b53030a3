package domain

import "time"

// TokenPair is the short-lived access token and the long-lived refresh token
// handed to a client after authentication. It is never persisted.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}
