// Package otp stores short-lived one-time codes keyed by user id. Codes are
// kept as fingerprints and every Consume attempt removes the record, so a
// code can be checked at most once.
package otp

import (
	"context"
	"time"
)

// Store holds at most one pending code per user.
type Store interface {
	// Put replaces any pending code for userID.
	Put(ctx context.Context, userID, code string, ttl time.Duration) error

	// Consume atomically removes the pending code and reports whether it
	// matched and was still live. Missing, expired and wrong codes are
	// indistinguishable to the caller.
	Consume(ctx context.Context, userID, code string) (bool, error)
}
