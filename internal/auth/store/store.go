package store

import (
	"context"
	"errors"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: row changed since it was read")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so that a Tx cannot open a nested transaction by accident.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches the normalised (lower-case) email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByProvider finds a federated account by its provider identity.
	GetUserByProvider(ctx context.Context, provider domain.AuthProvider, providerID string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID). A
	// duplicate email or provider identity yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser writes the profile fields (name, email, password hash,
	// account type, roles, banned) and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpdateTwoFactor replaces the second-factor state with to, but only while
	// the stored state still equals from. Otherwise it returns ErrConflict.
	UpdateTwoFactor(ctx context.Context, userID string, from, to domain.TwoFactorState) error

	Count(ctx context.Context) (int64, error)
}
