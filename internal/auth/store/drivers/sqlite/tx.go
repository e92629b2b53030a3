package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/TimurCravtov/CraftHub/internal/auth/store"
)

var errNestedTx = errors.New("sqlite: nested transactions are not supported")

// txStore scopes every repository to one *sql.Tx. Lifecycle methods that
// only make sense on the root store are no-ops or errors here.
type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore { return &txStore{tx: tx} }

func (t *txStore) Users() store.Users { return &usersRepo{db: t.tx} }

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, errNestedTx }

func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return errNestedTx }

func (t *txStore) Close() error               { return nil }
func (t *txStore) Ping(context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error     { return nil }
