package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
)

const userColumns = `id, name, email, password_hash, auth_provider, provider_id, account_type,
	roles, two_factor_enabled, two_factor_method, two_factor_secret, temp_two_factor_secret,
	phone_number, banned, created_at, updated_at`

type usersRepo struct {
	db DBTX
}

func (r *usersRepo) getOne(ctx context.Context, where string, args ...any) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)

	var (
		u          domain.User
		providerID sql.NullString
		roles      string
		method     string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Provider, &providerID, &u.AccountType,
		&roles, &u.TwoFactor.Enabled, &method, &u.TwoFactor.Secret, &u.TwoFactor.PendingSecret,
		&u.TwoFactor.PhoneNumber, &u.Banned, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.ProviderID = fromNullString(providerID)
	u.Roles = strings.Fields(roles)
	u.TwoFactor.Method = domain.TwoFactorMethod(method)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `email = ?`, email)
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider domain.AuthProvider, providerID string) (domain.User, error) {
	return r.getOne(ctx, `auth_provider = ? AND provider_id = ?`, string(provider), providerID)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Provider), toNullString(u.ProviderID),
		string(u.AccountType), strings.Join(u.Roles, " "),
		u.TwoFactor.Enabled, string(u.TwoFactor.Method), u.TwoFactor.Secret, u.TwoFactor.PendingSecret,
		u.TwoFactor.PhoneNumber, u.Banned, now, now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users
		SET name = ?, email = ?, password_hash = ?, account_type = ?, roles = ?, banned = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.PasswordHash, string(u.AccountType), strings.Join(u.Roles, " "), u.Banned,
		time.Now().UTC(), u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res)
}

func (r *usersRepo) UpdateTwoFactor(ctx context.Context, userID string, from, to domain.TwoFactorState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users
		SET two_factor_enabled = ?, two_factor_method = ?, two_factor_secret = ?,
		    temp_two_factor_secret = ?, phone_number = ?, updated_at = ?
		WHERE id = ?
		  AND two_factor_enabled = ? AND two_factor_method = ? AND two_factor_secret = ?
		  AND temp_two_factor_secret = ? AND phone_number = ?`,
		to.Enabled, string(to.Method), to.Secret, to.PendingSecret, to.PhoneNumber, time.Now().UTC(),
		userID,
		from.Enabled, string(from.Method), from.Secret, from.PendingSecret, from.PhoneNumber,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrConflict(ctx, userID)
	}
	return nil
}

// missingOrConflict explains a conditional update that matched no row.
func (r *usersRepo) missingOrConflict(ctx context.Context, userID string) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one); err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func (r *usersRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
