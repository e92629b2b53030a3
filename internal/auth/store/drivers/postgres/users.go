package postgres

import (
	"context"
	"strings"

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
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)

	var (
		u                             domain.User
		provider, accountType, method string
		roles                         string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &provider, &u.ProviderID, &accountType,
		&roles, &u.TwoFactor.Enabled, &method, &u.TwoFactor.Secret, &u.TwoFactor.PendingSecret,
		&u.TwoFactor.PhoneNumber, &u.Banned, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Provider = domain.AuthProvider(provider)
	u.AccountType = domain.AccountType(accountType)
	u.Roles = strings.Fields(roles)
	u.TwoFactor.Method = domain.TwoFactorMethod(method)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `email = $1`, email)
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider domain.AuthProvider, providerID string) (domain.User, error) {
	return r.getOne(ctx, `auth_provider = $1 AND provider_id = $2`, string(provider), providerID)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (
			id, name, email, password_hash, auth_provider, provider_id, account_type, roles,
			two_factor_enabled, two_factor_method, two_factor_secret, temp_two_factor_secret, phone_number, banned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Provider), u.ProviderID,
		string(u.AccountType), strings.Join(u.Roles, " "),
		u.TwoFactor.Enabled, string(u.TwoFactor.Method), u.TwoFactor.Secret, u.TwoFactor.PendingSecret,
		u.TwoFactor.PhoneNumber, u.Banned,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	tag, err := r.db.Exec(ctx, `UPDATE users
		SET name = $1, email = $2, password_hash = $3, account_type = $4, roles = $5, banned = $6, updated_at = now()
		WHERE id = $7`,
		u.Name, u.Email, u.PasswordHash, string(u.AccountType), strings.Join(u.Roles, " "), u.Banned, u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) UpdateTwoFactor(ctx context.Context, userID string, from, to domain.TwoFactorState) error {
	tag, err := r.db.Exec(ctx, `UPDATE users
		SET two_factor_enabled = $1, two_factor_method = $2, two_factor_secret = $3,
		    temp_two_factor_secret = $4, phone_number = $5, updated_at = now()
		WHERE id = $6
		  AND two_factor_enabled = $7 AND two_factor_method = $8 AND two_factor_secret = $9
		  AND temp_two_factor_secret = $10 AND phone_number = $11`,
		to.Enabled, string(to.Method), to.Secret, to.PendingSecret, to.PhoneNumber,
		userID,
		from.Enabled, string(from.Method), from.Secret, from.PendingSecret, from.PhoneNumber,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one); err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func (r *usersRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
