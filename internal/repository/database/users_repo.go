package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type UserRepo struct {
	pg           *postgres.Postgres
	table        string
	accountTable string
}

func NewUserRepo(pg *postgres.Postgres) *UserRepo {
	return &UserRepo{
		pg:           pg,
		table:        "users",
		accountTable: "accounts",
	}
}

func (r *UserRepo) GetTableName() string {
	return r.table
}

const userColumns = `id::text, email, name, image, email_verified, metadata, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var meta []byte
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &meta, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &u.Metadata); err != nil {
			return nil, fmt.Errorf("decode user metadata: %w", err)
		}
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *UserRepo) CreateUser(ctx context.Context, u *models.User) error {
	row := r.pg.Pool.QueryRow(ctx, `
		INSERT INTO `+r.table+` (email, name, image, email_verified, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, NOW(), NOW())
		RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.Image, u.EmailVerified,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrDuplicate
		}
		return err
	}
	*u = *created
	return nil
}

func (r *UserRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.pg.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+r.table+` WHERE id::text = $1`, id))
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pg.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+r.table+` WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

// MergeMetadata shallow-merges patch into users.metadata and returns the result.
func (r *UserRepo) MergeMetadata(ctx context.Context, userID string, patch map[string]any) (map[string]any, error) {
	b, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	var merged []byte
	err = r.pg.Pool.QueryRow(ctx, `
		UPDATE `+r.table+`
		SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id::text = $1
		RETURNING metadata`, userID, string(b),
	).Scan(&merged)
	if err != nil {
		return nil, notFound(err)
	}

	out := map[string]any{}
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepo) CreateAccount(ctx context.Context, a *models.Account) error {
	err := r.pg.Pool.QueryRow(ctx, `
		INSERT INTO `+r.accountTable+` (user_id, provider_id, account_id, password, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, NOW(), NOW())
		RETURNING id::text, created_at, updated_at`,
		a.UserID, a.ProviderID, a.AccountID, a.Password,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return ports.ErrDuplicate
	}
	return err
}

const accountColumns = `id::text, user_id::text, provider_id, account_id, password, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.AccountID, &a.Password, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *UserRepo) GetAccount(ctx context.Context, providerID, accountID string) (*models.Account, error) {
	return scanAccount(r.pg.Pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+r.accountTable+` WHERE provider_id = $1 AND account_id = $2`,
		providerID, accountID))
}

func (r *UserRepo) GetUserAccount(ctx context.Context, userID, providerID string) (*models.Account, error) {
	return scanAccount(r.pg.Pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+r.accountTable+`
		WHERE user_id::text = $1 AND provider_id = $2
		ORDER BY created_at LIMIT 1`,
		userID, providerID))
}
