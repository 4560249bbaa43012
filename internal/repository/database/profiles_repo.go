package database

import (
	"context"
	"time"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"
)

type ProfileRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewProfileRepo(pg *postgres.Postgres) *ProfileRepo {
	return &ProfileRepo{pg: pg, table: "user_profiles"}
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := r.pg.Pool.QueryRow(ctx, `
		SELECT id::text, email, full_name, avatar_url, last_sign_in, created_at, updated_at
		FROM `+r.table+` WHERE id::text = $1`, userID,
	).Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.LastSignIn, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Upsert keeps existing non-null columns when the new value is null.
func (r *ProfileRepo) Upsert(ctx context.Context, p models.UserProfile) error {
	_, err := r.pg.Pool.Exec(ctx, `
		INSERT INTO `+r.table+` (id, email, full_name, avatar_url, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, `+r.table+`.email),
			full_name = COALESCE(EXCLUDED.full_name, `+r.table+`.full_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, `+r.table+`.avatar_url),
			updated_at = NOW()`,
		p.ID, p.Email, p.FullName, p.AvatarURL,
	)
	return err
}

// TouchLastSignIn records a sign-in; users without a profile row yet are skipped.
func (r *ProfileRepo) TouchLastSignIn(ctx context.Context, userID string, at time.Time) error {
	_, err := r.pg.Pool.Exec(ctx,
		`UPDATE `+r.table+` SET last_sign_in = $2, updated_at = NOW() WHERE id::text = $1`,
		userID, at)
	return err
}
