package database

import (
	"context"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"
)

type VerificationRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewVerificationRepo(pg *postgres.Postgres) *VerificationRepo {
	return &VerificationRepo{pg: pg, table: "verification"}
}

// FindVerified returns the user's verification row only when verified = true.
func (r *VerificationRepo) FindVerified(ctx context.Context, userID string) (*models.Verification, error) {
	var v models.Verification
	err := r.pg.Pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, debtor_id::text, verified, verification_date,
			verification_method, created_at, updated_at
		FROM `+r.table+`
		WHERE user_id::text = $1 AND verified = true`, userID,
	).Scan(&v.ID, &v.UserID, &v.DebtorID, &v.Verified, &v.VerificationDate,
		&v.VerificationMethod, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// Upsert writes the verification keyed by user id.
func (r *VerificationRepo) Upsert(ctx context.Context, v models.Verification) error {
	_, err := r.pg.Pool.Exec(ctx, `
		INSERT INTO `+r.table+` (
			user_id, debtor_id, verified, verification_date, verification_method, created_at, updated_at
		) VALUES ($1::uuid, $2::uuid, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			debtor_id = EXCLUDED.debtor_id,
			verified = EXCLUDED.verified,
			verification_date = EXCLUDED.verification_date,
			verification_method = EXCLUDED.verification_method,
			updated_at = NOW()`,
		v.UserID, v.DebtorID, v.Verified, v.VerificationDate, v.VerificationMethod,
	)
	return err
}
