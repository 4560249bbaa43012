package database

import (
	"context"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"
)

type SessionRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewSessionRepo(pg *postgres.Postgres) *SessionRepo {
	return &SessionRepo{pg: pg, table: "sessions"}
}

func (r *SessionRepo) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.pg.Pool.Exec(ctx, `
		INSERT INTO `+r.table+` (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at, updated_at)
		VALUES ($1, $2::uuid, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TokenHash, s.IPAddress, s.UserAgent, s.ExpiresAt, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SessionRepo) GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	err := r.pg.Pool.QueryRow(ctx, `
		SELECT id, user_id::text, token_hash, ip_address, user_agent, expires_at, created_at, updated_at
		FROM `+r.table+`
		WHERE token_hash = $1`, tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SessionRepo) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	_, err := r.pg.Pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *SessionRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	ct, err := r.pg.Pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
