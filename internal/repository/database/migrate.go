package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"

	"debtster_portal/internal/config/connections/postgres"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every embedded migration not yet recorded in schema_migrations,
// each one in its own transaction.
func Migrate(ctx context.Context, pg *postgres.Postgres) (int, error) {
	if pg == nil || pg.Pool == nil {
		return 0, errors.New("postgres not available")
	}

	if _, err := pg.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		return 0, err
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		var exists bool
		if err := pg.Pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}

		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return applied, err
		}
		sqlText := strings.TrimSpace(string(body))
		if sqlText == "" {
			return applied, errors.New("empty migration: " + name)
		}

		err = pg.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, sqlText); err != nil {
				return fmt.Errorf("migration %s failed: %w", name, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return applied, err
		}
		log.Printf("[MIGRATE][OK] %s", name)
		applied++
	}
	return applied, nil
}
