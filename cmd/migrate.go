package main

import (
	"context"
	"fmt"
	"time"

	"debtster_portal/internal/config"
	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/repository/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded SQL migrations to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			st := config.LoadSettings()
			pg, err := postgres.NewConnection(ctx, st.Postgres)
			if err != nil {
				return fmt.Errorf("postgres connect: %w", err)
			}
			defer pg.Close()

			n, err := database.Migrate(ctx, pg)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s)\n", n)
			return nil
		},
	}
}
