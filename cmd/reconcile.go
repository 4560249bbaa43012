package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"debtster_portal/internal/config"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Record processor captures that never reached the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			cfg := config.Init(setupCtx)
			defer cfg.Close(context.Background())

			if olderThan <= 0 {
				olderThan = cfg.ReconcileAfter
			}
			a := newApp(cfg)
			rep, err := a.payments.Reconcile(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("scanned=%d recorded=%d duplicates=%d failed=%d abandoned=%d\n",
				rep.Scanned, rep.Recorded, rep.Duplicates, rep.Failed, rep.Abandoned)

			n, err := a.sessions.DeleteExpiredSessions(ctx)
			if err != nil {
				return fmt.Errorf("delete expired sessions: %w", err)
			}
			fmt.Printf("expired sessions removed=%d\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only replay captures older than this (defaults to RECONCILE_AFTER)")
	return cmd
}
