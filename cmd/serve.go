package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"debtster_portal/internal/config"
	"debtster_portal/internal/server"
	"debtster_portal/internal/services/gatekeeper"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), every)
		},
	}
	cmd.Flags().DurationVar(&every, "housekeeping", 0, "reconcile and session cleanup interval (defaults to RECONCILE_AFTER, negative disables)")
	return cmd
}

func runServe(parent context.Context, every time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	runCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.Init(setupCtx)
	defer cfg.Close(context.Background())
	fmt.Println("✅ All connections successfully established!")

	if err := cfg.CheckConnections(setupCtx); err != nil {
		return fmt.Errorf("❌ connection check failed: %w", err)
	}
	fmt.Println("🟢 All connections OK")

	a := newApp(cfg)
	if err := a.events.EnsureIndexes(setupCtx); err != nil {
		log.Printf("[MONGO][WARN] ensure indexes: %v", err)
	}

	if every == 0 {
		every = cfg.ReconcileAfter
	}
	if every > 0 {
		go a.housekeep(runCtx, every)
	}

	srv := server.NewServer(server.Options{
		Port:     cfg.Port,
		Resolver: a.resolver,
		Rules:    gatekeeper.DefaultRules(),
		Metrics:  a.metrics,
		Gatherer: a.registry,
	}, a.handlers)

	log.Printf("[HTTP] listening on :%s", cfg.Port)
	return srv.Run(runCtx)
}
