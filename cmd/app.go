package main

import (
	"context"
	"log"
	"time"

	"debtster_portal/internal/adapters/paypal"
	"debtster_portal/internal/adapters/receipts"
	"debtster_portal/internal/config"
	"debtster_portal/internal/handlers"
	"debtster_portal/internal/metrics"
	"debtster_portal/internal/repository/database"
	"debtster_portal/internal/repository/events"
	"debtster_portal/internal/services/auth"
	"debtster_portal/internal/services/dashboard"
	"debtster_portal/internal/services/gatekeeper"
	"debtster_portal/internal/services/payments"
	"debtster_portal/internal/services/verification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	events   *events.Store
	sessions *database.SessionRepo

	auth      *auth.Service
	resolver  *gatekeeper.Resolver
	verify    *verification.Service
	payments  *payments.Service
	dashboard *dashboard.Service
	handlers  *handlers.Handlers
}

func newApp(cfg *config.Config) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pg := cfg.Postgres
	users := database.NewUserRepo(pg)
	sessions := database.NewSessionRepo(pg)
	verifications := database.NewVerificationRepo(pg)
	profiles := database.NewProfileRepo(pg)
	debtors := database.NewDebtorRepo(pg, "")
	debts := database.NewDebtsRepo(pg, "")
	paymentRepo := database.NewPaymentRepo(pg)

	eventStore := events.NewStore(cfg.Mongo)
	receiptStore := receipts.NewS3Store(cfg.S3.Client, cfg.S3.Bucket)

	authSvc := auth.NewService(users, sessions, auth.Options{
		SessionMaxAge: cfg.Session.MaxAge,
		Cache:         auth.NewSessionCache(cfg.Session.CacheTTL, cfg.Session.CacheSize),
	})
	authSvc.Subscribe(func(e auth.Event) {
		m.SessionEvent(string(e.Kind))
	})
	authSvc.Subscribe(func(e auth.Event) {
		if e.Kind != auth.EventSignedIn && e.Kind != auth.EventSignedUp {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := profiles.TouchLastSignIn(ctx, e.UserID, time.Now()); err != nil {
			log.Printf("[AUTH][PROFILE][WARN] last sign-in user=%s: %v", e.UserID, err)
		}
	})

	verifySvc := verification.NewService(debtors, verifications, profiles, authSvc, eventStore, m, verification.Throttle{
		MaxFailures: cfg.Verify.MaxFailures,
		Window:      cfg.Verify.Window,
		Rate:        cfg.Verify.Rate,
		Burst:       cfg.Verify.Burst,
	})

	gateway := paypal.New(context.Background(), paypal.Config{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
	})
	paymentSvc := payments.NewService(debts, paymentRepo, gateway, eventStore, receiptStore, m, cfg.PayPal.Currency)
	dashSvc := dashboard.NewService(debtors, debts, paymentRepo, receiptStore)

	h := &handlers.Handlers{
		Postgres:  cfg.Postgres,
		Mongo:     cfg.Mongo,
		S3:        cfg.S3,
		Auth:      authSvc,
		Verify:    verifySvc,
		Payments:  paymentSvc,
		Dashboard: dashSvc,
		Cookie: handlers.CookieSettings{
			Name:   cfg.Session.CookieName,
			MaxAge: cfg.Session.MaxAge,
			Secure: cfg.Session.SecureCookie,
		},
		TrustedProxies: cfg.TrustedProxies,
		Logger:         log.Default(),
	}
	if cfg.Google.Enabled() {
		h.Google = auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		log.Printf("[AUTH] google sign-in enabled")
	}

	return &app{
		cfg:       cfg,
		registry:  reg,
		metrics:   m,
		events:    eventStore,
		sessions:  sessions,
		auth:      authSvc,
		resolver:  gatekeeper.NewResolver(authSvc, verifications, profiles),
		verify:    verifySvc,
		payments:  paymentSvc,
		dashboard: dashSvc,
		handlers:  h,
	}
}

// housekeep reconciles unrecorded captures and drops expired sessions until ctx ends.
func (a *app) housekeep(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.payments.Reconcile(ctx, a.cfg.ReconcileAfter); err != nil {
				log.Printf("[RECONCILE][ERR] %v", err)
			}
			if n, err := a.sessions.DeleteExpiredSessions(ctx); err != nil {
				log.Printf("[SESSIONS][ERR] cleanup: %v", err)
			} else if n > 0 {
				log.Printf("[SESSIONS] removed %d expired", n)
			}
		}
	}
}
