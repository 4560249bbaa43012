package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"debtster_portal/internal/handlers"
	"debtster_portal/internal/metrics"
	"debtster_portal/internal/services/gatekeeper"
	"debtster_portal/internal/transport/auth"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Port     string
	Resolver auth.Resolver
	Rules    gatekeeper.Rules
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
}

// Routes registers every endpoint on a new mux. Access control is not done
// here; the gate in NewServer decides who reaches which route.
func Routes(h *handlers.Handlers, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /auth/sign-up", h.SignUp)
	mux.HandleFunc("POST /auth/sign-in", h.SignIn)
	mux.HandleFunc("GET /auth/google", h.GoogleStart)
	mux.HandleFunc("GET /auth/google/callback", h.GoogleCallback)
	mux.HandleFunc("POST /auth/sign-out", h.SignOut)
	mux.HandleFunc("GET /auth/session", h.Session)
	mux.HandleFunc("PATCH /auth/metadata", h.UpdateMetadata)

	mux.HandleFunc("GET /verify", h.VerifyStatus)
	mux.HandleFunc("POST /verify", h.SubmitVerification)

	mux.HandleFunc("GET /dashboard", h.Summary)
	mux.HandleFunc("GET /dashboard/payments", h.History)
	mux.HandleFunc("GET /dashboard/payments/export", h.ExportHistory)

	mux.HandleFunc("GET /payment", h.Accounts)
	mux.HandleFunc("GET /payment/{id}", h.Account)
	mux.HandleFunc("POST /payment/orders", h.CreateOrder)
	mux.HandleFunc("POST /payment/orders/{orderID}/capture", h.CaptureOrder)

	mux.HandleFunc("GET /confirmation", h.Confirmation)
	mux.HandleFunc("GET /confirmation/receipts/{transaction}", h.Receipt)

	return mux
}

func NewServer(opts Options, h *handlers.Handlers) *Server {
	mux := Routes(h, opts.Gatherer)

	var handler http.Handler = mux
	if opts.Resolver != nil {
		handler = auth.Gate(opts.Resolver, opts.Rules, h.Cookie.Name)(handler)
	}
	handler = opts.Metrics.Middleware(mux, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%s", opts.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
