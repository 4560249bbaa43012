package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/netip"
	"time"

	"debtster_portal/internal/config/connections/mongo"
	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/config/connections/s3"
	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/services/auth"
	"debtster_portal/internal/services/dashboard"
	"debtster_portal/internal/services/gatekeeper"
	"debtster_portal/internal/services/payments"
	"debtster_portal/internal/services/verification"
	transport "debtster_portal/internal/transport/auth"

	"github.com/shopspring/decimal"
)

type Authenticator interface {
	SignUp(ctx context.Context, email, password, name, ip, ua string) (*auth.Result, error)
	SignIn(ctx context.Context, email, password, ip, ua string) (*auth.Result, error)
	SignInWithProvider(ctx context.Context, p auth.ProviderProfile, ip, ua string) (*auth.Result, error)
	SignOut(ctx context.Context, token string) error
	UpdateMetadata(ctx context.Context, userID string, patch map[string]any) (map[string]any, error)
}

// OAuthProvider is a third-party sign-in such as Google.
type OAuthProvider interface {
	AuthCodeURL() (url, state string, err error)
	Exchange(ctx context.Context, code string) (auth.ProviderProfile, error)
}

type Verifier interface {
	Status(ctx context.Context, userID string) (bool, string, error)
	Verify(ctx context.Context, userID, displayEmail string, req verification.Request) (*verification.Result, error)
}

type PaymentFlow interface {
	Accounts(ctx context.Context, debtorID string) (*payments.AccountsView, error)
	Account(ctx context.Context, debtorID, debtID string) (*models.Debt, error)
	CreateOrder(ctx context.Context, debtorID, debtID string, amount decimal.Decimal) (*payments.OrderResult, error)
	Capture(ctx context.Context, req payments.CaptureRequest) (*payments.CaptureResult, error)
}

type Views interface {
	Summary(ctx context.Context, debtorID string) (*dashboard.Summary, error)
	History(ctx context.Context, debtorID string) ([]dashboard.HistoryRow, error)
	ExportHistory(ctx context.Context, debtorID string, w io.Writer) (int, error)
	Receipt(ctx context.Context, debtorID, transactionID string) (io.ReadCloser, ports.Meta, error)
}

type CookieSettings struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

type Handlers struct {
	Postgres *postgres.Postgres
	Mongo    *mongo.Mongo
	S3       *s3.S3

	Auth      Authenticator
	Google    OAuthProvider
	Verify    Verifier
	Payments  PaymentFlow
	Dashboard Views

	Cookie         CookieSettings
	TrustedProxies []netip.Prefix
	Now            func() time.Time
	Logger         *log.Logger
}

func (h *Handlers) JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) Error(w http.ResponseWriter, code int, msg string) {
	h.JSON(w, code, map[string]string{"error": msg})
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}

// identity is set by the gate middleware for every request it let through.
func identity(r *http.Request) gatekeeper.Identity {
	id, _ := transport.GetIdentity(r.Context())
	return id
}
