package handlers

import (
	"context"
	"io"
	"strings"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/services/auth"
	"debtster_portal/internal/services/dashboard"
	"debtster_portal/internal/services/payments"
	"debtster_portal/internal/services/verification"

	"github.com/shopspring/decimal"
)

type fakeAuth struct {
	res       *auth.Result
	err       error
	signedOut []string
	patch     map[string]any
	ip        string
}

func (f *fakeAuth) SignUp(_ context.Context, _, _, _, _, _ string) (*auth.Result, error) {
	return f.res, f.err
}

func (f *fakeAuth) SignIn(_ context.Context, _, _, ip, _ string) (*auth.Result, error) {
	f.ip = ip
	return f.res, f.err
}

func (f *fakeAuth) SignInWithProvider(_ context.Context, _ auth.ProviderProfile, _, _ string) (*auth.Result, error) {
	return f.res, f.err
}

func (f *fakeAuth) SignOut(_ context.Context, token string) error {
	f.signedOut = append(f.signedOut, token)
	return f.err
}

func (f *fakeAuth) UpdateMetadata(_ context.Context, _ string, patch map[string]any) (map[string]any, error) {
	f.patch = patch
	return patch, f.err
}

type fakeGoogle struct {
	state   string
	profile auth.ProviderProfile
	err     error
}

func (f *fakeGoogle) AuthCodeURL() (string, string, error) {
	return "https://accounts.example/consent?state=" + f.state, f.state, nil
}

func (f *fakeGoogle) Exchange(context.Context, string) (auth.ProviderProfile, error) {
	return f.profile, f.err
}

type fakeVerifier struct {
	verified bool
	res      *verification.Result
	err      error
	got      verification.Request
}

func (f *fakeVerifier) Status(context.Context, string) (bool, string, error) {
	return f.verified, "", nil
}

func (f *fakeVerifier) Verify(_ context.Context, _, _ string, req verification.Request) (*verification.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakePayments struct {
	view    *payments.AccountsView
	debt    *models.Debt
	order   *payments.OrderResult
	capture *payments.CaptureResult
	err     error
	req     payments.CaptureRequest
}

func (f *fakePayments) Accounts(context.Context, string) (*payments.AccountsView, error) {
	return f.view, f.err
}

func (f *fakePayments) Account(context.Context, string, string) (*models.Debt, error) {
	return f.debt, f.err
}

func (f *fakePayments) CreateOrder(context.Context, string, string, decimal.Decimal) (*payments.OrderResult, error) {
	return f.order, f.err
}

func (f *fakePayments) Capture(_ context.Context, req payments.CaptureRequest) (*payments.CaptureResult, error) {
	f.req = req
	return f.capture, f.err
}

type fakeViews struct {
	summary  *dashboard.Summary
	rows     []dashboard.HistoryRow
	receipts map[string]string
	err      error
}

func (f *fakeViews) Summary(context.Context, string) (*dashboard.Summary, error) {
	return f.summary, f.err
}

func (f *fakeViews) History(context.Context, string) ([]dashboard.HistoryRow, error) {
	return f.rows, f.err
}

func (f *fakeViews) ExportHistory(_ context.Context, _ string, w io.Writer) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	_, err := io.WriteString(w, "PK-fake-xlsx")
	return len(f.rows), err
}

func (f *fakeViews) Receipt(_ context.Context, debtorID, txn string) (io.ReadCloser, ports.Meta, error) {
	body, ok := f.receipts[debtorID+"/"+txn]
	if !ok {
		return nil, ports.Meta{}, ports.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), ports.Meta{ContentType: "application/json", Size: int64(len(body))}, nil
}
