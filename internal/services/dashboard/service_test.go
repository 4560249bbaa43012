package dashboard

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	debtors  map[string]models.Debtor
	debts    []models.Debt
	payments []models.Payment
	limits   []int
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.Debtor, error) {
	d, ok := f.debtors[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &d, nil
}

func (f *fakeStore) ListByDebtor(_ context.Context, debtorID string) ([]models.Debt, error) {
	var out []models.Debt
	for _, d := range f.debts {
		if d.DebtorID == debtorID {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListByDebts ignores debtIDs on purpose so tests can feed payments of a
// debt that no longer exists.
func (f *fakeStore) ListByDebts(_ context.Context, _ []string, limit int) ([]models.Payment, error) {
	f.limits = append(f.limits, limit)
	out := append([]models.Payment(nil), f.payments...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeReceipts struct {
	objects map[string]string
}

func (f fakeReceipts) Put(context.Context, string, []byte, string) (ports.Meta, error) {
	return ports.Meta{}, nil
}

func (f fakeReceipts) Open(_ context.Context, key string) (io.ReadCloser, ports.Meta, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, ports.Meta{}, ports.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), ports.Meta{Key: key, ContentType: "application/json"}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }

func newStore() *fakeStore {
	return &fakeStore{
		debtors: map[string]models.Debtor{"debtor-1": {ID: "debtor-1", FirstName: "Jane", LastName: "Doe"}},
		debts: []models.Debt{
			{ID: "debt-1", DebtorID: "debtor-1", LoanNumber: "L1", Balance: dec("100.10"), AmountDue: dec("25.05")},
			{ID: "debt-2", DebtorID: "debtor-1", LoanNumber: "L2", Balance: dec("0.20"), AmountDue: dec("10.10")},
		},
		payments: []models.Payment{
			{ID: "p1", DebtID: "debt-1", Amount: dec("10"), PaymentDate: day(1), TransactionID: "T1"},
			{ID: "p3", DebtID: "debt-2", Amount: dec("30"), PaymentDate: day(3)},
			{ID: "p2", DebtID: "gone", Amount: dec("20"), PaymentDate: day(2), TransactionID: "T2"},
		},
	}
}

func TestSummary_Totals(t *testing.T) {
	store := newStore()
	svc := NewService(store, store, store, nil)

	sum, err := svc.Summary(context.Background(), "debtor-1")
	require.NoError(t, err)
	assert.Equal(t, "100.30", sum.TotalBalance.StringFixed(2))
	assert.Equal(t, "35.15", sum.TotalDue.StringFixed(2))
	assert.Len(t, sum.RecentPayments, 3)
	assert.Equal(t, []int{5}, store.limits)
}

func TestSummary_NoDebts(t *testing.T) {
	store := newStore()
	store.debts = nil
	store.payments = nil
	svc := NewService(store, store, store, nil)

	sum, err := svc.Summary(context.Background(), "debtor-1")
	require.NoError(t, err)
	assert.True(t, sum.TotalBalance.IsZero())
	assert.Empty(t, sum.RecentPayments)
}

func TestSummary_UnknownDebtor(t *testing.T) {
	store := newStore()
	svc := NewService(store, store, store, nil)
	_, err := svc.Summary(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrDebtorNotFound)
}

func TestHistory_OrderAndLabels(t *testing.T) {
	store := newStore()
	svc := NewService(store, store, store, nil)

	rows, err := svc.History(context.Background(), "debtor-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].Date.After(rows[i].Date), "rows must be strictly newest first")
	}
	assert.Equal(t, "p3", rows[0].ID)
	assert.Equal(t, "Loan #L2", rows[0].Account)
	assert.Equal(t, NotAvailable, rows[0].TransactionID)
	assert.Equal(t, UnknownAccount, rows[1].Account)
	assert.Equal(t, "Loan #L1", rows[2].Account)
	assert.Equal(t, []int{0}, store.limits)
}

func TestExportHistory(t *testing.T) {
	store := newStore()
	svc := NewService(store, store, store, nil)

	var buf bytes.Buffer
	n, err := svc.ExportHistory(context.Background(), "debtor-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "2024-03-03", rows[1][0])
	assert.Equal(t, "Loan #L2", rows[1][1])
	assert.Equal(t, "N/A", rows[1][5])
}

func TestBuildConfirmation(t *testing.T) {
	now := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	c := BuildConfirmation(url.Values{}, now)
	assert.Equal(t, NotAvailable, c.Amount)
	assert.Equal(t, NotAvailable, c.TransactionID)
	assert.Equal(t, "May 6, 2024", c.Date)

	c = BuildConfirmation(url.Values{"amount": {"40.00"}, "transaction": {"CAP-1"}}, now)
	assert.Equal(t, "40.00", c.Amount)
	assert.Equal(t, "CAP-1", c.TransactionID)
}

func TestReceipt(t *testing.T) {
	store := newStore()
	receipts := fakeReceipts{objects: map[string]string{
		ports.ReceiptKey("debtor-1", "CAP-1"): `{"transaction_id":"CAP-1"}`,
	}}
	svc := NewService(store, store, store, receipts)

	rc, meta, err := svc.Receipt(context.Background(), "debtor-1", "CAP-1")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Contains(t, string(body), "CAP-1")
	assert.Equal(t, "application/json", meta.ContentType)

	_, _, err = svc.Receipt(context.Background(), "debtor-2", "CAP-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
