package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"

	"github.com/shopspring/decimal"
)

const (
	NotAvailable   = "N/A"
	UnknownAccount = "Unknown"
	recentLimit    = 5
)

var ErrDebtorNotFound = errors.New("debtor not found")

type DebtorStore interface {
	GetByID(ctx context.Context, id string) (*models.Debtor, error)
}

type DebtStore interface {
	ListByDebtor(ctx context.Context, debtorID string) ([]models.Debt, error)
}

type PaymentLister interface {
	ListByDebts(ctx context.Context, debtIDs []string, limit int) ([]models.Payment, error)
}

type Service struct {
	debtors  DebtorStore
	debts    DebtStore
	payments PaymentLister
	receipts ports.ReceiptStore
}

func NewService(debtors DebtorStore, debts DebtStore, payments PaymentLister, receipts ports.ReceiptStore) *Service {
	return &Service{debtors: debtors, debts: debts, payments: payments, receipts: receipts}
}

type HistoryRow struct {
	ID            string          `json:"id"`
	Date          time.Time       `json:"date"`
	Account       string          `json:"account"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Notes         string          `json:"notes,omitempty"`
}

type Summary struct {
	Debtor         *models.Debtor  `json:"debtor"`
	Debts          []models.Debt   `json:"debts"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
	TotalDue       decimal.Decimal `json:"total_due"`
	RecentPayments []HistoryRow    `json:"recent_payments"`
}

func (s *Service) Summary(ctx context.Context, debtorID string) (*Summary, error) {
	debtor, err := s.debtors.GetByID(ctx, debtorID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, ErrDebtorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load debtor: %w", err)
	}

	debts, err := s.debts.ListByDebtor(ctx, debtorID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}

	sum := &Summary{
		Debtor:       debtor,
		Debts:        debts,
		TotalBalance: decimal.Zero,
		TotalDue:     decimal.Zero,
	}
	for _, d := range debts {
		sum.TotalBalance = sum.TotalBalance.Add(d.Balance)
		sum.TotalDue = sum.TotalDue.Add(d.AmountDue)
	}

	recent, err := s.payments.ListByDebts(ctx, debtIDs(debts), recentLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent payments: %w", err)
	}
	sum.RecentPayments = rows(recent, debts)
	return sum, nil
}

// History is every payment of the debtor, newest first.
func (s *Service) History(ctx context.Context, debtorID string) ([]HistoryRow, error) {
	debts, err := s.debts.ListByDebtor(ctx, debtorID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	payments, err := s.payments.ListByDebts(ctx, debtIDs(debts), 0)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return rows(payments, debts), nil
}

func debtIDs(debts []models.Debt) []string {
	ids := make([]string, 0, len(debts))
	for _, d := range debts {
		ids = append(ids, d.ID)
	}
	return ids
}

func rows(payments []models.Payment, debts []models.Debt) []HistoryRow {
	labels := make(map[string]string, len(debts))
	for _, d := range debts {
		labels[d.ID] = d.Label()
	}

	sorted := make([]models.Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PaymentDate.After(sorted[j].PaymentDate)
	})

	out := make([]HistoryRow, 0, len(sorted))
	for _, p := range sorted {
		label, ok := labels[p.DebtID]
		if !ok {
			label = UnknownAccount
		}
		txn := strings.TrimSpace(p.TransactionID)
		if txn == "" {
			txn = NotAvailable
		}
		row := HistoryRow{
			ID:            p.ID,
			Date:          p.PaymentDate,
			Account:       label,
			Amount:        p.Amount,
			Method:        p.PaymentMethod,
			Status:        p.Status,
			TransactionID: txn,
		}
		if p.Notes != nil {
			row.Notes = *p.Notes
		}
		out = append(out, row)
	}
	return out
}

type Confirmation struct {
	Amount        string `json:"amount"`
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
}

// BuildConfirmation echoes the query values back. Nothing is looked up, so it
// cannot fail; missing values render as N/A.
func BuildConfirmation(q url.Values, now time.Time) Confirmation {
	c := Confirmation{
		Amount:        strings.TrimSpace(q.Get("amount")),
		TransactionID: strings.TrimSpace(q.Get("transaction")),
		Date:          now.Format("January 2, 2006"),
	}
	if c.Amount == "" {
		c.Amount = NotAvailable
	}
	if c.TransactionID == "" {
		c.TransactionID = NotAvailable
	}
	return c
}

func (s *Service) Receipt(ctx context.Context, debtorID, transactionID string) (io.ReadCloser, ports.Meta, error) {
	if s.receipts == nil || strings.TrimSpace(transactionID) == "" {
		return nil, ports.Meta{}, ports.ErrNotFound
	}
	return s.receipts.Open(ctx, ports.ReceiptKey(debtorID, transactionID))
}
