package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodPayPal    = "PayPal"
	PaymentStatusCompleted = "completed"
	PaymentNotePortal      = "Payment made through portal"
)

type Payment struct {
	ID             string          `json:"id"`
	DebtID         string          `json:"debt_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentDate    time.Time       `json:"payment_date"`
	PaymentMethod  string          `json:"payment_method"`
	TransactionID  string          `json:"transaction_id"`
	IdempotencyKey *string         `json:"-"`
	Status         string          `json:"status"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}
