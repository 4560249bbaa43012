package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	// ReferenceID ties the processor order back to a debt.
	ReferenceID string
}

type Order struct {
	ID          string
	Status      string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Capture is the processor's answer to an approved order, reduced to the
// fields the portal relies on. Raw keeps the full payload for the audit log.
type Capture struct {
	TransactionID string
	OrderID       string
	Status        string
	Amount        decimal.Decimal
	Currency      string
	Raw           json.RawMessage
}

const CaptureStatusCompleted = "COMPLETED"

var ErrCaptureMismatch = errors.New("capture does not match the requested payment")

func (c Capture) Validate(amount decimal.Decimal, currency string) error {
	if strings.TrimSpace(c.TransactionID) == "" {
		return fmt.Errorf("%w: empty transaction id", ErrCaptureMismatch)
	}
	if c.Status != CaptureStatusCompleted {
		return fmt.Errorf("%w: status %q", ErrCaptureMismatch, c.Status)
	}
	if !c.Amount.Equal(amount) {
		return fmt.Errorf("%w: captured %s, expected %s", ErrCaptureMismatch, c.Amount.StringFixed(2), amount.StringFixed(2))
	}
	if currency != "" && c.Currency != "" && !strings.EqualFold(c.Currency, currency) {
		return fmt.Errorf("%w: currency %q, expected %q", ErrCaptureMismatch, c.Currency, currency)
	}
	return nil
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	CaptureOrder(ctx context.Context, orderID string) (Capture, error)
}
