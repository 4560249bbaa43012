package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Debt struct {
	ID                string          `json:"id"`
	DebtorID          string          `json:"debtor_id"`
	LoanNumber        string          `json:"loan_number"`
	AccountNumber     string          `json:"account_number"`
	LoanType          string          `json:"loan_type"`
	LoanAmount        decimal.Decimal `json:"loan_amount"`
	LoanFrequency     string          `json:"loan_frequency"`
	Balance           decimal.Decimal `json:"balance"`
	AmountDue         decimal.Decimal `json:"amount_due"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	PayoffAmount      decimal.Decimal `json:"payoff_amount"`
	LateFees          decimal.Decimal `json:"late_fees"`
	APR               decimal.Decimal `json:"apr"`
	LastPaymentAmount decimal.Decimal `json:"last_payment_amount"`
	DateLoanMade      *time.Time      `json:"date_loan_made,omitempty"`
	DateFirstPayment  *time.Time      `json:"date_first_payment,omitempty"`
	DateContractDue   *time.Time      `json:"date_contract_due,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
}

// Label is the account name shown next to payments and in the account picker.
func (d Debt) Label() string {
	return "Loan #" + d.LoanNumber
}
