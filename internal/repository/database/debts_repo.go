package database

import (
	"context"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"

	"github.com/jackc/pgx/v5"
)

type DebtsRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewDebtsRepo(pg *postgres.Postgres, table string) *DebtsRepo {
	if table == "" {
		table = "debt"
	}
	return &DebtsRepo{
		pg:    pg,
		table: table,
	}
}

const debtColumns = `
	id::text, debtor_id::text, loan_number, account_number, loan_type,
	loan_amount::text, loan_frequency, balance::text, amount_due::text,
	payment_amount::text, payoff_amount::text, late_fees::text, apr::text,
	last_payment_amount::text, date_loan_made, date_first_payment,
	date_contract_due, created_at
`

func scanDebt(row pgx.Row) (*models.Debt, error) {
	var d models.Debt
	var loanAmount, balance, amountDue, paymentAmount, payoff, lateFees, apr, lastPayment string
	err := row.Scan(
		&d.ID, &d.DebtorID, &d.LoanNumber, &d.AccountNumber, &d.LoanType,
		&loanAmount, &d.LoanFrequency, &balance, &amountDue,
		&paymentAmount, &payoff, &lateFees, &apr,
		&lastPayment, &d.DateLoanMade, &d.DateFirstPayment,
		&d.DateContractDue, &d.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	d.LoanAmount = toDecimal("loan_amount", loanAmount)
	d.Balance = toDecimal("balance", balance)
	d.AmountDue = toDecimal("amount_due", amountDue)
	d.PaymentAmount = toDecimal("payment_amount", paymentAmount)
	d.PayoffAmount = toDecimal("payoff_amount", payoff)
	d.LateFees = toDecimal("late_fees", lateFees)
	d.APR = toDecimal("apr", apr)
	d.LastPaymentAmount = toDecimal("last_payment_amount", lastPayment)
	return &d, nil
}

func (r *DebtsRepo) ListByDebtor(ctx context.Context, debtorID string) ([]models.Debt, error) {
	rows, err := r.pg.Pool.Query(ctx,
		`SELECT `+debtColumns+` FROM `+r.table+`
		WHERE debtor_id = $1::uuid
		ORDER BY created_at, loan_number`, debtorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Debt, 0)
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetForDebtor returns the debt only when it belongs to debtorID.
func (r *DebtsRepo) GetForDebtor(ctx context.Context, debtorID, debtID string) (*models.Debt, error) {
	row := r.pg.Pool.QueryRow(ctx,
		`SELECT `+debtColumns+` FROM `+r.table+`
		WHERE id::text = $1 AND debtor_id = $2::uuid`, debtID, debtorID)
	return scanDebt(row)
}
