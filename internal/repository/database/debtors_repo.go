package database

import (
	"context"
	"strings"
	"time"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"
	"debtster_portal/internal/utils"

	"github.com/jackc/pgx/v5"
)

type DebtorRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewDebtorRepo(pg *postgres.Postgres, table string) *DebtorRepo {
	if table == "" {
		table = "debtors"
	}
	return &DebtorRepo{
		pg:    pg,
		table: table,
	}
}

const debtorColumns = `
	id::text, first_name, last_name, email, phone, cell_phone, birthday,
	address, city, state, zip, loan_number, account_number, created_at
`

func scanDebtor(row pgx.Row) (*models.Debtor, error) {
	var d models.Debtor
	err := row.Scan(
		&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.CellPhone, &d.Birthday,
		&d.Address, &d.City, &d.State, &d.Zip, &d.LoanNumber, &d.AccountNumber, &d.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// FindByLoanNumber matches a debtor by loan number and date of birth. Exactly
// one row must match; ambiguous matches are treated as not found.
func (r *DebtorRepo) FindByLoanNumber(ctx context.Context, loanNumber string, birthday time.Time) (*models.Debtor, error) {
	return r.findOne(ctx, `loan_number = $1`, strings.TrimSpace(loanNumber), birthday)
}

// FindByPhone compares digits only, so formatting differences do not matter.
func (r *DebtorRepo) FindByPhone(ctx context.Context, phone string, birthday time.Time) (*models.Debtor, error) {
	digits := utils.Digits(phone)
	if digits == "" {
		return nil, notFound(pgx.ErrNoRows)
	}
	return r.findOne(ctx, `regexp_replace(phone, '[^0-9]', '', 'g') = $1`, digits, birthday)
}

func (r *DebtorRepo) findOne(ctx context.Context, cond string, key string, birthday time.Time) (*models.Debtor, error) {
	query := `SELECT ` + debtorColumns + ` FROM ` + r.table + `
		WHERE ` + cond + ` AND birthday = $2::date
		LIMIT 2`

	rows, err := r.pg.Pool.Query(ctx, query, key, birthday.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*models.Debtor
	for rows.Next() {
		d, err := scanDebtor(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, notFound(pgx.ErrNoRows)
	}
	return found[0], nil
}

func (r *DebtorRepo) GetByID(ctx context.Context, id string) (*models.Debtor, error) {
	row := r.pg.Pool.QueryRow(ctx,
		`SELECT `+debtorColumns+` FROM `+r.table+` WHERE id = $1::uuid`, id)
	return scanDebtor(row)
}
