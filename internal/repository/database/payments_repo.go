package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"debtster_portal/internal/config/connections/postgres"
	"debtster_portal/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type PaymentRepo struct {
	pg        *postgres.Postgres
	table     string
	debtTable string
}

func NewPaymentRepo(pg *postgres.Postgres) *PaymentRepo {
	return &PaymentRepo{pg: pg, table: "payments", debtTable: "debt"}
}

// RecordResult is the outcome of RecordPayment. Duplicate is set when the
// transaction id or idempotency key was already recorded; the balance is then
// left untouched and Payment holds the earlier row.
type RecordResult struct {
	Payment    models.Payment
	NewBalance decimal.Decimal
	Duplicate  bool
}

const paymentColumns = `
	id::text, debt_id::text, amount::text, payment_date, payment_method,
	transaction_id, idempotency_key, status, notes, created_at
`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var amount string
	err := row.Scan(
		&p.ID, &p.DebtID, &amount, &p.PaymentDate, &p.PaymentMethod,
		&p.TransactionID, &p.IdempotencyKey, &p.Status, &p.Notes, &p.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	p.Amount = toDecimal("amount", amount)
	return &p, nil
}

// RecordPayment inserts the payment and decrements the debt balance in one
// transaction. The debt row is locked first so concurrent payments against
// the same account serialize.
func (r *PaymentRepo) RecordPayment(ctx context.Context, p models.Payment) (RecordResult, error) {
	var res RecordResult
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	err := r.pg.WithTx(ctx, func(tx pgx.Tx) error {
		var balanceText string
		err := tx.QueryRow(ctx,
			`SELECT balance::text FROM `+r.debtTable+` WHERE id::text = $1 FOR UPDATE`, p.DebtID,
		).Scan(&balanceText)
		if err != nil {
			return fmt.Errorf("lock debt %s: %w", p.DebtID, notFound(err))
		}
		balance := toDecimal("balance", balanceText)

		var insertedID string
		err = tx.QueryRow(ctx, `
			INSERT INTO `+r.table+` (
				id, debt_id, amount, payment_date, payment_method,
				transaction_id, idempotency_key, status, notes, created_at
			) VALUES (
				$1::uuid, $2::uuid, $3::numeric, $4, $5,
				$6, $7, $8, $9, NOW()
			)
			ON CONFLICT DO NOTHING
			RETURNING id::text`,
			p.ID, p.DebtID, p.Amount.StringFixed(2), p.PaymentDate, p.PaymentMethod,
			p.TransactionID, p.IdempotencyKey, p.Status, p.Notes,
		).Scan(&insertedID)

		if errors.Is(err, pgx.ErrNoRows) {
			existing, ferr := r.findExisting(ctx, tx, p)
			if ferr != nil {
				return fmt.Errorf("load duplicate payment: %w", ferr)
			}
			log.Printf("[PG][payments][DUP] transaction=%s existing=%s", p.TransactionID, existing.ID)
			res = RecordResult{Payment: *existing, NewBalance: balance, Duplicate: true}
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if p.Amount.GreaterThan(balance) {
			log.Printf("[PG][payments][WARN] debt=%s overpaid: balance=%s amount=%s",
				p.DebtID, balance.StringFixed(2), p.Amount.StringFixed(2))
		}

		var newBalance string
		err = tx.QueryRow(ctx, `
			UPDATE `+r.debtTable+`
			SET balance = balance - $2::numeric,
				last_payment_amount = $2::numeric,
				updated_at = NOW()
			WHERE id::text = $1
			RETURNING balance::text`,
			p.DebtID, p.Amount.StringFixed(2),
		).Scan(&newBalance)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		p.ID = insertedID
		res = RecordResult{Payment: p, NewBalance: toDecimal("balance", newBalance)}
		return nil
	})
	if err != nil {
		return RecordResult{}, err
	}
	return res, nil
}

func (r *PaymentRepo) findExisting(ctx context.Context, tx pgx.Tx, p models.Payment) (*models.Payment, error) {
	key := ""
	if p.IdempotencyKey != nil {
		key = *p.IdempotencyKey
	}
	row := tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM `+r.table+`
		WHERE transaction_id = $1 OR ($2 <> '' AND idempotency_key = $2)
		LIMIT 1`, p.TransactionID, key)
	return scanPayment(row)
}

func (r *PaymentRepo) FindByTransaction(ctx context.Context, transactionID string) (*models.Payment, error) {
	row := r.pg.Pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM `+r.table+` WHERE transaction_id = $1`, transactionID)
	return scanPayment(row)
}

func (r *PaymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	row := r.pg.Pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM `+r.table+` WHERE idempotency_key = $1`, key)
	return scanPayment(row)
}

// ListByDebts returns payments for the given debts, newest first. limit <= 0
// means no limit.
func (r *PaymentRepo) ListByDebts(ctx context.Context, debtIDs []string, limit int) ([]models.Payment, error) {
	if len(debtIDs) == 0 {
		return []models.Payment{}, nil
	}

	query := `SELECT ` + paymentColumns + ` FROM ` + r.table + `
		WHERE debt_id::text = ANY($1::text[])
		ORDER BY payment_date DESC, created_at DESC`
	args := []any{debtIDs}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pg.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
