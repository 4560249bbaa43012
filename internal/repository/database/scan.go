package database

import (
	"errors"
	"log"

	"debtster_portal/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// numeric columns are selected as ::text and parsed here, so no driver-side
// decimal codec is needed.
func toDecimal(col, s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Printf("[PG][WARN] bad numeric in %s: %q: %v", col, s, err)
		return decimal.Zero
	}
	return d
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}
