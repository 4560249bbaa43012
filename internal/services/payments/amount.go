package payments

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^\d*\.?\d{0,2}$`)

// ParseAmount accepts a plain positive amount with at most two decimals.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || !amountPattern.MatchString(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
