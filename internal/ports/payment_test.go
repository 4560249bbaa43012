package ports

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCaptureValidate(t *testing.T) {
	forty := decimal.RequireFromString("40.00")

	cases := []struct {
		name    string
		capture Capture
		wantErr bool
	}{
		{"completed and matching", Capture{TransactionID: "TX1", Status: "COMPLETED", Amount: decimal.RequireFromString("40"), Currency: "USD"}, false},
		{"missing id", Capture{Status: "COMPLETED", Amount: forty}, true},
		{"pending", Capture{TransactionID: "TX1", Status: "PENDING", Amount: forty}, true},
		{"wrong amount", Capture{TransactionID: "TX1", Status: "COMPLETED", Amount: decimal.RequireFromString("39.99")}, true},
		{"wrong currency", Capture{TransactionID: "TX1", Status: "COMPLETED", Amount: forty, Currency: "EUR"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.capture.Validate(forty, "USD")
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err=%v wantErr=%v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCaptureMismatch) {
				t.Fatalf("expected ErrCaptureMismatch, got %v", err)
			}
		})
	}
}
