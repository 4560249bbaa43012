package dashboard

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/xuri/excelize/v2"
)

const historySheet = "Payments"

var historyHeader = []any{"Date", "Account", "Amount", "Method", "Status", "Transaction ID", "Notes"}

// ExportHistory writes the payment history as an xlsx workbook to w.
func (s *Service) ExportHistory(ctx context.Context, debtorID string, w io.Writer) (int, error) {
	history, err := s.History(ctx, debtorID)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("[EXPORT][WARN] close workbook: %v", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return 0, err
	}
	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return 0, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return 0, err
	}
	if err := f.SetCellStyle(historySheet, "A1", "G1", bold); err != nil {
		return 0, err
	}

	for i, h := range history {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		amount, _ := h.Amount.Float64()
		row := []any{
			h.Date.Format("2006-01-02"),
			h.Account,
			amount,
			h.Method,
			h.Status,
			h.TransactionID,
			h.Notes,
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return 0, err
		}
		amountCell := fmt.Sprintf("C%d", i+2)
		if err := f.SetCellStyle(historySheet, amountCell, amountCell, money); err != nil {
			return 0, err
		}
	}

	if err := f.SetColWidth(historySheet, "A", "G", 18); err != nil {
		return 0, err
	}
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	log.Printf("[EXPORT][OK] debtor=%s rows=%d", debtorID, len(history))
	return len(history), nil
}
