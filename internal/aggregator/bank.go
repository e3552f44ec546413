package aggregator

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cuentas/internal/core"
)

type PosnetImportResult struct {
	Updated int
	Errors  []core.RowError
}

// SetBankAmount records what the bank actually credited for a day. Calling it
// again for the same day replaces the amount; POSNET totals are left as is.
func (a *Aggregator) SetBankAmount(ctx context.Context, d core.Date, amount core.Money) (core.DailyPosnet, error) {
	if err := d.Validate(); err != nil {
		return core.DailyPosnet{}, core.NewValidationError("date", err)
	}
	if amount.Cents < 0 {
		return core.DailyPosnet{}, core.NewValidationError("bank_amount", core.ErrInvalidAmount)
	}
	rec, err := a.repo.Queries().SetBankAmount(ctx, d, amount)
	if err != nil {
		return core.DailyPosnet{}, fmt.Errorf("set bank amount: %w", err)
	}
	return rec, nil
}

// ImportPosnetCSV reads date,bank_amount lines and stores each amount on its
// daily POSNET control. Bad rows are reported and skipped.
func (a *Aggregator) ImportPosnetCSV(ctx context.Context, r io.Reader) (PosnetImportResult, error) {
	var res PosnetImportResult
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			lower := strings.ToLower(line)
			if strings.Contains(lower, "fecha") || strings.Contains(lower, "date") {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		d, amount, err := parseBankRow(line)
		if err == nil {
			_, err = a.SetBankAmount(ctx, d, amount)
		}
		if err != nil {
			res.Errors = append(res.Errors, core.RowError{Row: lineNo, Line: line, Err: err})
			continue
		}
		res.Updated++
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read bank csv: %w", err)
	}

	slog.InfoContext(ctx, "Bank amounts imported", "updated", res.Updated, "failed", len(res.Errors))
	return res, nil
}

func parseBankRow(line string) (core.Date, core.Money, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.TrimLeadingSpace = true
	rec, err := cr.Read()
	if err != nil {
		return core.Date{}, core.Money{}, core.NewValidationError("row", err)
	}
	if len(rec) != 2 {
		return core.Date{}, core.Money{}, core.NewValidationError("row", fmt.Errorf("expected 2 fields, got %d", len(rec)))
	}
	d, err := core.ParseDate(rec[0])
	if err != nil {
		return core.Date{}, core.Money{}, core.NewValidationError("date", err)
	}
	amount, err := core.ParseMoney(rec[1])
	if err != nil {
		return core.Date{}, core.Money{}, core.NewValidationError("bank_amount", err)
	}
	return d, amount, nil
}
