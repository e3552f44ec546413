package ledger

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cuentas/internal/core"
)

const importFields = 4

type ImportResult struct {
	Inserted int
	Errors   []core.RowError
}

// Import appends one movement per line of date,direction,concept,amount.
// A first line containing "fecha" is treated as a header. A bad row is
// recorded and skipped; it never aborts the rows after it.
func (l *Ledger) Import(ctx context.Context, accountID int64, r io.Reader) (ImportResult, error) {
	if _, err := l.repo.Queries().GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return ImportResult{}, core.NewConsistencyError("account", accountID, err)
		}
		return ImportResult{}, fmt.Errorf("get account: %w", err)
	}

	var res ImportResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if isHeader(line) {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		p, err := ParseRow(line)
		if err != nil {
			res.Errors = append(res.Errors, core.RowError{Row: lineNo, Line: line, Err: err})
			continue
		}
		p.AccountID = accountID
		if _, err := l.Append(ctx, p); err != nil {
			res.Errors = append(res.Errors, core.RowError{Row: lineNo, Line: line, Err: err})
			continue
		}
		res.Inserted++
	}
	if err := sc.Err(); err != nil {
		res.Errors = append(res.Errors, core.RowError{Row: lineNo + 1, Err: fmt.Errorf("read input: %w", err)})
	}

	slog.InfoContext(ctx, "Ledger import finished",
		"account_id", accountID,
		"inserted", res.Inserted,
		"failed", len(res.Errors))
	return res, nil
}

func isHeader(line string) bool {
	return strings.Contains(strings.ToLower(line), "fecha")
}

// ParseRow parses one date,direction,concept,amount line. Errors are
// ValidationErrors naming the offending field.
func ParseRow(line string) (AppendParams, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if err != nil {
		return AppendParams{}, core.NewValidationError("row", err)
	}
	if len(rec) != importFields {
		return AppendParams{}, core.NewValidationError("row", fmt.Errorf("expected %d fields, got %d", importFields, len(rec)))
	}

	date, err := core.ParseDate(rec[0])
	if err != nil {
		return AppendParams{}, core.NewValidationError("date", err)
	}
	dir, err := core.ParseDirection(rec[1])
	if err != nil {
		return AppendParams{}, core.NewValidationError("direction", err)
	}
	amount, err := core.ParseAmount(rec[3])
	if err != nil {
		return AppendParams{}, core.NewValidationError("amount", fmt.Errorf("%w: %q", err, rec[3]))
	}
	return AppendParams{
		Date:      date,
		Direction: dir,
		Concept:   strings.TrimSpace(rec[2]),
		Amount:    amount,
	}, nil
}
