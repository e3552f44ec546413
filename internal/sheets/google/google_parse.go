package google

import (
	"fmt"
	"strconv"
	"strings"

	"cuentas/internal/sheets"
)

// Row kinds written in column C.
const (
	kindSummary  = "RESUMEN"
	kindMovement = "MOVIMIENTO"
)

// batchRows lays a batch out as one summary row followed by one row per
// movement. Columns: A batch, B fecha, C tipo, D cuenta, E direccion,
// F concepto, G monto, H saldo/diferencia, I alertas.
func batchRows(rec sheets.BatchRecord) [][]any {
	rows := make([][]any, 0, len(rec.Movements)+1)
	rows = append(rows, []any{
		rec.BatchID,
		rec.Date.String(),
		kindSummary,
		"",
		"",
		"entregado " + rec.Entregado.String(),
		rec.Total.String(),
		rec.Diferencia.String(),
		strings.Join(rec.Alerts, "; "),
	})
	for _, m := range rec.Movements {
		rows = append(rows, []any{
			rec.BatchID,
			rec.Date.String(),
			kindMovement,
			m.Account,
			string(m.Direction),
			m.Concept,
			m.Amount.String(),
			m.Balance.String(),
			"",
		})
	}
	return rows
}

// containsBatch scans the first column for a batch id.
func containsBatch(values [][]interface{}, batchID string) bool {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return false
	}
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == batchID {
			return true
		}
	}
	return false
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
