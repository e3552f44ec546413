package storage

import (
	"context"
	"database/sql"
	"fmt"

	"cuentas/internal/core"
)

const insertReconciliation = `
INSERT INTO reconciliation_controls (kind, date, concept_id, amount_cents, movement_id, batch_id)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) InsertReconciliation(ctx context.Context, r core.ReconciliationControl) (core.ReconciliationControl, error) {
	var movementID *int64
	if r.MovementID != 0 {
		movementID = &r.MovementID
	}
	err := q.db.QueryRowContext(ctx, insertReconciliation,
		string(r.Kind), formatDate(r.Date), r.ConceptID, r.Amount.Cents, nullInt64(movementID), nullString(r.BatchID),
	).Scan(&r.ID)
	if err != nil {
		return core.ReconciliationControl{}, fmt.Errorf("insert reconciliation: %w", err)
	}
	return r, nil
}

const listReconciliations = `
SELECT id, kind, date, concept_id, amount_cents, movement_id, batch_id
FROM reconciliation_controls
WHERE kind = ? AND (? = '' OR date >= ?) AND (? = '' OR date <= ?)
ORDER BY date, id`

func (q *Queries) ListReconciliations(ctx context.Context, kind core.ReconciliationKind, from, to core.Date) ([]core.ReconciliationControl, error) {
	var f, t string
	if !from.IsZero() {
		f = formatDate(from)
	}
	if !to.IsZero() {
		t = formatDate(to)
	}
	rows, err := q.db.QueryContext(ctx, listReconciliations, string(kind), f, f, t, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.ReconciliationControl
	for rows.Next() {
		var (
			r          core.ReconciliationControl
			k, date    string
			movementID sql.NullInt64
			batchID    sql.NullString
		)
		if err := rows.Scan(&r.ID, &k, &date, &r.ConceptID, &r.Amount.Cents, &movementID, &batchID); err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		r.Kind = core.ReconciliationKind(k)
		r.MovementID = movementID.Int64
		r.BatchID = batchID.String
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
