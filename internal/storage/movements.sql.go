package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuentas/internal/core"
)

const movementColumns = `id, account_id, date, direction, concept, amount_cents, resulting_balance_cents,
       origin_movement_id, concept_id, batch_id, created_at`

const insertMovement = `
INSERT INTO movements (account_id, date, direction, concept, amount_cents, resulting_balance_cents,
                       origin_movement_id, concept_id, batch_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + movementColumns

func (q *Queries) InsertMovement(ctx context.Context, m core.Movement) (core.Movement, error) {
	row := q.db.QueryRowContext(ctx, insertMovement,
		m.AccountID,
		formatDate(m.Date),
		string(m.Direction),
		m.Concept,
		m.Amount.Cents,
		m.ResultingBalance.Cents,
		nullInt64(m.OriginMovementID),
		nullInt64(m.ConceptID),
		nullString(m.BatchID),
		m.CreatedAt,
	)
	return scanMovement(row)
}

const getMovement = `SELECT ` + movementColumns + ` FROM movements WHERE id = ?`

func (q *Queries) GetMovement(ctx context.Context, id int64) (core.Movement, error) {
	row := q.db.QueryRowContext(ctx, getMovement, id)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Movement{}, core.ErrNotFound
	}
	return m, err
}

const listMovementsFrom = `
SELECT ` + movementColumns + `
FROM movements
WHERE account_id = ? AND date >= ?
ORDER BY date, created_at, id`

// ListMovementsFrom returns the account's movements dated on or after from, in
// ledger order. A zero from returns the whole log.
func (q *Queries) ListMovementsFrom(ctx context.Context, accountID int64, from core.Date) ([]core.Movement, error) {
	var fromStr string
	if !from.IsZero() {
		fromStr = formatDate(from)
	}
	rows, err := q.db.QueryContext(ctx, listMovementsFrom, accountID, fromStr)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

const balanceBefore = `
SELECT resulting_balance_cents
FROM movements
WHERE account_id = ? AND date < ?
ORDER BY date DESC, created_at DESC, id DESC
LIMIT 1`

// BalanceBefore is the snapshot of the last movement dated strictly before d,
// or zero when there is none.
func (q *Queries) BalanceBefore(ctx context.Context, accountID int64, d core.Date) (core.Money, error) {
	if d.IsZero() {
		return core.Money{}, nil
	}
	var cents int64
	err := q.db.QueryRowContext(ctx, balanceBefore, accountID, formatDate(d)).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

const hasMovementsAfter = `SELECT EXISTS (SELECT 1 FROM movements WHERE account_id = ? AND date > ?)`

func (q *Queries) HasMovementsAfter(ctx context.Context, accountID int64, d core.Date) (bool, error) {
	var exists int64
	if err := q.db.QueryRowContext(ctx, hasMovementsAfter, accountID, formatDate(d)).Scan(&exists); err != nil {
		return false, err
	}
	return exists == 1, nil
}

const updateMovement = `
UPDATE movements SET date = ?, concept = ?, amount_cents = ?
WHERE id = ?`

func (q *Queries) UpdateMovement(ctx context.Context, m core.Movement) error {
	res, err := q.db.ExecContext(ctx, updateMovement, formatDate(m.Date), m.Concept, m.Amount.Cents, m.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

const setResultingBalance = `UPDATE movements SET resulting_balance_cents = ? WHERE id = ?`

// SetResultingBalance reports how many rows were touched so callers can notice
// a row that disappeared underneath them.
func (q *Queries) SetResultingBalance(ctx context.Context, id int64, balance core.Money) (int64, error) {
	res, err := q.db.ExecContext(ctx, setResultingBalance, balance.Cents, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteMovement = `DELETE FROM movements WHERE id = ?`

func (q *Queries) DeleteMovement(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteMovement, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

const deleteAccountMovements = `DELETE FROM movements WHERE account_id = ?`

func (q *Queries) DeleteAccountMovements(ctx context.Context, accountID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAccountMovements, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listMovementsByBatch = `
SELECT ` + movementColumns + `
FROM movements
WHERE batch_id = ?
ORDER BY id`

func (q *Queries) ListMovementsByBatch(ctx context.Context, batchID string) ([]core.Movement, error) {
	rows, err := q.db.QueryContext(ctx, listMovementsByBatch, batchID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// MovementFilter narrows a range query. Zero values disable a condition.
type MovementFilter struct {
	AccountID int64
	From      core.Date
	To        core.Date
	Direction core.Direction
	Limit     int
	Offset    int
}

const searchMovements = `
SELECT ` + movementColumns + `
FROM movements
WHERE account_id = ?
  AND (? = '' OR date >= ?)
  AND (? = '' OR date <= ?)
  AND (? = '' OR direction = ?)
ORDER BY date, created_at, id
LIMIT ? OFFSET ?`

func (q *Queries) SearchMovements(ctx context.Context, f MovementFilter) ([]core.Movement, error) {
	from, to, dir := filterArgs(f)
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, searchMovements,
		f.AccountID, from, from, to, to, dir, dir, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

const countMovements = `
SELECT COUNT(*)
FROM movements
WHERE account_id = ?
  AND (? = '' OR date >= ?)
  AND (? = '' OR date <= ?)
  AND (? = '' OR direction = ?)`

func (q *Queries) CountMovements(ctx context.Context, f MovementFilter) (int64, error) {
	from, to, dir := filterArgs(f)
	var n int64
	err := q.db.QueryRowContext(ctx, countMovements, f.AccountID, from, from, to, to, dir, dir).Scan(&n)
	return n, err
}

func filterArgs(f MovementFilter) (from, to, dir string) {
	if !f.From.IsZero() {
		from = formatDate(f.From)
	}
	if !f.To.IsZero() {
		to = formatDate(f.To)
	}
	return from, to, string(f.Direction)
}

func collectMovements(rows *sql.Rows) ([]core.Movement, error) {
	defer rows.Close()
	var items []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanMovement(s scanner) (core.Movement, error) {
	var (
		m         core.Movement
		date      string
		direction string
		origin    sql.NullInt64
		conceptID sql.NullInt64
		batchID   sql.NullString
	)
	err := s.Scan(&m.ID, &m.AccountID, &date, &direction, &m.Concept, &m.Amount.Cents,
		&m.ResultingBalance.Cents, &origin, &conceptID, &batchID, &m.CreatedAt)
	if err != nil {
		return core.Movement{}, fmt.Errorf("scan movement: %w", err)
	}
	if m.Date, err = parseDate(date); err != nil {
		return core.Movement{}, err
	}
	m.Direction = core.Direction(direction)
	m.OriginMovementID = int64Ptr(origin)
	m.ConceptID = int64Ptr(conceptID)
	m.BatchID = batchID.String
	return m, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
