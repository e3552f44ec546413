package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cuentas/internal/core"
)

const depositColumns = `id, description, amount_cents, ingress_date, account_id, origin_movement_id, created_at`

const createDeposit = `
INSERT INTO deposits (description, amount_cents, ingress_date, account_id)
VALUES (?, ?, ?, ?)
RETURNING ` + depositColumns

func (q *Queries) CreateDeposit(ctx context.Context, d core.Deposit) (core.Deposit, error) {
	row := q.db.QueryRowContext(ctx, createDeposit,
		d.Description, d.Amount.Cents, formatDate(d.IngressDate), nullInt64(d.AccountID))
	return scanDeposit(row)
}

const getDeposit = `SELECT ` + depositColumns + ` FROM deposits WHERE id = ?`

func (q *Queries) GetDeposit(ctx context.Context, id int64) (core.Deposit, error) {
	d, err := scanDeposit(q.db.QueryRowContext(ctx, getDeposit, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Deposit{}, core.ErrNotFound
	}
	return d, err
}

const assignDepositAccount = `
UPDATE deposits SET account_id = ?
WHERE id = ? AND origin_movement_id IS NULL
RETURNING ` + depositColumns

// AssignDepositAccount only applies to deposits that are not linked yet.
func (q *Queries) AssignDepositAccount(ctx context.Context, id, accountID int64) (core.Deposit, error) {
	d, err := scanDeposit(q.db.QueryRowContext(ctx, assignDepositAccount, accountID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Deposit{}, core.ErrNotFound
	}
	return d, err
}

const listPendingDeposits = `
SELECT ` + depositColumns + `
FROM deposits
WHERE account_id IS NOT NULL AND origin_movement_id IS NULL
ORDER BY ingress_date, id
LIMIT ?`

// ListPendingDeposits returns deposits with an account and no linked movement.
func (q *Queries) ListPendingDeposits(ctx context.Context, limit int) ([]core.Deposit, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, listPendingDeposits, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const linkDeposit = `
UPDATE deposits SET origin_movement_id = ?
WHERE id = ? AND origin_movement_id IS NULL`

// LinkDeposit is a conditional update: it reports false when another run
// already linked the deposit.
func (q *Queries) LinkDeposit(ctx context.Context, id, movementID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, linkDeposit, movementID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanDeposit(s scanner) (core.Deposit, error) {
	var (
		d         core.Deposit
		ingress   string
		accountID sql.NullInt64
		origin    sql.NullInt64
		createdAt string
	)
	err := s.Scan(&d.ID, &d.Description, &d.Amount.Cents, &ingress, &accountID, &origin, &createdAt)
	if err != nil {
		return core.Deposit{}, fmt.Errorf("scan deposit: %w", err)
	}
	if d.IngressDate, err = parseDate(ingress); err != nil {
		return core.Deposit{}, err
	}
	d.AccountID = int64Ptr(accountID)
	d.OriginMovementID = int64Ptr(origin)
	d.CreatedAt = parseTimestamp(createdAt)
	return d, nil
}

// parseTimestamp accepts both what CURRENT_TIMESTAMP stores and what the
// driver hands back once it has already decoded the column as a time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
