package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuentas/internal/core"
)

const createAccount = `
INSERT INTO accounts (name, balance_cents) VALUES (?, 0)
RETURNING id, name, balance_cents`

func (q *Queries) CreateAccount(ctx context.Context, name string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, createAccount, name)
	return scanAccount(row)
}

const getAccount = `SELECT id, name, balance_cents FROM accounts WHERE id = ?`

// GetAccount returns core.ErrNotFound when the id does not exist.
func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, getAccount, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	return a, err
}

const getAccountByName = `SELECT id, name, balance_cents FROM accounts WHERE name = ?`

func (q *Queries) GetAccountByName(ctx context.Context, name string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByName, name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	return a, err
}

const ensureAccount = `
INSERT INTO accounts (name, balance_cents) VALUES (?, 0)
ON CONFLICT(name) DO UPDATE SET name = excluded.name
RETURNING id, name, balance_cents`

// EnsureAccount returns the account with the given name, creating it empty if needed.
func (q *Queries) EnsureAccount(ctx context.Context, name string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, ensureAccount, name)
	return scanAccount(row)
}

const listAccounts = `SELECT id, name, balance_cents FROM accounts ORDER BY name`

func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateAccountBalance = `UPDATE accounts SET balance_cents = ? WHERE id = ?`

func (q *Queries) UpdateAccountBalance(ctx context.Context, id int64, balance core.Money) error {
	res, err := q.db.ExecContext(ctx, updateAccountBalance, balance.Cents, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func scanAccount(s scanner) (core.Account, error) {
	var a core.Account
	if err := s.Scan(&a.ID, &a.Name, &a.Balance.Cents); err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}
