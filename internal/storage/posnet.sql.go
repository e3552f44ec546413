package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuentas/internal/core"
)

const upsertMonthlyPosnet = `
INSERT INTO monthly_posnet (year, month, total_rentas_cents, total_caja_cents)
VALUES (?, ?, ?, ?)
ON CONFLICT(year, month) DO UPDATE SET
    total_rentas_cents = total_rentas_cents + excluded.total_rentas_cents,
    total_caja_cents = total_caja_cents + excluded.total_caja_cents
RETURNING year, month, total_rentas_cents, total_caja_cents`

// UpsertMonthlyPosnet adds rentas and caja to the (year, month) row.
func (q *Queries) UpsertMonthlyPosnet(ctx context.Context, year, month int, rentas, caja core.Money) (core.MonthlyPosnet, error) {
	var m core.MonthlyPosnet
	err := q.db.QueryRowContext(ctx, upsertMonthlyPosnet, year, month, rentas.Cents, caja.Cents).
		Scan(&m.Year, &m.Month, &m.TotalRentas.Cents, &m.TotalCaja.Cents)
	if err != nil {
		return core.MonthlyPosnet{}, fmt.Errorf("scan monthly posnet: %w", err)
	}
	return m, nil
}

const listMonthlyPosnet = `
SELECT year, month, total_rentas_cents, total_caja_cents
FROM monthly_posnet
WHERE (? = 0 OR year = ?)
ORDER BY year, month`

func (q *Queries) ListMonthlyPosnet(ctx context.Context, year int) ([]core.MonthlyPosnet, error) {
	rows, err := q.db.QueryContext(ctx, listMonthlyPosnet, year, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.MonthlyPosnet
	for rows.Next() {
		var m core.MonthlyPosnet
		if err := rows.Scan(&m.Year, &m.Month, &m.TotalRentas.Cents, &m.TotalCaja.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly posnet: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const dailyPosnetColumns = `date, monto_rentas_cents, monto_caja_cents, total_posnet_cents,
       monto_ingresado_banco_cents, diferencia_cents`

// SQLite evaluates every SET expression against the pre-update row, so the
// derived columns below are computed from old values plus excluded.
const upsertDailyPosnet = `
INSERT INTO daily_posnet (date, monto_rentas_cents, monto_caja_cents, total_posnet_cents,
                          monto_ingresado_banco_cents, diferencia_cents)
VALUES (?, ?, ?, ?, 0, ?)
ON CONFLICT(date) DO UPDATE SET
    monto_rentas_cents = monto_rentas_cents + excluded.monto_rentas_cents,
    monto_caja_cents = monto_caja_cents + excluded.monto_caja_cents,
    total_posnet_cents = monto_rentas_cents + excluded.monto_rentas_cents
                       + monto_caja_cents + excluded.monto_caja_cents,
    diferencia_cents = monto_rentas_cents + excluded.monto_rentas_cents
                     + monto_caja_cents + excluded.monto_caja_cents
                     - monto_ingresado_banco_cents
RETURNING ` + dailyPosnetColumns

func (q *Queries) UpsertDailyPosnet(ctx context.Context, d core.Date, rentas, caja core.Money) (core.DailyPosnet, error) {
	total := rentas.Add(caja)
	row := q.db.QueryRowContext(ctx, upsertDailyPosnet, formatDate(d), rentas.Cents, caja.Cents, total.Cents, total.Cents)
	return scanDailyPosnet(row)
}

const setBankAmount = `
INSERT INTO daily_posnet (date, monto_ingresado_banco_cents, diferencia_cents)
VALUES (?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
    monto_ingresado_banco_cents = excluded.monto_ingresado_banco_cents,
    diferencia_cents = total_posnet_cents - excluded.monto_ingresado_banco_cents
RETURNING ` + dailyPosnetColumns

// SetBankAmount records the bank-confirmed amount for a day. A day with no
// card postings yet is created with total_posnet 0 and diferencia -amount.
func (q *Queries) SetBankAmount(ctx context.Context, d core.Date, amount core.Money) (core.DailyPosnet, error) {
	row := q.db.QueryRowContext(ctx, setBankAmount, formatDate(d), amount.Cents, -amount.Cents)
	return scanDailyPosnet(row)
}

const getDailyPosnet = `SELECT ` + dailyPosnetColumns + ` FROM daily_posnet WHERE date = ?`

func (q *Queries) GetDailyPosnet(ctx context.Context, d core.Date) (core.DailyPosnet, error) {
	p, err := scanDailyPosnet(q.db.QueryRowContext(ctx, getDailyPosnet, formatDate(d)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.DailyPosnet{}, core.ErrNotFound
	}
	return p, err
}

const listDailyPosnet = `
SELECT ` + dailyPosnetColumns + `
FROM daily_posnet
WHERE (? = '' OR date >= ?) AND (? = '' OR date <= ?)
ORDER BY date`

func (q *Queries) ListDailyPosnet(ctx context.Context, from, to core.Date) ([]core.DailyPosnet, error) {
	var f, t string
	if !from.IsZero() {
		f = formatDate(from)
	}
	if !to.IsZero() {
		t = formatDate(to)
	}
	rows, err := q.db.QueryContext(ctx, listDailyPosnet, f, f, t, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.DailyPosnet
	for rows.Next() {
		p, err := scanDailyPosnet(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanDailyPosnet(s scanner) (core.DailyPosnet, error) {
	var (
		p    core.DailyPosnet
		date string
	)
	err := s.Scan(&date, &p.MontoRentas.Cents, &p.MontoCaja.Cents, &p.TotalPosnet.Cents,
		&p.MontoIngresadoBanco.Cents, &p.Diferencia.Cents)
	if err != nil {
		return core.DailyPosnet{}, fmt.Errorf("scan daily posnet: %w", err)
	}
	if p.Date, err = parseDate(date); err != nil {
		return core.DailyPosnet{}, err
	}
	return p, nil
}
