package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuentas/internal/core"
)

const bucketColumns = `id, kind, concept_id, quincena, period_start, period_end, total_cents,
       scheduled_payment_date, paid, paid_date`

// The conflict branch only ever adds to the total; the due date set on first
// insert is kept.
const upsertBucket = `
INSERT INTO period_buckets (kind, concept_id, quincena, period_start, period_end, total_cents, scheduled_payment_date)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(kind, concept_id, period_start, period_end) DO UPDATE SET
    total_cents = total_cents + excluded.total_cents
RETURNING ` + bucketColumns

func (q *Queries) UpsertBucket(ctx context.Context, b core.PeriodBucket) (core.PeriodBucket, error) {
	row := q.db.QueryRowContext(ctx, upsertBucket,
		string(b.Kind),
		b.ConceptID,
		string(b.Quincena),
		formatDate(b.PeriodStart),
		formatDate(b.PeriodEnd),
		b.Total.Cents,
		formatDate(b.ScheduledPaymentDate),
	)
	return scanBucket(row)
}

const getBucket = `SELECT ` + bucketColumns + ` FROM period_buckets WHERE id = ?`

func (q *Queries) GetBucket(ctx context.Context, id int64) (core.PeriodBucket, error) {
	b, err := scanBucket(q.db.QueryRowContext(ctx, getBucket, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.PeriodBucket{}, core.ErrNotFound
	}
	return b, err
}

const setBucketPaid = `
UPDATE period_buckets SET paid = ?, paid_date = ?
WHERE id = ?
RETURNING ` + bucketColumns

func (q *Queries) SetBucketPaid(ctx context.Context, id int64, paid bool, paidDate core.Date) (core.PeriodBucket, error) {
	b, err := scanBucket(q.db.QueryRowContext(ctx, setBucketPaid, boolToInt(paid), nullDate(paidDate), id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.PeriodBucket{}, core.ErrNotFound
	}
	return b, err
}

// BucketFilter narrows ListBuckets. Zero values disable a condition.
type BucketFilter struct {
	Kind      core.BucketKind
	ConceptID int64
	From      core.Date
	To        core.Date
	OnlyDue   bool
}

const listBuckets = `
SELECT ` + bucketColumns + `
FROM period_buckets
WHERE (? = '' OR kind = ?)
  AND (? = 0 OR concept_id = ?)
  AND (? = '' OR period_end >= ?)
  AND (? = '' OR period_start <= ?)
  AND (? = 0 OR paid = 0)
ORDER BY period_start, concept_id, kind`

func (q *Queries) ListBuckets(ctx context.Context, f BucketFilter) ([]core.PeriodBucket, error) {
	var from, to string
	if !f.From.IsZero() {
		from = formatDate(f.From)
	}
	if !f.To.IsZero() {
		to = formatDate(f.To)
	}
	kind := string(f.Kind)
	rows, err := q.db.QueryContext(ctx, listBuckets,
		kind, kind, f.ConceptID, f.ConceptID, from, from, to, to, boolToInt(f.OnlyDue))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.PeriodBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanBucket(s scanner) (core.PeriodBucket, error) {
	var (
		b               core.PeriodBucket
		kind, quincena  string
		start, end, due string
		paid            int64
		paidDate        sql.NullString
	)
	err := s.Scan(&b.ID, &kind, &b.ConceptID, &quincena, &start, &end, &b.Total.Cents, &due, &paid, &paidDate)
	if err != nil {
		return core.PeriodBucket{}, fmt.Errorf("scan bucket: %w", err)
	}
	b.Kind = core.BucketKind(kind)
	b.Quincena = core.Quincena(quincena)
	b.Paid = paid != 0
	if b.PeriodStart, err = parseDate(start); err != nil {
		return core.PeriodBucket{}, err
	}
	if b.PeriodEnd, err = parseDate(end); err != nil {
		return core.PeriodBucket{}, err
	}
	if b.ScheduledPaymentDate, err = parseDate(due); err != nil {
		return core.PeriodBucket{}, err
	}
	if b.PaidDate, err = parseNullDate(paidDate); err != nil {
		return core.PeriodBucket{}, err
	}
	return b, nil
}
