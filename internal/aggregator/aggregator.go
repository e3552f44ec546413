// Package aggregator accumulates amounts into period controls: weekly and
// biweekly payment buckets per concept, and the monthly and daily POSNET
// totals. Every write is a single increment-or-insert statement keyed by the
// period, so concurrent submissions for the same period never lose updates.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cuentas/internal/core"
	"cuentas/internal/storage"
)

type Aggregator struct {
	repo *storage.SQLiteRepository
}

func New(repo *storage.SQLiteRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Using binds the aggregation writes to q, typically a transaction owned by
// the caller.
func (a *Aggregator) Using(q *storage.Queries) Poster {
	return Poster{q: q}
}

func (a *Aggregator) direct() Poster {
	return Poster{q: a.repo.Queries()}
}

// Poster performs aggregation writes through one query set.
type Poster struct {
	q *storage.Queries
}

func (p Poster) concept(ctx context.Context, conceptID int64) (core.Concept, error) {
	c, err := p.q.GetConcept(ctx, conceptID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Concept{}, fmt.Errorf("concept %d: %w", conceptID, core.ErrUnknownConcept)
	}
	if err != nil {
		return core.Concept{}, fmt.Errorf("get concept: %w", err)
	}
	return c, nil
}

func (p Poster) UpsertWeekly(ctx context.Context, conceptID int64, d core.Date, amount core.Money) (core.PeriodBucket, error) {
	if err := validatePosting(d, amount); err != nil {
		return core.PeriodBucket{}, err
	}
	if _, err := p.concept(ctx, conceptID); err != nil {
		return core.PeriodBucket{}, err
	}
	start, end := WeekBoundaries(d)
	b, err := p.q.UpsertBucket(ctx, core.PeriodBucket{
		Kind:                 core.BucketWeekly,
		ConceptID:            conceptID,
		PeriodStart:          start,
		PeriodEnd:            end,
		Total:                amount,
		ScheduledPaymentDate: NextMonday(d),
	})
	if err != nil {
		return core.PeriodBucket{}, fmt.Errorf("upsert weekly bucket: %w", err)
	}
	return b, nil
}

func (p Poster) UpsertBiweekly(ctx context.Context, conceptID int64, d core.Date, amount core.Money) (core.PeriodBucket, error) {
	if err := validatePosting(d, amount); err != nil {
		return core.PeriodBucket{}, err
	}
	if _, err := p.concept(ctx, conceptID); err != nil {
		return core.PeriodBucket{}, err
	}
	qi := QuincenaInfo(d)
	b, err := p.q.UpsertBucket(ctx, core.PeriodBucket{
		Kind:                 core.BucketBiweekly,
		ConceptID:            conceptID,
		Quincena:             qi.Half,
		PeriodStart:          qi.Start,
		PeriodEnd:            qi.End,
		Total:                amount,
		ScheduledPaymentDate: qi.Due,
	})
	if err != nil {
		return core.PeriodBucket{}, fmt.Errorf("upsert biweekly bucket: %w", err)
	}
	return b, nil
}

func (p Poster) UpsertMonthlyPosnet(ctx context.Context, month, year int, typ core.ConceptType, amount core.Money) (core.MonthlyPosnet, error) {
	if month < 1 || month > 12 {
		return core.MonthlyPosnet{}, core.NewValidationError("month", fmt.Errorf("month %d out of range", month))
	}
	rentas, caja, err := split(typ, amount)
	if err != nil {
		return core.MonthlyPosnet{}, err
	}
	m, err := p.q.UpsertMonthlyPosnet(ctx, year, month, rentas, caja)
	if err != nil {
		return core.MonthlyPosnet{}, fmt.Errorf("upsert monthly posnet: %w", err)
	}
	return m, nil
}

func (p Poster) UpsertDailyPosnet(ctx context.Context, d core.Date, typ core.ConceptType, amount core.Money) (core.DailyPosnet, error) {
	if err := d.Validate(); err != nil {
		return core.DailyPosnet{}, core.NewValidationError("date", err)
	}
	rentas, caja, err := split(typ, amount)
	if err != nil {
		return core.DailyPosnet{}, err
	}
	rec, err := p.q.UpsertDailyPosnet(ctx, d, rentas, caja)
	if err != nil {
		return core.DailyPosnet{}, fmt.Errorf("upsert daily posnet: %w", err)
	}
	return rec, nil
}

// Apply routes one posting of a catalogued concept according to its
// frequency and POSNET flag. A negative amount reverses an earlier posting.
func (p Poster) Apply(ctx context.Context, c core.Concept, d core.Date, amount core.Money) error {
	switch c.Frequency {
	case core.FrequencyWeekly:
		if _, err := p.UpsertWeekly(ctx, c.ID, d, amount); err != nil {
			return err
		}
	case core.FrequencyBiweekly:
		if _, err := p.UpsertBiweekly(ctx, c.ID, d, amount); err != nil {
			return err
		}
	}
	if c.Posnet {
		if _, err := p.UpsertMonthlyPosnet(ctx, d.Month(), d.Year(), c.Type, amount); err != nil {
			return err
		}
		if _, err := p.UpsertDailyPosnet(ctx, d, c.Type, amount); err != nil {
			return err
		}
	}
	return nil
}

func split(typ core.ConceptType, amount core.Money) (rentas, caja core.Money, err error) {
	switch typ {
	case core.Rentas:
		return amount, core.Money{}, nil
	case core.Caja:
		return core.Money{}, amount, nil
	}
	return core.Money{}, core.Money{}, core.NewValidationError("movement_type", core.ErrInvalidConceptType)
}

func validatePosting(d core.Date, amount core.Money) error {
	if err := d.Validate(); err != nil {
		return core.NewValidationError("date", err)
	}
	if amount.IsZero() {
		return core.NewValidationError("amount", core.ErrInvalidAmount)
	}
	return nil
}

func (a *Aggregator) UpsertWeekly(ctx context.Context, conceptID int64, d core.Date, amount core.Money) (core.PeriodBucket, error) {
	return a.direct().UpsertWeekly(ctx, conceptID, d, amount)
}

func (a *Aggregator) UpsertBiweekly(ctx context.Context, conceptID int64, d core.Date, amount core.Money) (core.PeriodBucket, error) {
	return a.direct().UpsertBiweekly(ctx, conceptID, d, amount)
}

func (a *Aggregator) UpsertMonthlyPosnet(ctx context.Context, month, year int, typ core.ConceptType, amount core.Money) (core.MonthlyPosnet, error) {
	return a.direct().UpsertMonthlyPosnet(ctx, month, year, typ, amount)
}

func (a *Aggregator) UpsertDailyPosnet(ctx context.Context, d core.Date, typ core.ConceptType, amount core.Money) (core.DailyPosnet, error) {
	return a.direct().UpsertDailyPosnet(ctx, d, typ, amount)
}

// MarkPaid flags a bucket as paid on d. Totals are not touched.
func (a *Aggregator) MarkPaid(ctx context.Context, bucketID int64, d core.Date) (core.PeriodBucket, error) {
	if err := d.Validate(); err != nil {
		return core.PeriodBucket{}, core.NewValidationError("paid_date", err)
	}
	b, err := a.repo.Queries().SetBucketPaid(ctx, bucketID, true, d)
	if errors.Is(err, core.ErrNotFound) {
		return core.PeriodBucket{}, core.NewConsistencyError("bucket", bucketID, err)
	}
	if err != nil {
		return core.PeriodBucket{}, fmt.Errorf("mark bucket paid: %w", err)
	}
	slog.InfoContext(ctx, "Bucket marked paid", "bucket_id", bucketID, "paid_date", d.String())
	return b, nil
}

func (a *Aggregator) Unmark(ctx context.Context, bucketID int64) (core.PeriodBucket, error) {
	b, err := a.repo.Queries().SetBucketPaid(ctx, bucketID, false, core.Date{})
	if errors.Is(err, core.ErrNotFound) {
		return core.PeriodBucket{}, core.NewConsistencyError("bucket", bucketID, err)
	}
	if err != nil {
		return core.PeriodBucket{}, fmt.Errorf("unmark bucket: %w", err)
	}
	slog.InfoContext(ctx, "Bucket unmarked", "bucket_id", bucketID)
	return b, nil
}

func (a *Aggregator) GetBucket(ctx context.Context, bucketID int64) (core.PeriodBucket, error) {
	return a.repo.Queries().GetBucket(ctx, bucketID)
}

func (a *Aggregator) ListBuckets(ctx context.Context, f storage.BucketFilter) ([]core.PeriodBucket, error) {
	buckets, err := a.repo.Queries().ListBuckets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return buckets, nil
}

func (a *Aggregator) ListDailyPosnet(ctx context.Context, from, to core.Date) ([]core.DailyPosnet, error) {
	recs, err := a.repo.Queries().ListDailyPosnet(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily posnet: %w", err)
	}
	return recs, nil
}

func (a *Aggregator) ListMonthlyPosnet(ctx context.Context, year int) ([]core.MonthlyPosnet, error) {
	recs, err := a.repo.Queries().ListMonthlyPosnet(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("list monthly posnet: %w", err)
	}
	return recs, nil
}
