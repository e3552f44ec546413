package aggregator

import (
	"context"
	"errors"
	"log/slog"

	"cuentas/internal/core"
	"cuentas/internal/ledger"
	"cuentas/internal/storage"
)

var _ ledger.Observer = (*Aggregator)(nil)

// MovementRemoved takes a deleted movement's amount back out of the buckets
// and POSNET controls its concept fed.
func (a *Aggregator) MovementRemoved(ctx context.Context, q *storage.Queries, m core.Movement) error {
	c, ok, err := conceptOf(ctx, q, m)
	if err != nil || !ok {
		return err
	}
	return a.Using(q).Apply(ctx, c, m.Date, m.Amount.Neg())
}

// MovementChanged moves an edited movement's contribution from its old
// period and amount to the new ones.
func (a *Aggregator) MovementChanged(ctx context.Context, q *storage.Queries, before, after core.Movement) error {
	if before.Date.Equal(after.Date.Time) && before.Amount == after.Amount {
		return nil
	}
	c, ok, err := conceptOf(ctx, q, before)
	if err != nil || !ok {
		return err
	}
	p := a.Using(q)
	if err := p.Apply(ctx, c, before.Date, before.Amount.Neg()); err != nil {
		return err
	}
	return p.Apply(ctx, c, after.Date, after.Amount)
}

func conceptOf(ctx context.Context, q *storage.Queries, m core.Movement) (core.Concept, bool, error) {
	if m.ConceptID == nil {
		return core.Concept{}, false, nil
	}
	c, err := q.GetConcept(ctx, *m.ConceptID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Movement references a missing concept", "movement_id", m.ID, "concept_id", *m.ConceptID)
		return core.Concept{}, false, nil
	}
	if err != nil {
		return core.Concept{}, false, err
	}
	return c, true, nil
}
