// Package batch turns one daily cash-desk submission into its ledger
// movements and period controls, all inside a single transaction.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"cuentas/internal/aggregator"
	"cuentas/internal/core"
	"cuentas/internal/ledger"
	"cuentas/internal/lock"
	"cuentas/internal/routing"
	"cuentas/internal/storage"
)

// Submission is the daily form: amounts keyed by concept and the cash
// physically handed over.
type Submission struct {
	Date      core.Date
	Entregado core.Money
	Values    map[string]core.Money
}

// Publisher announces committed batches. Implementations must not block for
// long; failures are logged and never undo the batch.
type Publisher interface {
	PublishBatchProcessed(ctx context.Context, s core.BatchSummary) error
}

type Processor struct {
	ledger    *ledger.Ledger
	agg       *aggregator.Aggregator
	table     *routing.Table
	publisher Publisher
	newID     func() string
}

type Option func(*Processor)

func WithPublisher(p Publisher) Option {
	return func(bp *Processor) { bp.publisher = p }
}

func New(l *ledger.Ledger, agg *aggregator.Aggregator, table *routing.Table, opts ...Option) *Processor {
	p := &Processor{
		ledger: l,
		agg:    agg,
		table:  table,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type posting struct {
	route  routing.Route
	amount core.Money
}

// Submit validates s and performs the whole fan-out atomically. The
// difference between entregado and the computed total is reported as an
// alert and never blocks the save. Any failure after validation is returned
// as a *core.TransactionFailure with nothing persisted.
func (p *Processor) Submit(ctx context.Context, s Submission) (core.BatchSummary, error) {
	if err := s.Date.Validate(); err != nil {
		return core.BatchSummary{}, core.NewValidationError("date", err)
	}
	if s.Entregado.Cents < 0 {
		return core.BatchSummary{}, core.NewValidationError("entregado", core.ErrInvalidAmount)
	}
	for key, amount := range s.Values {
		if _, ok := p.table.Lookup(key); !ok {
			return core.BatchSummary{}, core.NewValidationError(key, core.ErrUnknownConcept)
		}
		if amount.Cents < 0 {
			return core.BatchSummary{}, core.NewValidationError(key, core.ErrInvalidAmount)
		}
	}

	summary := core.BatchSummary{
		BatchID:   p.newID(),
		Date:      s.Date,
		Entregado: s.Entregado,
	}

	var plan []posting
	for _, r := range p.table.Routes() {
		amount, ok := s.Values[r.Key]
		if !ok || amount.IsZero() {
			continue
		}
		if r.Disabled != "" {
			summary.Alerts = append(summary.Alerts, core.Alert{Concept: r.Key, Message: "not posted: " + r.Disabled})
			continue
		}
		if r.Concept.ID == 0 {
			summary.Alerts = append(summary.Alerts, core.Alert{Concept: r.Key, Message: "not posted: concept not synced"})
			continue
		}
		summary.Total = summary.Total.Add(core.Money{Cents: r.Role.Sign() * amount.Cents})
		plan = append(plan, posting{route: r, amount: amount})
	}
	summary.Diferencia = s.Entregado.Sub(summary.Total)
	if !summary.Diferencia.IsZero() {
		summary.Alerts = append(summary.Alerts, core.Alert{
			Message: fmt.Sprintf("diferencia de %s entre entregado y total", summary.Diferencia),
		})
	}

	keys, err := p.accountKeys(plan)
	if err != nil {
		return core.BatchSummary{}, err
	}
	if len(plan) > 0 {
		unlock, err := p.ledger.Locker().Lock(ctx, keys...)
		if err != nil {
			return core.BatchSummary{}, &core.TransactionFailure{Op: "lock accounts", Err: err}
		}
		defer unlock()

		var txAlerts []core.Alert
		var created int
		err = p.ledger.Repository().InTx(ctx, func(q *storage.Queries) error {
			txAlerts, created = nil, 0
			for _, item := range plan {
				n, alerts, err := p.post(ctx, q, summary, item)
				if err != nil {
					return fmt.Errorf("post %s: %w", item.route.Key, err)
				}
				created += n
				txAlerts = append(txAlerts, alerts...)
			}
			return nil
		})
		if err != nil {
			slog.ErrorContext(ctx, "Batch rolled back",
				"batch_id", summary.BatchID,
				"date", s.Date.String(),
				"error", err)
			return core.BatchSummary{}, &core.TransactionFailure{Op: "submit batch", Err: err}
		}
		summary.MovementsCreated = created
		summary.Alerts = append(summary.Alerts, txAlerts...)
	}

	slog.InfoContext(ctx, "Batch processed",
		"batch_id", summary.BatchID,
		"date", s.Date.String(),
		"movements", summary.MovementsCreated,
		"total_cents", summary.Total.Cents,
		"diferencia_cents", summary.Diferencia.Cents,
		"alerts", len(summary.Alerts))

	if p.publisher != nil {
		if err := p.publisher.PublishBatchProcessed(ctx, summary); err != nil {
			slog.WarnContext(ctx, "Failed to publish batch event", "batch_id", summary.BatchID, "error", err)
		}
	}
	return summary, nil
}

func (p *Processor) accountKeys(plan []posting) ([]string, error) {
	var ids []int64
	for _, item := range plan {
		names := []string{item.route.Ledger()}
		if item.route.Has(routing.NamedAccountPosting) {
			names = append(names, item.route.Account)
		}
		for _, name := range names {
			id, ok := p.table.AccountID(name)
			if !ok {
				return nil, fmt.Errorf("account %s not synced: %w", name, core.ErrNotFound)
			}
			ids = append(ids, id)
		}
	}
	return lock.AccountKeys(ids...), nil
}

// post runs the actions of one route through q in table order.
func (p *Processor) post(ctx context.Context, q *storage.Queries, summary core.BatchSummary, item posting) (int, []core.Alert, error) {
	r := item.route
	conceptID := r.Concept.ID
	ledgerID, _ := p.table.AccountID(r.Ledger())

	var (
		created int
		alerts  []core.Alert
		primary core.Movement
	)
	poster := p.agg.Using(q)
	for _, action := range r.Actions {
		var err error
		switch action {
		case routing.PrimaryMovement:
			primary, err = p.ledger.AppendInTx(ctx, q, ledger.AppendParams{
				AccountID: ledgerID,
				Date:      summary.Date,
				Direction: r.Role.Direction(),
				Concept:   r.Concept.Name,
				Amount:    item.amount,
				ConceptID: &conceptID,
				BatchID:   summary.BatchID,
			})
			if err == nil {
				created++
			}
		case routing.WeeklyBucket:
			_, err = poster.UpsertWeekly(ctx, conceptID, summary.Date, item.amount)
		case routing.BiweeklyBucket:
			_, err = poster.UpsertBiweekly(ctx, conceptID, summary.Date, item.amount)
		case routing.Posnet:
			if _, err = poster.UpsertMonthlyPosnet(ctx, summary.Date.Month(), summary.Date.Year(), r.Concept.Type, item.amount); err == nil {
				_, err = poster.UpsertDailyPosnet(ctx, summary.Date, r.Concept.Type, item.amount)
			}
		case routing.NamedAccountPosting:
			accountID, _ := p.table.AccountID(r.Account)
			origin := primary.ID
			_, err = p.ledger.AppendInTx(ctx, q, ledger.AppendParams{
				AccountID:        accountID,
				Date:             summary.Date,
				Direction:        core.Egreso,
				Concept:          r.Concept.Name,
				Amount:           item.amount,
				OriginMovementID: &origin,
				BatchID:          summary.BatchID,
			})
			if err == nil {
				created++
			}
		case routing.Reconciliation:
			_, err = q.InsertReconciliation(ctx, core.ReconciliationControl{
				Kind:       r.Reconciliation,
				Date:       summary.Date,
				ConceptID:  conceptID,
				Amount:     item.amount,
				MovementID: primary.ID,
				BatchID:    summary.BatchID,
			})
		}

		if errors.Is(err, core.ErrUnknownConcept) {
			alerts = append(alerts, core.Alert{Concept: r.Key, Message: action.String() + " skipped: unknown concept"})
			continue
		}
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", action, err)
		}
	}
	return created, alerts, nil
}
