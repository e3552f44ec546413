// Package ledger keeps each account's ordered movement log and the running
// balance snapshot stored on every movement.
//
// Movements are ordered by (date, created_at, id). After every operation the
// snapshot of each movement equals the previous snapshot plus its signed
// amount, and the cached account balance equals the last snapshot. Appends
// that land at the end of the log take the cheap path; anything that changes
// history (back-dated appends, edits, deletes) re-folds the account from the
// earliest affected date.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"cuentas/internal/core"
	"cuentas/internal/lock"
	"cuentas/internal/storage"
)

// Observer is notified, inside the same transaction, when history changes
// under a movement. Returning an error rolls the change back.
type Observer interface {
	MovementRemoved(ctx context.Context, q *storage.Queries, m core.Movement) error
	MovementChanged(ctx context.Context, q *storage.Queries, before, after core.Movement) error
}

type Ledger struct {
	repo        *storage.SQLiteRepository
	locker      lock.Locker
	observers   []Observer
	now         func() time.Time
	concurrency int
	lastStamp   atomic.Int64
}

type Option func(*Ledger)

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

// WithConcurrency bounds how many accounts RecalculateAll folds at once.
func WithConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(repo *storage.SQLiteRepository, locker lock.Locker, opts ...Option) *Ledger {
	l := &Ledger{
		repo:        repo,
		locker:      locker,
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Repository exposes the store so collaborators can share transactions.
func (l *Ledger) Repository() *storage.SQLiteRepository {
	return l.repo
}

// Locker exposes the account locker for callers that span several accounts.
func (l *Ledger) Locker() lock.Locker {
	return l.locker
}

// stamp returns a strictly increasing creation time so movements appended in
// the same nanosecond still have a stable order.
func (l *Ledger) stamp() int64 {
	now := l.now().UnixNano()
	for {
		prev := l.lastStamp.Load()
		next := now
		if next <= prev {
			next = prev + 1
		}
		if l.lastStamp.CompareAndSwap(prev, next) {
			return next
		}
	}
}

type AppendParams struct {
	AccountID        int64
	Date             core.Date
	Direction        core.Direction
	Concept          string
	Amount           core.Money
	OriginMovementID *int64
	ConceptID        *int64
	BatchID          string
}

func (p AppendParams) movement() core.Movement {
	return core.Movement{
		AccountID:        p.AccountID,
		Date:             p.Date,
		Direction:        p.Direction,
		Concept:          strings.TrimSpace(p.Concept),
		Amount:           p.Amount,
		OriginMovementID: p.OriginMovementID,
		ConceptID:        p.ConceptID,
		BatchID:          p.BatchID,
	}
}

func (l *Ledger) Append(ctx context.Context, p AppendParams) (core.Movement, error) {
	if err := p.movement().Validate(); err != nil {
		return core.Movement{}, err
	}

	unlock, err := l.locker.Lock(ctx, lock.AccountKey(p.AccountID))
	if err != nil {
		return core.Movement{}, err
	}
	defer unlock()

	var created core.Movement
	err = l.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		created, err = l.AppendInTx(ctx, q, p)
		return err
	})
	if err != nil {
		return core.Movement{}, err
	}

	slog.InfoContext(ctx, "Movement appended",
		"movement_id", created.ID,
		"account_id", created.AccountID,
		"direction", created.Direction,
		"amount_cents", created.Amount.Cents,
		"resulting_balance_cents", created.ResultingBalance.Cents)
	return created, nil
}

// AppendInTx appends through q. The caller must hold the account lock.
func (l *Ledger) AppendInTx(ctx context.Context, q *storage.Queries, p AppendParams) (core.Movement, error) {
	m := p.movement()
	if err := m.Validate(); err != nil {
		return core.Movement{}, err
	}

	acc, err := q.GetAccount(ctx, m.AccountID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Movement{}, core.NewConsistencyError("account", m.AccountID, err)
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("get account: %w", err)
	}

	backdated, err := q.HasMovementsAfter(ctx, acc.ID, m.Date)
	if err != nil {
		return core.Movement{}, fmt.Errorf("check later movements: %w", err)
	}

	m.CreatedAt = l.stamp()
	if !backdated {
		m.ResultingBalance = acc.Balance.Add(m.Signed())
	}

	created, err := q.InsertMovement(ctx, m)
	if err != nil {
		return core.Movement{}, fmt.Errorf("insert movement: %w", err)
	}

	if !backdated {
		if err := q.UpdateAccountBalance(ctx, acc.ID, created.ResultingBalance); err != nil {
			return core.Movement{}, fmt.Errorf("update account balance: %w", err)
		}
		return created, nil
	}

	if _, err := refold(ctx, q, acc.ID, created.Date); err != nil {
		return core.Movement{}, err
	}
	created, err = q.GetMovement(ctx, created.ID)
	if err != nil {
		return core.Movement{}, fmt.Errorf("reload movement: %w", err)
	}
	return created, nil
}

// EditParams lists the mutable fields; nil leaves a field untouched.
type EditParams struct {
	Amount  *core.Money
	Concept *string
	Date    *core.Date
}

func (p EditParams) validate() error {
	if p.Amount == nil && p.Concept == nil && p.Date == nil {
		return core.NewValidationError("", errors.New("nothing to update"))
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return core.NewValidationError("amount", err)
		}
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return core.NewValidationError("date", err)
		}
	}
	if p.Concept != nil && len(*p.Concept) > 200 {
		return core.NewValidationError("concept", errors.New("concept too long (max 200 characters)"))
	}
	return nil
}

// Edit changes amount, concept or date and re-folds every snapshot from the
// earlier of the old and new dates.
func (l *Ledger) Edit(ctx context.Context, movementID int64, p EditParams) (core.Movement, error) {
	if err := p.validate(); err != nil {
		return core.Movement{}, err
	}

	current, err := l.lookup(ctx, movementID)
	if err != nil {
		return core.Movement{}, err
	}

	unlock, err := l.locker.Lock(ctx, lock.AccountKey(current.AccountID))
	if err != nil {
		return core.Movement{}, err
	}
	defer unlock()

	var updated core.Movement
	err = l.repo.InTx(ctx, func(q *storage.Queries) error {
		before, err := q.GetMovement(ctx, movementID)
		if errors.Is(err, core.ErrNotFound) {
			return core.NewConsistencyError("movement", movementID, err)
		}
		if err != nil {
			return fmt.Errorf("get movement: %w", err)
		}

		after := before
		if p.Amount != nil {
			after.Amount = *p.Amount
		}
		if p.Concept != nil {
			after.Concept = strings.TrimSpace(*p.Concept)
		}
		if p.Date != nil {
			after.Date = *p.Date
		}
		if err := q.UpdateMovement(ctx, after); err != nil {
			return fmt.Errorf("update movement: %w", err)
		}

		from := before.Date
		if after.Date.Before(from.Time) {
			from = after.Date
		}
		if _, err := refold(ctx, q, before.AccountID, from); err != nil {
			return err
		}

		updated, err = q.GetMovement(ctx, movementID)
		if err != nil {
			return fmt.Errorf("reload movement: %w", err)
		}
		for _, o := range l.observers {
			if err := o.MovementChanged(ctx, q, before, updated); err != nil {
				return fmt.Errorf("notify movement changed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Movement{}, err
	}

	slog.InfoContext(ctx, "Movement edited",
		"movement_id", updated.ID,
		"account_id", updated.AccountID,
		"amount_cents", updated.Amount.Cents,
		"date", updated.Date.String())
	return updated, nil
}

// Delete removes a movement and re-folds the snapshots after it. Movements in
// other ledgers that point at it through origin_movement_id are left alone.
func (l *Ledger) Delete(ctx context.Context, movementID int64) error {
	current, err := l.lookup(ctx, movementID)
	if err != nil {
		return err
	}

	unlock, err := l.locker.Lock(ctx, lock.AccountKey(current.AccountID))
	if err != nil {
		return err
	}
	defer unlock()

	err = l.repo.InTx(ctx, func(q *storage.Queries) error {
		m, err := q.GetMovement(ctx, movementID)
		if errors.Is(err, core.ErrNotFound) {
			return core.NewConsistencyError("movement", movementID, err)
		}
		if err != nil {
			return fmt.Errorf("get movement: %w", err)
		}
		if err := q.DeleteMovement(ctx, movementID); err != nil {
			return fmt.Errorf("delete movement: %w", err)
		}
		if _, err := refold(ctx, q, m.AccountID, m.Date); err != nil {
			return err
		}
		for _, o := range l.observers {
			if err := o.MovementRemoved(ctx, q, m); err != nil {
				return fmt.Errorf("notify movement removed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Movement deleted", "movement_id", movementID, "account_id", current.AccountID)
	return nil
}

// Clear deletes every movement of the account and resets its balance to zero.
func (l *Ledger) Clear(ctx context.Context, accountID int64) (int64, error) {
	unlock, err := l.locker.Lock(ctx, lock.AccountKey(accountID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	var deleted int64
	err = l.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, accountID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.NewConsistencyError("account", accountID, err)
			}
			return fmt.Errorf("get account: %w", err)
		}
		movements, err := q.ListMovementsFrom(ctx, accountID, core.Date{})
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		if deleted, err = q.DeleteAccountMovements(ctx, accountID); err != nil {
			return fmt.Errorf("delete movements: %w", err)
		}
		if err := q.UpdateAccountBalance(ctx, accountID, core.Money{}); err != nil {
			return fmt.Errorf("reset balance: %w", err)
		}
		for _, m := range movements {
			for _, o := range l.observers {
				if err := o.MovementRemoved(ctx, q, m); err != nil {
					return fmt.Errorf("notify movement removed: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.WarnContext(ctx, "Account cleared", "account_id", accountID, "deleted", deleted)
	return deleted, nil
}

func (l *Ledger) lookup(ctx context.Context, movementID int64) (core.Movement, error) {
	m, err := l.repo.Queries().GetMovement(ctx, movementID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Movement{}, core.NewConsistencyError("movement", movementID, err)
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}
