package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cuentas/internal/core"
	"cuentas/internal/lock"
	"cuentas/internal/storage"
)

// refold recomputes snapshots for every movement dated on or after from,
// seeded with the snapshot of the last movement before it, and stores the
// final value as the account balance. A zero from folds the whole log from 0.
func refold(ctx context.Context, q *storage.Queries, accountID int64, from core.Date) (core.Money, error) {
	running, err := q.BalanceBefore(ctx, accountID, from)
	if err != nil {
		return core.Money{}, fmt.Errorf("balance before %s: %w", from, err)
	}

	movements, err := q.ListMovementsFrom(ctx, accountID, from)
	if err != nil {
		return core.Money{}, fmt.Errorf("list movements: %w", err)
	}

	for _, m := range movements {
		next := running.Add(m.Signed())
		if next != m.ResultingBalance {
			n, err := q.SetResultingBalance(ctx, m.ID, next)
			if err != nil {
				return core.Money{}, fmt.Errorf("set resulting balance of %d: %w", m.ID, err)
			}
			if n == 0 {
				// gone since we listed it; leave it out of the fold
				slog.WarnContext(ctx, "Movement vanished during recalculation, skipping",
					"movement_id", m.ID, "account_id", accountID)
				continue
			}
		}
		running = next
	}

	if err := q.UpdateAccountBalance(ctx, accountID, running); err != nil {
		return core.Money{}, fmt.Errorf("update account balance: %w", err)
	}
	return running, nil
}

// RecalculateAccount folds the whole log from zero and rewrites every
// snapshot. Running it twice yields the same result as running it once.
func (l *Ledger) RecalculateAccount(ctx context.Context, accountID int64) (core.Money, error) {
	unlock, err := l.locker.Lock(ctx, lock.AccountKey(accountID))
	if err != nil {
		return core.Money{}, err
	}
	defer unlock()

	var balance core.Money
	err = l.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, accountID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.NewConsistencyError("account", accountID, err)
			}
			return fmt.Errorf("get account: %w", err)
		}
		var err error
		balance, err = refold(ctx, q, accountID, core.Date{})
		return err
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("recalculate account %d: %w", accountID, err)
	}

	slog.InfoContext(ctx, "Account recalculated", "account_id", accountID, "balance_cents", balance.Cents)
	return balance, nil
}

// RecalculateAll recalculates every account, a bounded number at a time.
// Each account is locked only while its own fold runs.
func (l *Ledger) RecalculateAll(ctx context.Context) (map[int64]core.Money, error) {
	accounts, err := l.repo.Queries().ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	balances := make([]core.Money, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, acc := range accounts {
		g.Go(func() error {
			b, err := l.RecalculateAccount(gctx, acc.ID)
			if err != nil {
				return err
			}
			balances[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int64]core.Money, len(accounts))
	for i, acc := range accounts {
		out[acc.ID] = balances[i]
	}
	slog.InfoContext(ctx, "All accounts recalculated", "accounts", len(accounts))
	return out, nil
}
