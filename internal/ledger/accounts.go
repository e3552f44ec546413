package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cuentas/internal/core"
	"cuentas/internal/storage"
)

const maxPageSize = 500

func (l *Ledger) CreateAccount(ctx context.Context, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.NewValidationError("name", core.ErrEmptyName)
	}
	acc, err := l.repo.Queries().CreateAccount(ctx, name)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	acc, err := l.repo.Queries().GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	return acc, nil
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]core.Account, error) {
	accounts, err := l.repo.Queries().ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

type MovementQuery struct {
	AccountID int64
	From      core.Date
	To        core.Date
	Direction core.Direction
	Page      int // 1-based
	PageSize  int
}

type MovementPage struct {
	Items    []core.Movement
	Total    int64
	Page     int
	PageSize int
}

// ListMovements is the paginated range query over one account, in ledger order.
func (l *Ledger) ListMovements(ctx context.Context, mq MovementQuery) (MovementPage, error) {
	if mq.Direction != "" {
		if err := mq.Direction.Validate(); err != nil {
			return MovementPage{}, core.NewValidationError("direction", err)
		}
	}
	if !mq.From.IsZero() && !mq.To.IsZero() && mq.To.Before(mq.From.Time) {
		return MovementPage{}, core.NewValidationError("to", errors.New("range end before start"))
	}
	if mq.Page < 1 {
		mq.Page = 1
	}
	if mq.PageSize < 1 {
		mq.PageSize = 50
	}
	if mq.PageSize > maxPageSize {
		mq.PageSize = maxPageSize
	}

	if _, err := l.repo.Queries().GetAccount(ctx, mq.AccountID); err != nil {
		return MovementPage{}, fmt.Errorf("get account %d: %w", mq.AccountID, err)
	}

	f := storage.MovementFilter{
		AccountID: mq.AccountID,
		From:      mq.From,
		To:        mq.To,
		Direction: mq.Direction,
		Limit:     mq.PageSize,
		Offset:    (mq.Page - 1) * mq.PageSize,
	}
	total, err := l.repo.Queries().CountMovements(ctx, f)
	if err != nil {
		return MovementPage{}, fmt.Errorf("count movements: %w", err)
	}
	items, err := l.repo.Queries().SearchMovements(ctx, f)
	if err != nil {
		return MovementPage{}, fmt.Errorf("search movements: %w", err)
	}
	return MovementPage{Items: items, Total: total, Page: mq.Page, PageSize: mq.PageSize}, nil
}
