// Package deposits links bank deposits that have been assigned to an account
// into that account's ledger, exactly once per deposit.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"cuentas/internal/core"
	"cuentas/internal/ledger"
	"cuentas/internal/lock"
	"cuentas/internal/storage"
)

var errAlreadyLinked = errors.New("deposit already linked")

type Service struct {
	ledger *ledger.Ledger
}

func NewService(l *ledger.Ledger) *Service {
	return &Service{ledger: l}
}

type CreateParams struct {
	Description string
	Amount      core.Money
	IngressDate core.Date
	AccountID   *int64
}

func (s *Service) Create(ctx context.Context, p CreateParams) (core.Deposit, error) {
	if err := p.Amount.Validate(); err != nil {
		return core.Deposit{}, core.NewValidationError("amount", err)
	}
	if err := p.IngressDate.Validate(); err != nil {
		return core.Deposit{}, core.NewValidationError("ingress_date", err)
	}
	q := s.ledger.Repository().Queries()
	if p.AccountID != nil {
		if err := s.requireAccount(ctx, q, *p.AccountID); err != nil {
			return core.Deposit{}, err
		}
	}
	d, err := q.CreateDeposit(ctx, core.Deposit{
		Description: strings.TrimSpace(p.Description),
		Amount:      p.Amount,
		IngressDate: p.IngressDate,
		AccountID:   p.AccountID,
	})
	if err != nil {
		return core.Deposit{}, fmt.Errorf("create deposit: %w", err)
	}
	slog.InfoContext(ctx, "Deposit registered", "deposit_id", d.ID, "amount_cents", d.Amount.Cents)
	return d, nil
}

// AssignAccount sets the target account of a deposit that is not linked yet.
func (s *Service) AssignAccount(ctx context.Context, depositID, accountID int64) (core.Deposit, error) {
	q := s.ledger.Repository().Queries()
	if err := s.requireAccount(ctx, q, accountID); err != nil {
		return core.Deposit{}, err
	}
	d, err := q.AssignDepositAccount(ctx, depositID, accountID)
	if errors.Is(err, core.ErrNotFound) {
		if _, getErr := q.GetDeposit(ctx, depositID); getErr == nil {
			return core.Deposit{}, core.NewConsistencyError("deposit", depositID, errAlreadyLinked)
		}
		return core.Deposit{}, core.NewConsistencyError("deposit", depositID, err)
	}
	if err != nil {
		return core.Deposit{}, fmt.Errorf("assign deposit account: %w", err)
	}
	return d, nil
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]core.Deposit, error) {
	items, err := s.ledger.Repository().Queries().ListPendingDeposits(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}
	return items, nil
}

func (s *Service) requireAccount(ctx context.Context, q *storage.Queries, accountID int64) error {
	_, err := q.GetAccount(ctx, accountID)
	if errors.Is(err, core.ErrNotFound) {
		return core.NewConsistencyError("account", accountID, err)
	}
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	return nil
}

type SyncResult struct {
	Linked               int
	Skipped              int
	AccountsRecalculated []int64
	Errors               []error
}

// Sync creates one INGRESO movement per pending deposit and links it. Every
// touched account is re-folded afterwards because deposits usually carry
// dates earlier than movements already in the ledger. Running Sync twice
// never links a deposit twice.
func (s *Service) Sync(ctx context.Context, limit int) (SyncResult, error) {
	pending, err := s.ListPending(ctx, limit)
	if err != nil {
		return SyncResult{}, err
	}

	var res SyncResult
	touched := make(map[int64]struct{})
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		linked, err := s.link(ctx, d)
		switch {
		case errors.Is(err, errAlreadyLinked):
			res.Skipped++
		case err != nil:
			slog.ErrorContext(ctx, "Failed to link deposit", "deposit_id", d.ID, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("deposit %d: %w", d.ID, err))
		default:
			res.Linked++
			touched[*d.AccountID] = struct{}{}
			slog.InfoContext(ctx, "Deposit linked",
				"deposit_id", d.ID,
				"account_id", *d.AccountID,
				"movement_id", linked.ID)
		}
	}

	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := s.ledger.RecalculateAccount(ctx, id); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("recalculate account %d: %w", id, err))
			continue
		}
		res.AccountsRecalculated = append(res.AccountsRecalculated, id)
	}

	if res.Linked > 0 || len(res.Errors) > 0 {
		slog.InfoContext(ctx, "Deposit sync finished",
			"linked", res.Linked,
			"skipped", res.Skipped,
			"accounts", len(res.AccountsRecalculated),
			"failed", len(res.Errors))
	}
	return res, nil
}

func (s *Service) link(ctx context.Context, d core.Deposit) (core.Movement, error) {
	accountID := *d.AccountID
	unlock, err := s.ledger.Locker().Lock(ctx, lock.AccountKey(accountID))
	if err != nil {
		return core.Movement{}, err
	}
	defer unlock()

	var created core.Movement
	err = s.ledger.Repository().InTx(ctx, func(q *storage.Queries) error {
		current, err := q.GetDeposit(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("get deposit: %w", err)
		}
		if current.Linked() {
			return errAlreadyLinked
		}
		created, err = s.ledger.AppendInTx(ctx, q, ledger.AppendParams{
			AccountID: accountID,
			Date:      current.IngressDate,
			Direction: core.Ingreso,
			Concept:   depositConcept(current),
			Amount:    current.Amount,
		})
		if err != nil {
			return err
		}
		ok, err := q.LinkDeposit(ctx, d.ID, created.ID)
		if err != nil {
			return fmt.Errorf("link deposit: %w", err)
		}
		if !ok {
			return errAlreadyLinked
		}
		return nil
	})
	return created, err
}

func depositConcept(d core.Deposit) string {
	if d.Description == "" {
		return fmt.Sprintf("Deposito #%d", d.ID)
	}
	return "Deposito: " + d.Description
}
