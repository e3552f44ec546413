package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuentas/internal/core"
	"cuentas/internal/lock"
	"cuentas/internal/storage"
)

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return New(repo, lock.NewKeyedMutex(), opts...)
}

func date(y, m, d int) core.Date { return core.NewDate(y, m, d) }

func cents(n int64) core.Money { return core.Money{Cents: n} }

func newAccount(t *testing.T, l *Ledger, name string) core.Account {
	t.Helper()
	acc, err := l.CreateAccount(context.Background(), name)
	require.NoError(t, err)
	return acc
}

func appendMovement(t *testing.T, l *Ledger, accountID int64, d core.Date, dir core.Direction, amount int64) core.Movement {
	t.Helper()
	m, err := l.Append(context.Background(), AppendParams{
		AccountID: accountID,
		Date:      d,
		Direction: dir,
		Concept:   "test",
		Amount:    cents(amount),
	})
	require.NoError(t, err)
	return m
}

// requireConsistent checks the fold over the whole log and the cached balance.
func requireConsistent(t *testing.T, l *Ledger, accountID int64) []core.Movement {
	t.Helper()
	ctx := context.Background()
	q := l.Repository().Queries()
	movements, err := q.ListMovementsFrom(ctx, accountID, core.Date{})
	require.NoError(t, err)

	var running core.Money
	for i, m := range movements {
		running = running.Add(m.Signed())
		require.Equalf(t, running, m.ResultingBalance, "snapshot of movement #%d (id %d)", i, m.ID)
	}
	acc, err := q.GetAccount(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, running, acc.Balance, "account balance equals last snapshot")
	return movements
}

func TestAppend_RunningBalance(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "RENTAS")

	m1 := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 100000)
	assert.Equal(t, int64(100000), m1.ResultingBalance.Cents)

	m2 := appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Egreso, 30000)
	assert.Equal(t, int64(70000), m2.ResultingBalance.Cents)

	got, err := l.GetAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), got.Balance.Cents)
	requireConsistent(t, l, acc.ID)
}

func TestAppend_Validation(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")
	ctx := context.Background()

	tests := []struct {
		name string
		p    AppendParams
	}{
		{"zero amount", AppendParams{AccountID: acc.ID, Date: date(2024, 1, 1), Direction: core.Ingreso}},
		{"negative amount", AppendParams{AccountID: acc.ID, Date: date(2024, 1, 1), Direction: core.Ingreso, Amount: cents(-5)}},
		{"bad direction", AppendParams{AccountID: acc.ID, Date: date(2024, 1, 1), Direction: "INGRES", Amount: cents(5)}},
		{"missing date", AppendParams{AccountID: acc.ID, Direction: core.Egreso, Amount: cents(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Append(ctx, tt.p)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err), "want ValidationError, got %v", err)
		})
	}

	movements := requireConsistent(t, l, acc.ID)
	assert.Empty(t, movements)
}

func TestAppend_MissingAccount(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(context.Background(), AppendParams{
		AccountID: 404, Date: date(2024, 1, 1), Direction: core.Ingreso, Amount: cents(100),
	})
	require.Error(t, err)
	assert.True(t, core.IsConsistency(err))
}

func TestAppend_BackdatedRefolds(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "ICBC")

	appendMovement(t, l, acc.ID, date(2024, 1, 10), core.Ingreso, 1000)
	appendMovement(t, l, acc.ID, date(2024, 1, 20), core.Egreso, 300)
	back := appendMovement(t, l, acc.ID, date(2024, 1, 5), core.Ingreso, 500)

	assert.Equal(t, int64(500), back.ResultingBalance.Cents)
	movements := requireConsistent(t, l, acc.ID)
	require.Len(t, movements, 3)
	assert.Equal(t, back.ID, movements[0].ID)
	assert.Equal(t, int64(1200), movements[2].ResultingBalance.Cents)
}

func TestAppend_SameDayKeepsInsertionOrder(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")

	a := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 100)
	b := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Egreso, 40)
	c := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 10)

	movements := requireConsistent(t, l, acc.ID)
	require.Len(t, movements, 3)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, []int64{movements[0].ID, movements[1].ID, movements[2].ID})
	assert.Equal(t, int64(70), c.ResultingBalance.Cents)
}

func TestEdit_AmountCascades(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "RENTAS")
	ctx := context.Background()

	first := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Egreso, 300)
	appendMovement(t, l, acc.ID, date(2024, 1, 3), core.Ingreso, 50)

	newAmount := cents(2000)
	edited, err := l.Edit(ctx, first.ID, EditParams{Amount: &newAmount})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), edited.ResultingBalance.Cents)

	movements := requireConsistent(t, l, acc.ID)
	assert.Equal(t, int64(1700), movements[1].ResultingBalance.Cents)
	assert.Equal(t, int64(1750), movements[2].ResultingBalance.Cents)
}

func TestEdit_DateMovesMovement(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "RENTAS")
	ctx := context.Background()

	appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	moved := appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Egreso, 300)
	appendMovement(t, l, acc.ID, date(2024, 1, 3), core.Ingreso, 50)

	later := date(2024, 1, 9)
	concept := "  renamed "
	edited, err := l.Edit(ctx, moved.ID, EditParams{Date: &later, Concept: &concept})
	require.NoError(t, err)
	assert.Equal(t, "renamed", edited.Concept)
	assert.Equal(t, int64(750), edited.ResultingBalance.Cents)

	movements := requireConsistent(t, l, acc.ID)
	assert.Equal(t, moved.ID, movements[2].ID)
	assert.Equal(t, int64(1050), movements[1].ResultingBalance.Cents)
}

func TestEdit_Errors(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "RENTAS")
	m := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	ctx := context.Background()

	_, err := l.Edit(ctx, m.ID, EditParams{})
	assert.True(t, core.IsValidation(err))

	zero := cents(0)
	_, err = l.Edit(ctx, m.ID, EditParams{Amount: &zero})
	assert.True(t, core.IsValidation(err))

	one := cents(1)
	_, err = l.Edit(ctx, 9999, EditParams{Amount: &one})
	assert.True(t, core.IsConsistency(err))
}

func TestDelete_RoundTrip(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")
	ctx := context.Background()

	appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	before, err := l.GetAccount(ctx, acc.ID)
	require.NoError(t, err)

	m := appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Egreso, 400)
	require.NoError(t, l.Delete(ctx, m.ID))

	after, err := l.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Balance, after.Balance)
	requireConsistent(t, l, acc.ID)

	err = l.Delete(ctx, m.ID)
	assert.True(t, core.IsConsistency(err))
}

func TestDelete_MiddleCascades(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")
	ctx := context.Background()

	appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	mid := appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Ingreso, 500)
	appendMovement(t, l, acc.ID, date(2024, 1, 3), core.Egreso, 200)

	require.NoError(t, l.Delete(ctx, mid.ID))
	movements := requireConsistent(t, l, acc.ID)
	require.Len(t, movements, 2)
	assert.Equal(t, int64(800), movements[1].ResultingBalance.Cents)
}

func TestRecalculateAccount_RepairsAndIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "RENTAS")
	ctx := context.Background()
	q := l.Repository().Queries()

	m1 := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Egreso, 300)

	// simulate drift
	_, err := q.SetResultingBalance(ctx, m1.ID, cents(5))
	require.NoError(t, err)
	require.NoError(t, q.UpdateAccountBalance(ctx, acc.ID, cents(42)))

	b1, err := l.RecalculateAccount(ctx, acc.ID)
	require.NoError(t, err)
	first := requireConsistent(t, l, acc.ID)

	b2, err := l.RecalculateAccount(ctx, acc.ID)
	require.NoError(t, err)
	second := requireConsistent(t, l, acc.ID)

	assert.Equal(t, int64(700), b1.Cents)
	assert.Equal(t, b1, b2)
	assert.Equal(t, first, second)

	_, err = l.RecalculateAccount(ctx, 9999)
	assert.True(t, core.IsConsistency(err))
}

func TestRecalculateAll(t *testing.T) {
	l := newTestLedger(t, WithConcurrency(2))
	ctx := context.Background()
	q := l.Repository().Queries()

	var ids []int64
	for _, name := range []string{"A", "B", "C", "D"} {
		acc := newAccount(t, l, name)
		ids = append(ids, acc.ID)
		appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 100)
		require.NoError(t, q.UpdateAccountBalance(ctx, acc.ID, cents(-1)))
	}

	balances, err := l.RecalculateAll(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 4)
	for _, id := range ids {
		assert.Equal(t, int64(100), balances[id].Cents)
		requireConsistent(t, l, id)
	}
}

func TestClear(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")
	ctx := context.Background()

	appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	appendMovement(t, l, acc.ID, date(2024, 1, 2), core.Egreso, 100)

	n, err := l.Clear(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := l.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
	assert.Empty(t, requireConsistent(t, l, acc.ID))
}

func TestListMovements_FiltersAndPages(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "RENTAS")
	ctx := context.Background()

	for day := 1; day <= 10; day++ {
		dir := core.Ingreso
		if day%2 == 0 {
			dir = core.Egreso
		}
		appendMovement(t, l, acc.ID, date(2024, 1, day), dir, int64(day))
	}

	page, err := l.ListMovements(ctx, MovementQuery{AccountID: acc.ID, From: date(2024, 1, 3), To: date(2024, 1, 8), PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.Total)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "2024-01-03", page.Items[0].Date.String())

	page, err = l.ListMovements(ctx, MovementQuery{AccountID: acc.ID, From: date(2024, 1, 3), To: date(2024, 1, 8), Page: 2, PageSize: 4})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "2024-01-08", page.Items[1].Date.String())

	page, err = l.ListMovements(ctx, MovementQuery{AccountID: acc.ID, Direction: core.Egreso})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)

	_, err = l.ListMovements(ctx, MovementQuery{AccountID: acc.ID, Direction: "X"})
	assert.True(t, core.IsValidation(err))
}

func TestAppend_ConcurrentWritersKeepInvariant(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := core.Ingreso
			if i%3 == 0 {
				dir = core.Egreso
			}
			_, err := l.Append(ctx, AppendParams{
				AccountID: acc.ID,
				Date:      date(2024, 1, 1+i%5),
				Direction: dir,
				Amount:    cents(int64(10 + i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	movements := requireConsistent(t, l, acc.ID)
	assert.Len(t, movements, 30)
}

type recordingObserver struct {
	removed []core.Movement
	changed [][2]core.Movement
}

func (r *recordingObserver) MovementRemoved(_ context.Context, _ *storage.Queries, m core.Movement) error {
	r.removed = append(r.removed, m)
	return nil
}

func (r *recordingObserver) MovementChanged(_ context.Context, _ *storage.Queries, before, after core.Movement) error {
	r.changed = append(r.changed, [2]core.Movement{before, after})
	return nil
}

func TestObserverNotified(t *testing.T) {
	obs := &recordingObserver{}
	l := newTestLedger(t, WithObserver(obs))
	acc := newAccount(t, l, "RENTAS")
	ctx := context.Background()

	m := appendMovement(t, l, acc.ID, date(2024, 1, 1), core.Ingreso, 1000)
	amount := cents(1500)
	_, err := l.Edit(ctx, m.ID, EditParams{Amount: &amount})
	require.NoError(t, err)
	require.Len(t, obs.changed, 1)
	assert.Equal(t, int64(1000), obs.changed[0][0].Amount.Cents)
	assert.Equal(t, int64(1500), obs.changed[0][1].Amount.Cents)

	require.NoError(t, l.Delete(ctx, m.ID))
	require.Len(t, obs.removed, 1)
	assert.Equal(t, m.ID, obs.removed[0].ID)
}
