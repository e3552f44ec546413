package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuentas/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "cuentas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewSQLiteRepository_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cuentas.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestNewSQLiteRepository_Pragmas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var mode string
	require.NoError(t, repo.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk, timeout int
	require.NoError(t, repo.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
	require.NoError(t, repo.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "data/c.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dsn("data/c.db"))
	assert.Equal(t, "file:c.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dsn("file:c.db?cache=shared"))
}

func TestUpsertBucket_Additive(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	c, err := q.UpsertConcept(ctx, core.Concept{Key: "alquiler", Name: "Alquiler", Type: core.Rentas, Frequency: core.FrequencyWeekly})
	require.NoError(t, err)

	base := core.PeriodBucket{
		Kind:                 core.BucketWeekly,
		ConceptID:            c.ID,
		PeriodStart:          core.NewDate(2024, 1, 1),
		PeriodEnd:            core.NewDate(2024, 1, 7),
		ScheduledPaymentDate: core.NewDate(2024, 1, 8),
	}

	first := base
	first.Total = core.Money{Cents: 50000}
	b1, err := q.UpsertBucket(ctx, first)
	require.NoError(t, err)

	second := base
	second.Total = core.Money{Cents: 20000}
	second.ScheduledPaymentDate = core.NewDate(2030, 1, 1)
	b2, err := q.UpsertBucket(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, b1.ID, b2.ID)
	assert.Equal(t, int64(70000), b2.Total.Cents)
	assert.Equal(t, "2024-01-08", b2.ScheduledPaymentDate.String())
	assert.False(t, b2.Paid)
}

func TestDailyPosnet_UpsertAndBankAmount(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()
	day := core.NewDate(2024, 3, 4)

	_, err := q.UpsertDailyPosnet(ctx, day, core.Money{Cents: 80000}, core.Money{})
	require.NoError(t, err)
	p, err := q.UpsertDailyPosnet(ctx, day, core.Money{}, core.Money{Cents: 30000})
	require.NoError(t, err)
	assert.Equal(t, int64(110000), p.TotalPosnet.Cents)
	assert.Equal(t, int64(110000), p.Diferencia.Cents)

	p, err = q.SetBankAmount(ctx, day, core.Money{Cents: 110000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Diferencia.Cents)

	// card postings after the bank amount keep diferencia derived
	p, err = q.UpsertDailyPosnet(ctx, day, core.Money{Cents: 500}, core.Money{})
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.Diferencia.Cents)
}

func TestSetBankAmount_NewDay(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	p, err := q.SetBankAmount(ctx, core.NewDate(2024, 3, 5), core.Money{Cents: 4200})
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.TotalPosnet.Cents)
	assert.Equal(t, int64(-4200), p.Diferencia.Cents)
}

func TestLinkDeposit_Idempotent(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	acc, err := q.CreateAccount(ctx, "ICBC")
	require.NoError(t, err)
	d, err := q.CreateDeposit(ctx, core.Deposit{Amount: core.Money{Cents: 1000}, IngressDate: core.NewDate(2024, 1, 2), AccountID: &acc.ID})
	require.NoError(t, err)
	assert.False(t, d.CreatedAt.IsZero())

	pending, err := q.ListPendingDeposits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	ok, err := q.LinkDeposit(ctx, d.ID, 99)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.LinkDeposit(ctx, d.ID, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err = q.ListPendingDeposits(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(q *Queries) error {
		if _, err := q.CreateAccount(ctx, "CAJA"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.Queries().GetAccountByName(ctx, "CAJA")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
