package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuentas/internal/amqp"
	"cuentas/internal/core"
	"cuentas/internal/ledger"
	"cuentas/internal/lock"
	"cuentas/internal/sheets"
	"cuentas/internal/sheets/memory"
	"cuentas/internal/storage"
)

type failingMirror struct{ *memory.Store }

func (failingMirror) AppendBatch(context.Context, sheets.BatchRecord) (string, error) {
	return "", errors.New("quota exceeded")
}

func seedBatch(t *testing.T) (*storage.SQLiteRepository, *amqp.BatchProcessedMessage) {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	l := ledger.New(repo, lock.NewKeyedMutex())
	caja, err := l.CreateAccount(ctx, "CAJA")
	require.NoError(t, err)
	d := core.NewDate(2024, 3, 6)
	for _, p := range []ledger.AppendParams{
		{AccountID: caja.ID, Date: d, Direction: core.Ingreso, Concept: "Efectivo", Amount: core.Money{Cents: 100000}, BatchID: "b-1"},
		{AccountID: caja.ID, Date: d, Direction: core.Egreso, Concept: "Proveedores", Amount: core.Money{Cents: 30000}, BatchID: "b-1"},
		{AccountID: caja.ID, Date: d, Direction: core.Ingreso, Concept: "Otro lote", Amount: core.Money{Cents: 5000}, BatchID: "b-2"},
	} {
		_, err := l.Append(ctx, p)
		require.NoError(t, err)
	}

	return repo, &amqp.BatchProcessedMessage{
		BatchID:         "b-1",
		Date:            "2024-03-06",
		EntregadoCents:  70000,
		TotalCents:      70000,
		DiferenciaCents: 0,
		Movements:       2,
	}
}

func TestHandleBatchProcessed_MirrorsMovements(t *testing.T) {
	repo, msg := seedBatch(t)
	store := memory.New()
	w := NewMirrorWorker(repo, store)

	require.NoError(t, w.HandleBatchProcessed(context.Background(), msg))

	recs := store.Records()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "b-1", rec.BatchID)
	assert.Equal(t, int64(70000), rec.Total.Cents)
	require.Len(t, rec.Movements, 2)
	assert.Equal(t, "CAJA", rec.Movements[0].Account)
	assert.Equal(t, "Efectivo", rec.Movements[0].Concept)
	assert.Equal(t, core.Egreso, rec.Movements[1].Direction)
	assert.Equal(t, int64(70000), rec.Movements[1].Balance.Cents)
}

func TestHandleBatchProcessed_RedeliveryIsSkipped(t *testing.T) {
	repo, msg := seedBatch(t)
	store := memory.New()
	w := NewMirrorWorker(repo, store)
	ctx := context.Background()

	require.NoError(t, w.HandleBatchProcessed(ctx, msg))
	require.NoError(t, w.HandleBatchProcessed(ctx, msg))

	assert.Len(t, store.Records(), 1)
}

func TestHandleBatchProcessed_Errors(t *testing.T) {
	repo, msg := seedBatch(t)
	ctx := context.Background()

	bad := *msg
	bad.Date = "06/13/2024"
	err := NewMirrorWorker(repo, memory.New()).HandleBatchProcessed(ctx, &bad)
	assert.Error(t, err)

	err = NewMirrorWorker(repo, failingMirror{memory.New()}).HandleBatchProcessed(ctx, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

type countingMirror struct {
	*memory.Store
	lookups int
}

func (m *countingMirror) HasBatch(ctx context.Context, year int, batchID string) (bool, error) {
	m.lookups++
	return m.Store.HasBatch(ctx, year, batchID)
}

func TestHandleBatchProcessed_RedeliveryUsesCache(t *testing.T) {
	repo, msg := seedBatch(t)
	mirror := &countingMirror{Store: memory.New()}
	w := NewMirrorWorker(repo, mirror)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.HandleBatchProcessed(ctx, msg))
	}
	assert.Equal(t, 1, mirror.lookups)
	assert.Len(t, mirror.Records(), 1)
	assert.Len(t, w.Caches(), 2)
}
