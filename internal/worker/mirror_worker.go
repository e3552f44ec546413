// Package worker consumes batch.processed events and mirrors each committed
// batch into the spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"cuentas/internal/amqp"
	"cuentas/internal/cache"
	"cuentas/internal/core"
	"cuentas/internal/sheets"
	"cuentas/internal/storage"
)

type MirrorWorker struct {
	storage *storage.SQLiteRepository
	mirror  sheets.Mirror

	// mirrored remembers batches already appended so a redelivery does not
	// cost a spreadsheet read.
	mirrored     *cache.LRU[bool]
	accountNames *cache.LRU[string]
}

func NewMirrorWorker(storage *storage.SQLiteRepository, mirror sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{
		storage:      storage,
		mirror:       mirror,
		mirrored:     cache.NewLRU[bool](1024, 24*time.Hour),
		accountNames: cache.NewLRU[string](256, 10*time.Minute),
	}
}

// Caches exposes the worker caches for periodic sweeping.
func (w *MirrorWorker) Caches() []cache.Cleaner {
	return []cache.Cleaner{w.mirrored, w.accountNames}
}

// HandleBatchProcessed reads the batch's movements back from the database and
// appends them to the mirror. A batch already present is skipped, which makes
// redelivery harmless.
func (w *MirrorWorker) HandleBatchProcessed(ctx context.Context, msg *amqp.BatchProcessedMessage) error {
	d, err := core.ParseDate(msg.Date)
	if err != nil {
		return fmt.Errorf("parse batch date %q: %w", msg.Date, err)
	}

	key := strconv.Itoa(d.Year()) + "/" + msg.BatchID
	seen, ok := w.mirrored.Get(key)
	if !ok {
		if seen, err = w.mirror.HasBatch(ctx, d.Year(), msg.BatchID); err != nil {
			return fmt.Errorf("check mirrored batch: %w", err)
		}
	}
	if seen {
		w.mirrored.Set(key, true)
		slog.InfoContext(ctx, "Batch already mirrored, skipping", "batch_id", msg.BatchID)
		return nil
	}

	rec, err := w.record(ctx, msg, d)
	if err != nil {
		return err
	}

	ref, err := w.mirror.AppendBatch(ctx, rec)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	w.mirrored.Set(key, true)

	slog.InfoContext(ctx, "Successfully mirrored batch",
		"batch_id", msg.BatchID,
		"date", msg.Date,
		"movements", len(rec.Movements),
		"sheets_ref", ref)
	return nil
}

func (w *MirrorWorker) record(ctx context.Context, msg *amqp.BatchProcessedMessage, d core.Date) (sheets.BatchRecord, error) {
	q := w.storage.Queries()
	movements, err := q.ListMovementsByBatch(ctx, msg.BatchID)
	if err != nil {
		return sheets.BatchRecord{}, fmt.Errorf("list batch movements: %w", err)
	}

	rec := sheets.BatchRecord{
		BatchID:    msg.BatchID,
		Date:       d,
		Entregado:  core.Money{Cents: msg.EntregadoCents},
		Total:      core.Money{Cents: msg.TotalCents},
		Diferencia: core.Money{Cents: msg.DiferenciaCents},
		Alerts:     msg.Alerts,
	}
	for _, m := range movements {
		name, err := w.accountName(ctx, m.AccountID)
		if err != nil {
			return sheets.BatchRecord{}, err
		}
		rec.Movements = append(rec.Movements, sheets.MovementLine{
			Account:   name,
			Direction: m.Direction,
			Concept:   m.Concept,
			Amount:    m.Amount,
			Balance:   m.ResultingBalance,
		})
	}
	return rec, nil
}

// accountName reloads every account name on a miss; accounts are few and
// rarely renamed.
func (w *MirrorWorker) accountName(ctx context.Context, id int64) (string, error) {
	key := strconv.FormatInt(id, 10)
	if name, ok := w.accountNames.Get(key); ok {
		return name, nil
	}
	accounts, err := w.storage.Queries().ListAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		w.accountNames.Set(strconv.FormatInt(a.ID, 10), a.Name)
	}
	if name, ok := w.accountNames.Get(key); ok {
		return name, nil
	}
	return fmt.Sprintf("#%d", id), nil
}
