package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cuentas/internal/amqp"
	"cuentas/internal/cache"
	"cuentas/internal/cli"
	"cuentas/internal/deposits"
	applog "cuentas/internal/log"
	"cuentas/internal/sheets"
	gsheet "cuentas/internal/sheets/google"
	mem "cuentas/internal/sheets/memory"
	"cuentas/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)
	logger.Info("Starting cuentas-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	locker, closeLocker := cli.NewLocker(context.Background(), logger, cfg)
	defer closeLocker()
	engine := cli.NewEngine(repo, locker, cfg)

	processor := deposits.NewProcessor(deposits.NewService(engine.Ledger), deposits.ProcessorConfig{
		PollInterval: cfg.DepositSyncInterval,
		BatchSize:    cfg.DepositSyncBatchSize,
	})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - batch mirroring skipped")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := processor.Stop(stopCtx); err != nil {
			logger.Error("Failed to stop deposit processor", "error", err)
		}
	})

	var mirror sheets.Mirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = mem.New()
		logger.Info("Google Sheets disabled - mirroring to memory")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := processor.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})
	if amqpClient != nil {
		mirrorWorker := worker.NewMirrorWorker(repo, mirror)
		janitor := cache.NewJanitor(mirrorWorker.Caches()...)
		janitor.Start(gctx, 10*time.Minute)
		defer janitor.Stop()
		g.Go(func() error {
			err := amqpClient.ConsumeBatchProcessed(gctx, mirrorWorker.HandleBatchProcessed)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
