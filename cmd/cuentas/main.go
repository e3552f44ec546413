package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cuentas/internal/amqp"
	"cuentas/internal/batch"
	"cuentas/internal/cli"
	"cuentas/internal/deposits"
	apphttp "cuentas/internal/http"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx := context.Background()
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	locker, closeLocker := cli.NewLocker(ctx, logger, cfg)
	defer closeLocker()

	table := cli.InitRouting(ctx, logger, cfg, repo)
	for _, a := range table.Alerts() {
		logger.Warn("Routing table alert", "alert", a.String())
	}
	engine := cli.NewEngine(repo, locker, cfg)

	// Batch events are optional: without a broker the API still works and
	// the Sheets mirror simply stays idle.
	var opts []batch.Option
	var publisher *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		opts = append(opts, batch.WithPublisher(publisher))
		logger.Info("Publishing batch events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - batch events are not published")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Repo:               repo,
		Ledger:             engine.Ledger,
		Aggregator:         engine.Aggregator,
		Batches:            batch.New(engine.Ledger, engine.Aggregator, table, opts...),
		Deposits:           deposits.NewService(engine.Ledger),
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
	})

	logger.Info("Starting cuentas server", "port", cfg.Port, "lock_backend", cfg.LockBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
