// Package cli holds the start-up steps shared by cmd/cuentas,
// cmd/cuentas-worker and cmd/cuentasctl.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cuentas/internal/aggregator"
	"cuentas/internal/config"
	"cuentas/internal/ledger"
	"cuentas/internal/lock"
	applog "cuentas/internal/log"
	"cuentas/internal/routing"
	"cuentas/internal/storage"
)

// SetupLogger installs a text logger on stdout as the slog default.
func SetupLogger(level string) *applog.Logger {
	logger := applog.New(applog.Config{Level: applog.ParseLevel(level), Output: os.Stdout})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development; a missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig exits the process when the environment is invalid.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewLocker returns the per-account locker selected by LOCK_BACKEND and a
// function releasing its resources.
func NewLocker(ctx context.Context, logger *applog.Logger, cfg *config.Config) (lock.Locker, func()) {
	if cfg.LockBackend != "redis" {
		return lock.NewKeyedMutex(), func() {}
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err, "address", cfg.RedisAddress)
		os.Exit(1)
	}
	logger.Info("Using Redis account locks", "address", cfg.RedisAddress, "ttl", cfg.LockTTL)
	return lock.NewRedisLocker(rdb, cfg.LockTTL), func() { _ = rdb.Close() }
}

// InitRouting loads and syncs the routing table. Configuration alerts are
// logged; only I/O and storage failures stop the process.
func InitRouting(ctx context.Context, logger *applog.Logger, cfg *config.Config, repo *storage.SQLiteRepository) *routing.Table {
	f, err := routing.Load(cfg.RoutingFile)
	if err != nil {
		logger.Error("Failed to load routing table", "error", err, "path", cfg.RoutingFile)
		os.Exit(1)
	}
	table := routing.Build(f)
	if err := table.Sync(ctx, repo.Queries()); err != nil {
		logger.Error("Failed to sync routing table", "error", err)
		os.Exit(1)
	}
	return table
}

// Engine bundles the ledger and the aggregator observing it.
type Engine struct {
	Repo       *storage.SQLiteRepository
	Ledger     *ledger.Ledger
	Aggregator *aggregator.Aggregator
}

func NewEngine(repo *storage.SQLiteRepository, locker lock.Locker, cfg *config.Config) *Engine {
	agg := aggregator.New(repo)
	l := ledger.New(repo, locker,
		ledger.WithObserver(agg),
		ledger.WithConcurrency(cfg.RecalcConcurrency))
	return &Engine{Repo: repo, Ledger: l, Aggregator: agg}
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM after
// cleanup has run, and a channel closed once shutdown finished.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ended.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
