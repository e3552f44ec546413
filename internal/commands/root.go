// Package commands implements cuentasctl, the maintenance CLI for the
// ledger: recalculation, clearing, CSV imports and deposit sync.
package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cuentas/internal/aggregator"
	"cuentas/internal/config"
	"cuentas/internal/core"
	"cuentas/internal/ledger"
	"cuentas/internal/lock"
	applog "cuentas/internal/log"
	"cuentas/internal/routing"
	"cuentas/internal/storage"
)

// Execute runs cuentasctl with args and always releases the database.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	rootCmd := newRootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cuentasctl",
		Short: "Maintenance commands for the cuentas ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")

	rootCmd.AddCommand(
		newRecalcCommand(a),
		newRecalcAllCommand(a),
		newClearCommand(a),
		newImportCommand(a),
		newPosnetImportCommand(a),
		newDepositsCommand(a),
		newRoutingCommand(a),
	)
	return rootCmd
}

// app is the engine shared by every subcommand, opened before RunE.
type app struct {
	dbPath string

	cfg        *config.Config
	logger     *applog.Logger
	repo       *storage.SQLiteRepository
	ledger     *ledger.Ledger
	aggregator *aggregator.Aggregator
	table      *routing.Table
	closers    []func()
}

func (a *app) open(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a.cfg = config.Load()
	if a.dbPath != "" {
		a.cfg.SQLiteDBPath = a.dbPath
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.logger = applog.New(applog.Config{
		Level:  applog.ParseLevel(a.cfg.LogLevel),
		Output: cmd.ErrOrStderr(),
	})
	applog.SetDefault(a.logger)

	repo, err := storage.NewSQLiteRepository(a.cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, func() { _ = repo.Close() })

	locker := lock.Locker(lock.NewKeyedMutex())
	if a.cfg.LockBackend == "redis" {
		rdb, err := lock.NewRedisClient(ctx, a.cfg.RedisAddress, a.cfg.RedisPassword)
		if err != nil {
			a.close()
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		locker = lock.NewRedisLocker(rdb, a.cfg.LockTTL)
	}

	f, err := routing.Load(a.cfg.RoutingFile)
	if err != nil {
		a.close()
		return err
	}
	a.table = routing.Build(f)
	if err := a.table.Sync(ctx, repo.Queries()); err != nil {
		a.close()
		return fmt.Errorf("sync routing: %w", err)
	}

	a.aggregator = aggregator.New(repo)
	a.ledger = ledger.New(repo, locker,
		ledger.WithObserver(a.aggregator),
		ledger.WithConcurrency(a.cfg.RecalcConcurrency))
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// resolveAccount accepts a numeric id or an account name.
func (a *app) resolveAccount(ctx context.Context, ref string) (core.Account, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.ledger.GetAccount(ctx, id)
	}
	accounts, err := a.ledger.ListAccounts(ctx)
	if err != nil {
		return core.Account{}, err
	}
	for _, acc := range accounts {
		if strings.EqualFold(acc.Name, ref) {
			return acc, nil
		}
	}
	return core.Account{}, fmt.Errorf("account %q: %w", ref, core.ErrNotFound)
}

func newRecalcCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc <account>",
		Short: "Rebuild one account's balance snapshots from its movements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.resolveAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			balance, err := a.ledger.RecalculateAccount(cmd.Context(), acc.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", acc.Name, balance)
			return nil
		},
	}
}

func newRecalcAllCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc-all",
		Short: "Rebuild every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			balances, err := a.ledger.RecalculateAll(cmd.Context())
			if err != nil {
				return err
			}
			accounts, err := a.ledger.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			for _, acc := range accounts {
				if b, ok := balances[acc.ID]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", acc.Name, b)
				}
			}
			return nil
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear <account>",
		Short: "Delete every movement of an account and reset its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear %s without --yes", args[0])
			}
			acc, err := a.resolveAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := a.ledger.Clear(cmd.Context(), acc.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d movements from %s\n", n, acc.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func newRoutingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "routing",
		Short: "Show the routes in fan-out order and the configuration alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, r := range a.table.Routes() {
				actions := make([]string, 0, len(r.Actions))
				for _, k := range r.Actions {
					actions = append(actions, k.String())
				}
				status := "enabled"
				if r.Disabled != "" {
					status = "disabled: " + r.Disabled
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", r.Key, r.Role, strings.Join(actions, ","), status)
			}
			for _, alert := range a.table.Alerts() {
				fmt.Fprintf(out, "alert\t%s\n", alert)
			}
			return nil
		},
	}
}
