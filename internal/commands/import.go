package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cuentas/internal/core"
	"cuentas/internal/deposits"
)

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <account> <file.csv>",
		Short: "Append fecha,tipo,concepto,monto rows to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.resolveAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[1], err)
			}
			defer f.Close()

			res, err := a.ledger.Import(cmd.Context(), acc.ID, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "inserted %d movements into %s\n", res.Inserted, acc.Name)
			printRowErrors(out, res.Errors)
			return nil
		},
	}
}

func newPosnetImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "posnet-import <file.csv>",
		Short: "Load bank-credited amounts (date,bank_amount) into the daily POSNET controls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			res, err := a.aggregator.ImportPosnetCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "updated %d days\n", res.Updated)
			printRowErrors(out, res.Errors)
			return nil
		},
	}
}

func newDepositsCommand(a *app) *cobra.Command {
	depositsCmd := &cobra.Command{
		Use:   "deposits",
		Short: "Deposit operations",
	}

	var limit int
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Link pending deposits to their accounts now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deposits.NewService(a.ledger).Sync(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "linked %d, skipped %d, recalculated %d accounts\n",
				res.Linked, res.Skipped, len(res.AccountsRecalculated))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "error: %v\n", e)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d deposits failed", len(res.Errors))
			}
			return nil
		},
	}
	syncCmd.Flags().IntVar(&limit, "limit", 0, "maximum deposits to link (0 means all)")

	depositsCmd.AddCommand(syncCmd)
	return depositsCmd
}

func printRowErrors(out io.Writer, errs []core.RowError) {
	for _, e := range errs {
		fmt.Fprintf(out, "row %d: %v\n", e.Row, e.Err)
	}
}
