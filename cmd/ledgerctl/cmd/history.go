package cmd

import (
	"context"
	"fmt"
	"os"

	"go-ledger-reconciliation/cmd/ledgerctl/config"
	"go-ledger-reconciliation/internal/history"
	"go-ledger-reconciliation/internal/models"

	"github.com/spf13/cobra"
)

// Flags for the history command
var (
	historyAccount string
	historyStart   string
	historyEnd     string
	historyPending bool
	historyPersist bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Reconstruct an account's daily balance history",
	Long: `History derives a daily balance series for an account by walking backward
from its anchor balance, undoing each day's net transaction delta with
exact decimal arithmetic. Every day in the range is represented,
including days with no transactions.

The account must carry a known anchor balance; reconstruction refuses to
guess a starting point.

Examples:
  ledgerctl history --account acc-1 --start 2026-01-01 --end 2026-03-31
  ledgerctl history --account acc-1 --start 2026-01-01 --end 2026-03-31 --persist=false`,

	PreRunE: validateHistoryFlags,
	RunE:    runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyAccount, "account", "a", "", "account id to reconstruct (required)")
	historyCmd.Flags().StringVar(&historyStart, "start", "", "range start date (YYYY-MM-DD, required)")
	historyCmd.Flags().StringVar(&historyEnd, "end", "", "range end date (YYYY-MM-DD, required)")
	historyCmd.Flags().BoolVar(&historyPending, "include-pending", false, "count pending transactions in daily deltas")
	historyCmd.Flags().BoolVar(&historyPersist, "persist", true, "write the reconstructed series back to the store")

	historyCmd.MarkFlagRequired("account")
	historyCmd.MarkFlagRequired("start")
	historyCmd.MarkFlagRequired("end")
}

func validateHistoryFlags(cmd *cobra.Command, args []string) error {
	if historyAccount == "" {
		return fmt.Errorf("account is required")
	}
	if historyStart == "" || historyEnd == "" {
		return fmt.Errorf("start and end dates are required")
	}
	from, err := models.ParseBusinessDate(historyStart)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	to, err := models.ParseBusinessDate(historyEnd)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	if from.After(to) {
		return fmt.Errorf("start date cannot be after end date")
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	handler := NewCLIErrorHandler()

	store, err := openStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	start, _ := models.ParseBusinessDate(historyStart)
	end, _ := models.ParseBusinessDate(historyEnd)

	reconstructor := history.NewReconstructor(store, config.CreateHistoryConfig(historyPending, historyPersist))
	points, err := reconstructor.ReconstructAccount(ctx, historyAccount, start, end)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return printJSON(points)
}
