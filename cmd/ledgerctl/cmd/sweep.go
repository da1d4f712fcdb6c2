package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"go-ledger-reconciliation/cmd/ledgerctl/config"
	"go-ledger-reconciliation/internal/engine"
	"go-ledger-reconciliation/internal/models"

	"github.com/spf13/cobra"
)

// Flags for the sweep command
var (
	sweepUser     string
	sweepStart    string
	sweepEnd      string
	sweepEpsilon  int
	sweepPending  bool
	sweepMinOccur int
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run transfer and recurring detection over a user's ledger",
	Long: `Sweep runs internal-transfer detection, recurring-pattern detection and
the recurring bridge over a user's existing ledger, without ingesting
anything new. Both detection passes are idempotent; a second sweep over
the same window finds nothing new.

Examples:
  # Sweep the whole ledger
  ledgerctl sweep --user user-1

  # Sweep a window only
  ledgerctl sweep --user user-1 --start 2026-01-01 --end 2026-03-31`,

	PreRunE: validateSweepFlags,
	RunE:    runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVarP(&sweepUser, "user", "u", "", "user id to sweep (required)")
	sweepCmd.Flags().StringVar(&sweepStart, "start", "", "window start date (YYYY-MM-DD, default unbounded)")
	sweepCmd.Flags().StringVar(&sweepEnd, "end", "", "window end date (YYYY-MM-DD, default unbounded)")
	sweepCmd.Flags().IntVar(&sweepEpsilon, "date-epsilon", 1, "transfer pairing window in days")
	sweepCmd.Flags().BoolVar(&sweepPending, "include-pending", true, "let pending transactions participate in pairing")
	sweepCmd.Flags().IntVar(&sweepMinOccur, "min-occurrences", 3, "minimum occurrences before a pattern is recurring")

	sweepCmd.MarkFlagRequired("user")
}

func validateSweepFlags(cmd *cobra.Command, args []string) error {
	if sweepUser == "" {
		return fmt.Errorf("user is required")
	}
	if _, _, err := parseWindow(sweepStart, sweepEnd); err != nil {
		return err
	}
	if sweepEpsilon < 0 {
		return fmt.Errorf("date epsilon cannot be negative")
	}
	if sweepMinOccur < 2 {
		return fmt.Errorf("min occurrences must be at least 2")
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	handler := NewCLIErrorHandler()

	store, err := openStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	from, to, err := parseWindow(sweepStart, sweepEnd)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	eng, err := engine.New(store, config.CreateEngineConfig(sweepEpsilon, sweepMinOccur, sweepPending))
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	result, err := eng.SweepUser(ctx, sweepUser, from, to)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return printJSON(result)
}

// parseWindow parses optional window bounds; empty strings mean unbounded.
func parseWindow(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if start != "" {
		from, err = models.ParseBusinessDate(start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
		}
	}
	if end != "" {
		to, err = models.ParseBusinessDate(end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date cannot be after end date")
	}
	return from, to, nil
}
