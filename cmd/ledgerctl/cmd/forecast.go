package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"go-ledger-reconciliation/cmd/ledgerctl/config"
	"go-ledger-reconciliation/internal/forecast"
	"go-ledger-reconciliation/internal/models"

	"github.com/spf13/cobra"
)

// Flags for the forecast command
var (
	forecastAccount string
	forecastMethod  string
	forecastHorizon int
	forecastStart   string
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project an account's future balance",
	Long: `Forecast projects an account's balance over a horizon of days.

Two methods are available:
  rule  expands known recurring schedules day by day from the anchor balance
  stat  fits a linear trend to reconstructed balance history and extends it

The statistical method needs history reconstructed first (see
'ledgerctl history').

Examples:
  ledgerctl forecast --account acc-1 --method rule --horizon 30
  ledgerctl forecast --account acc-1 --method stat --horizon 90`,

	PreRunE: validateForecastFlags,
	RunE:    runForecast,
}

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().StringVarP(&forecastAccount, "account", "a", "", "account id to forecast (required)")
	forecastCmd.Flags().StringVarP(&forecastMethod, "method", "m", "rule", "forecast method: rule, stat")
	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 30, "forecast horizon in days")
	forecastCmd.Flags().StringVar(&forecastStart, "start", "", "projection start date (YYYY-MM-DD, default today)")

	forecastCmd.MarkFlagRequired("account")
}

func validateForecastFlags(cmd *cobra.Command, args []string) error {
	if forecastAccount == "" {
		return fmt.Errorf("account is required")
	}
	if _, err := config.ParseForecastMethod(forecastMethod); err != nil {
		return fmt.Errorf("invalid method '%s'. Valid methods: rule, stat", forecastMethod)
	}
	if forecastHorizon <= 0 {
		return fmt.Errorf("horizon must be a positive number of days")
	}
	if forecastStart != "" {
		if _, err := models.ParseBusinessDate(forecastStart); err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}
	return nil
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	handler := NewCLIErrorHandler()

	store, err := openStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	method, err := config.ParseForecastMethod(forecastMethod)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	start := models.DateOnly(time.Now())
	if forecastStart != "" {
		start, _ = models.ParseBusinessDate(forecastStart)
	}

	forecaster := forecast.NewForecaster(store)
	timeline, err := forecaster.ForecastAccount(ctx, forecastAccount, method, start, forecastHorizon)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return printJSON(timeline)
}
