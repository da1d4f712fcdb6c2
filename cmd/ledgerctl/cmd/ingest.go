package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go-ledger-reconciliation/cmd/ledgerctl/config"
	"go-ledger-reconciliation/internal/engine"
	"go-ledger-reconciliation/internal/ingest"
	"go-ledger-reconciliation/internal/ledger"

	"github.com/spf13/cobra"
)

// Flags for the ingest command
var (
	ingestAccount   string
	ingestCSVFile   string
	ingestEpsilon   int
	ingestPending   bool
	ingestMinOccur  int
	seedUser        string
	seedName        string
	seedType        string
	seedBalance     string
	seedBalanceAsOf string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a CSV transaction batch and run the detection pipeline",
	Long: `Ingest parses a CSV statement, applies it to the account's ledger with
idempotent upsert semantics, then runs internal-transfer detection,
recurring-pattern detection and the recurring bridge over the owning
user's ledger.

Re-running the same file is safe: rows are keyed by a deterministic
fingerprint, so no duplicates are created and no derived state drifts.

Examples:
  # Ingest against an existing account
  ledgerctl ingest --account acc-1 --csv statement.csv

  # Seed the account on first use (in-memory runs)
  ledgerctl ingest --account acc-1 --csv statement.csv \
    --seed-user user-1 --seed-type depository --seed-balance 1200.00`,

	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	// Required flags
	ingestCmd.Flags().StringVarP(&ingestAccount, "account", "a", "", "account id to ingest into (required)")
	ingestCmd.Flags().StringVarP(&ingestCSVFile, "csv", "c", "", "path to CSV statement file (required)")

	// Pipeline tuning flags
	ingestCmd.Flags().IntVar(&ingestEpsilon, "date-epsilon", 1, "transfer pairing window in days")
	ingestCmd.Flags().BoolVar(&ingestPending, "include-pending", true, "let pending transactions participate in pairing")
	ingestCmd.Flags().IntVar(&ingestMinOccur, "min-occurrences", 3, "minimum occurrences before a pattern is recurring")

	// Account seeding flags
	ingestCmd.Flags().StringVar(&seedUser, "seed-user", "", "user id to create the account under if missing")
	ingestCmd.Flags().StringVar(&seedName, "seed-name", "", "display name for a seeded account")
	ingestCmd.Flags().StringVar(&seedType, "seed-type", "depository", "type for a seeded account: depository, credit, loan, investment, other")
	ingestCmd.Flags().StringVar(&seedBalance, "seed-balance", "", "anchor balance for a seeded account")
	ingestCmd.Flags().StringVar(&seedBalanceAsOf, "seed-balance-as-of", "", "business date the anchor balance was observed on (YYYY-MM-DD)")

	// Mark required flags
	ingestCmd.MarkFlagRequired("account")
	ingestCmd.MarkFlagRequired("csv")
}

func validateIngestFlags(cmd *cobra.Command, args []string) error {
	if ingestAccount == "" {
		return fmt.Errorf("account is required")
	}
	if err := validateFileExists(ingestCSVFile, "CSV statement file"); err != nil {
		return err
	}
	if ingestEpsilon < 0 {
		return fmt.Errorf("date epsilon cannot be negative")
	}
	if ingestMinOccur < 2 {
		return fmt.Errorf("min occurrences must be at least 2")
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	handler := NewCLIErrorHandler()

	store, err := openStore()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if err := seedAccountIfRequested(ctx, store); err != nil {
		os.Exit(handler.HandleError(err))
	}

	file, err := os.Open(ingestCSVFile)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer file.Close()

	payloads, err := ingest.ReadCSVPayloads(file)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	eng, err := engine.New(store, config.CreateEngineConfig(ingestEpsilon, ingestMinOccur, ingestPending))
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	result, err := eng.ProcessBatch(ctx, ingestAccount, payloads)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return printJSON(result)
}

// seedAccountIfRequested creates the target account from the seed flags when
// it does not exist yet. Without seed flags a missing account stays an error.
func seedAccountIfRequested(ctx context.Context, store ledger.Store) error {
	if seedUser == "" {
		return nil
	}

	_, err := store.GetAccount(ctx, ingestAccount)
	if err == nil {
		return nil
	}
	if err != ledger.ErrNotFound {
		return err
	}

	account, err := config.CreateSeedAccount(ingestAccount, seedUser, seedName, seedType, seedBalance, seedBalanceAsOf)
	if err != nil {
		return err
	}
	return store.SaveAccount(ctx, account)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}
