package cmd

import (
	"fmt"
	"os"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Transaction reconciliation and pattern-detection tool",
	Long: `Ledgerctl runs the transaction reconciliation engine: it ingests raw
transaction batches, pairs internal transfers across accounts, detects
recurring patterns, reconstructs daily balance history and projects
future balances.

Examples:
  ledgerctl ingest --account acc-1 --csv statement.csv
  ledgerctl sweep --user user-1
  ledgerctl history --account acc-1 --start 2026-01-01 --end 2026-03-31
  ledgerctl forecast --account acc-1 --method rule --horizon 30
  ledgerctl version`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string (omit to run in memory)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	// A local .env provides development settings; absence is not an error.
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("LEDGERCTL")
	viper.AutomaticEnv()

	logConfig := logger.DefaultConfig()
	if viper.GetBool("verbose") {
		logConfig = logger.DebugConfig()
	}
	if err := logger.InitGlobalLogger(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %s\n", err)
		os.Exit(1)
	}
}

// openStore builds the ledger store from configuration: Postgres when a
// connection string is set, otherwise an in-memory store for local runs.
func openStore() (ledger.Store, error) {
	dsn := viper.GetString("database_url")
	if dsn == "" {
		return ledger.NewMemoryStore(), nil
	}
	return ledger.NewPostgresStore(dsn)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
