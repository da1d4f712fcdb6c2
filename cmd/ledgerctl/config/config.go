// Package config builds component configurations from CLI flag values,
// keeping flag-to-config translation out of the command handlers.
package config

import (
	"fmt"

	"go-ledger-reconciliation/internal/engine"
	"go-ledger-reconciliation/internal/forecast"
	"go-ledger-reconciliation/internal/history"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/internal/recurring"
	"go-ledger-reconciliation/internal/transfer"
)

// CreateEngineConfig creates a pipeline configuration with CLI overrides applied.
func CreateEngineConfig(dateEpsilonDays, minOccurrences int, includePending bool) *engine.Config {
	config := engine.DefaultConfig()

	// Apply CLI overrides
	config.Transfer.DateEpsilonDays = dateEpsilonDays
	config.Transfer.IncludePending = includePending
	config.Recurring.MinOccurrences = minOccurrences

	return config
}

// CreateTransferConfig creates a transfer-detection configuration with the
// specified pairing window.
func CreateTransferConfig(dateEpsilonDays int, includePending bool) *transfer.Config {
	config := transfer.DefaultConfig()
	config.DateEpsilonDays = dateEpsilonDays
	config.IncludePending = includePending
	return config
}

// CreateDetectorConfig creates a recurring-detection configuration.
func CreateDetectorConfig(minOccurrences int) *recurring.DetectorConfig {
	config := recurring.DefaultDetectorConfig()
	config.MinOccurrences = minOccurrences
	return config
}

// CreateHistoryConfig creates a reconstruction configuration.
func CreateHistoryConfig(includePending, persist bool) *history.Config {
	config := history.DefaultConfig()
	config.IncludePending = includePending
	config.Persist = persist
	return config
}

// ParseForecastMethod validates the CLI method flag.
func ParseForecastMethod(method string) (forecast.Method, error) {
	return forecast.ParseMethod(method)
}

// CreateSeedAccount builds an account row from CLI seed flags, used when the
// target account does not exist yet in a local in-memory run.
func CreateSeedAccount(accountID, userID, name, accountType, balance, balanceAsOf string) (*models.Account, error) {
	account := &models.Account{
		AccountID: accountID,
		UserID:    userID,
		Name:      name,
		Type:      models.AccountType(accountType),
	}
	if account.Name == "" {
		account.Name = accountID
	}

	if balance != "" {
		amount, err := models.ParseAmount(balance)
		if err != nil {
			return nil, fmt.Errorf("invalid seed balance: %w", err)
		}
		account.CurrentBalance = &amount

		if balanceAsOf != "" {
			asOf, err := models.ParseBusinessDate(balanceAsOf)
			if err != nil {
				return nil, fmt.Errorf("invalid seed balance date: %w", err)
			}
			account.BalanceAsOf = asOf
		}
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}
	return account, nil
}
