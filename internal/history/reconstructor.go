// Package history reconstructs daily balance series for accounts. The
// reconstruction walks backward from a trusted anchor balance, undoing each
// day's net transaction delta with exact decimal arithmetic, so applying the
// deltas forward over the result reproduces the anchor to the cent.
package history

import (
	"context"
	"fmt"
	"time"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config holds configuration parameters for balance reconstruction.
type Config struct {
	// IncludePending controls whether pending transactions contribute to
	// daily deltas. Defaults to false: a pending amount has not moved money
	// yet, so counting it would disagree with the provider's anchor.
	IncludePending bool `json:"include_pending"`

	// Persist controls whether reconstructed series are written back to the
	// store as account history rows.
	Persist bool `json:"persist"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		IncludePending: false,
		Persist:        true,
	}
}

// Reconstructor derives daily balance series from ledger transactions and a
// known anchor.
type Reconstructor struct {
	store  ledger.Store
	config *Config
	logger logger.Logger
}

// NewReconstructor creates a reconstructor bound to a ledger store.
func NewReconstructor(store ledger.Store, config *Config) *Reconstructor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reconstructor{
		store:  store,
		config: config,
		logger: logger.WithComponent("reconstructor"),
	}
}

// Reconstruct derives the daily balance series for [start, end] given the
// account's transactions and an anchor balance that holds at end of day on
// the end date.
//
// The walk runs backward: each day's point is emitted first, then that day's
// aggregated delta is subtracted to obtain the previous day's closing
// balance. Every day in the range is represented, including days with no
// transactions. The result is exact: replaying the deltas forward over it
// reproduces the anchor.
func Reconstruct(transactions []*models.Transaction, anchor decimal.Decimal, start, end time.Time, includePending bool) ([]models.BalancePoint, error) {
	start = models.DateOnly(start)
	end = models.DateOnly(end)
	if end.Before(start) {
		return nil, errors.ValidationError(errors.CodeInvalidRange, "history range",
			fmt.Sprintf("%s..%s", start.Format(models.DateFormat), end.Format(models.DateFormat)), nil)
	}

	deltas := dailyDeltas(transactions, includePending)

	days := models.DaysBetween(start, end) + 1
	points := make([]models.BalancePoint, days)

	balance := anchor
	for day := end; !day.Before(start); day = day.AddDate(0, 0, -1) {
		points[models.DaysBetween(start, day)] = models.BalancePoint{
			Date:    day,
			Balance: balance,
		}
		if delta, ok := deltas[day.Format(models.DateFormat)]; ok {
			balance = balance.Sub(delta)
		}
	}
	return points, nil
}

// ReconstructAccount reconstructs the account's daily series from its stored
// anchor balance, persisting the result when configured to.
func (r *Reconstructor) ReconstructAccount(ctx context.Context, accountID string, start, end time.Time) ([]models.BalancePoint, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err == ledger.ErrNotFound {
		return nil, errors.StorageError(errors.CodeNotFound, "account", err).
			WithContext("account_id", accountID)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "account", err)
	}
	if account.CurrentBalance == nil {
		// Guessing a starting balance would silently fabricate history.
		return nil, errors.ProjectionError(errors.CodeMissingAnchor, accountID, nil)
	}

	anchorDate := models.DateOnly(account.BalanceAsOf)
	if anchorDate.IsZero() {
		anchorDate = models.DateOnly(end)
	}

	// Transactions after the range but at or before the anchor date still
	// separate the anchor from the range's end balance, so the scan covers
	// the later of the two.
	scanEnd := models.DateOnly(end)
	if anchorDate.After(scanEnd) {
		scanEnd = anchorDate
	}
	transactions, err := r.store.ListTransactionsByAccount(ctx, accountID, time.Time{}, scanEnd)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "transactions", err)
	}

	// Shift the anchor from its observation date to end of day on the
	// range's end date, then reconstruct inside the range proper. The scan
	// window covers through max(end, anchor date), so both directions have
	// every delta they need.
	anchor := *account.CurrentBalance
	rangeEnd := models.DateOnly(end)
	if anchorDate.After(rangeEnd) {
		deltas := dailyDeltas(transactions, r.config.IncludePending)
		for day := anchorDate; day.After(rangeEnd); day = day.AddDate(0, 0, -1) {
			if delta, ok := deltas[day.Format(models.DateFormat)]; ok {
				anchor = anchor.Sub(delta)
			}
		}
	} else if anchorDate.Before(rangeEnd) {
		deltas := dailyDeltas(transactions, r.config.IncludePending)
		for day := anchorDate.AddDate(0, 0, 1); !day.After(rangeEnd); day = day.AddDate(0, 0, 1) {
			if delta, ok := deltas[day.Format(models.DateFormat)]; ok {
				anchor = anchor.Add(delta)
			}
		}
	}

	points, err := Reconstruct(transactions, anchor, start, end, r.config.IncludePending)
	if err != nil {
		return nil, err
	}

	if r.config.Persist {
		if err := r.store.SaveHistoryPoints(ctx, accountID, points); err != nil {
			return nil, errors.StorageError(errors.CodeWriteConflict, "account history", err).
				WithContext("account_id", accountID)
		}
	}

	r.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"days":       len(points),
		"persisted":  r.config.Persist,
	}).Info("Reconstructed balance history")
	return points, nil
}

// dailyDeltas aggregates signed transaction amounts by business date.
// Internal-transfer annotations do not exclude a row here: the money really
// left this account even when it reappeared in a sibling.
func dailyDeltas(transactions []*models.Transaction, includePending bool) map[string]decimal.Decimal {
	deltas := make(map[string]decimal.Decimal)
	for _, tx := range transactions {
		if tx.IsPlaceholder() {
			continue
		}
		if tx.Pending && !includePending {
			continue
		}
		key := tx.DateKey()
		deltas[key] = deltas[key].Add(tx.Amount)
	}
	return deltas
}
