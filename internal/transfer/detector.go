// Package transfer implements internal-transfer detection: identifying that
// a debit on one account and a credit on another are the two sides of one
// movement of the user's own money, so the pair can be excluded from
// income/expense aggregates without being deleted.
//
// Detection is deterministic and reproducible. Candidates are ranked by date
// proximity with explicit tie-breaks; two runs over the same ledger always
// claim the same pairs. A false positive is acceptable, an irreproducible
// one is not.
package transfer

import (
	"context"
	"sort"
	"time"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"
)

// Config holds configuration parameters for internal-transfer detection.
type Config struct {
	// DateEpsilonDays is the window, in days either side of a transaction's
	// date, within which the offsetting side may post.
	DateEpsilonDays int `json:"date_epsilon_days"`

	// IncludePending allows pending transactions to participate in pairing.
	IncludePending bool `json:"include_pending"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DateEpsilonDays: 1,
		IncludePending:  true,
	}
}

// StrictConfig returns a configuration that only pairs same-day settled
// transactions.
func StrictConfig() *Config {
	return &Config{
		DateEpsilonDays: 0,
		IncludePending:  false,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DateEpsilonDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"date_epsilon_days", c.DateEpsilonDays, nil)
	}
	return nil
}

// Detector pairs offsetting transactions across a user's accounts.
type Detector struct {
	store  ledger.Store
	config *Config
	logger logger.Logger
}

// NewDetector creates a detector bound to a ledger store.
func NewDetector(store ledger.Store, config *Config) (*Detector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		store:  store,
		config: config,
		logger: logger.WithComponent("transfer_detector"),
	}, nil
}

// Outcome describes the result of detection for one transaction.
type Outcome struct {
	Transaction *models.Transaction `json:"transaction"`
	Counterpart *models.Transaction `json:"counterpart,omitempty"`
	Matched     bool                `json:"matched"`
	// Reason explains why no match was made, for observability.
	Reason string `json:"reason,omitempty"`
}

// SweepSummary aggregates a detection pass over a window.
type SweepSummary struct {
	Examined    int `json:"examined"`
	PairsFound  int `json:"pairs_found"`
	AlreadyDone int `json:"already_matched"`
}

// DetectForTransaction attempts to pair one transaction with an offsetting
// transaction on a sibling account. Re-running on an already-matched
// transaction is a no-op.
func (d *Detector) DetectForTransaction(ctx context.Context, tx *models.Transaction) (*Outcome, error) {
	if tx == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transaction", nil, nil)
	}
	if tx.IsInternal {
		return &Outcome{Transaction: tx, Reason: "already matched"}, nil
	}
	if tx.IsPlaceholder() {
		return &Outcome{Transaction: tx, Reason: "placeholder row"}, nil
	}
	if tx.Amount.IsZero() {
		return &Outcome{Transaction: tx, Reason: "zero amount"}, nil
	}
	if tx.Pending && !d.config.IncludePending {
		return &Outcome{Transaction: tx, Reason: "pending excluded"}, nil
	}

	candidates, err := d.collectCandidates(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Insufficient evidence is not an error.
		return &Outcome{Transaction: tx, Reason: "no candidate"}, nil
	}

	rankCandidates(tx, candidates)

	for _, candidate := range candidates {
		err := d.store.ClaimInternalMatch(ctx, tx.TransactionID, candidate.TransactionID)
		if err == ledger.ErrAlreadyMatched {
			// Either this transaction or the candidate was claimed by a
			// concurrent run. If it was this one, the whole call is a no-op;
			// otherwise try the next candidate.
			current, getErr := d.store.GetTransaction(ctx, tx.TransactionID)
			if getErr != nil {
				return nil, errors.StorageError(errors.CodeStoreUnavailable, "transaction", getErr)
			}
			if current.IsInternal {
				return &Outcome{Transaction: current, Reason: "claimed concurrently"}, nil
			}
			continue
		}
		if err != nil {
			return nil, errors.PairingError(errors.CodeMatchConflict, tx.TransactionID, err)
		}

		d.logger.WithFields(logger.Fields{
			"transaction_id": tx.TransactionID,
			"counterpart_id": candidate.TransactionID,
			"amount":         tx.Amount.String(),
		}).Info("Paired internal transfer")

		matched := tx.Clone()
		matched.IsInternal = true
		matched.InternalMatchID = candidate.TransactionID
		counterpart := candidate.Clone()
		counterpart.IsInternal = true
		counterpart.InternalMatchID = tx.TransactionID
		return &Outcome{Transaction: matched, Counterpart: counterpart, Matched: true}, nil
	}

	return &Outcome{Transaction: tx, Reason: "all candidates claimed"}, nil
}

// SweepUser runs detection over every unmatched transaction of a user in the
// window. Idempotent: a second sweep over the same window finds nothing new.
func (d *Detector) SweepUser(ctx context.Context, userID string, from, to time.Time) (*SweepSummary, error) {
	transactions, err := d.store.ListTransactionsByUser(ctx, userID, from, to)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "transactions", err)
	}

	summary := &SweepSummary{}
	for _, tx := range transactions {
		summary.Examined++
		if tx.IsInternal {
			summary.AlreadyDone++
			continue
		}

		// The transaction may have been claimed as a counterpart earlier in
		// this same sweep.
		current, err := d.store.GetTransaction(ctx, tx.TransactionID)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStoreUnavailable, "transaction", err)
		}
		if current.IsInternal {
			summary.AlreadyDone++
			continue
		}

		outcome, err := d.DetectForTransaction(ctx, current)
		if err != nil {
			return nil, err
		}
		if outcome.Matched {
			summary.PairsFound++
		}
	}

	d.logger.WithFields(logger.Fields{
		"user_id":     userID,
		"examined":    summary.Examined,
		"pairs_found": summary.PairsFound,
	}).Info("Transfer sweep completed")
	return summary, nil
}

// collectCandidates scans sibling accounts for unmatched transactions within
// the date epsilon whose signed amount is the exact negation.
func (d *Detector) collectCandidates(ctx context.Context, tx *models.Transaction) ([]*models.Transaction, error) {
	accounts, err := d.store.ListAccountsByUser(ctx, tx.UserID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "accounts", err)
	}

	from := tx.Date.AddDate(0, 0, -d.config.DateEpsilonDays)
	to := tx.Date.AddDate(0, 0, d.config.DateEpsilonDays)
	target := tx.Amount.Neg()

	var candidates []*models.Transaction
	for _, account := range accounts {
		// Never match within the same account.
		if account.AccountID == tx.AccountID {
			continue
		}

		siblings, err := d.store.ListTransactionsByAccount(ctx, account.AccountID, from, to)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStoreUnavailable, "transactions", err)
		}
		for _, sibling := range siblings {
			if sibling.TransactionID == tx.TransactionID {
				continue
			}
			if sibling.IsInternal || sibling.IsPlaceholder() {
				continue
			}
			if sibling.Pending && !d.config.IncludePending {
				continue
			}
			if !sibling.Amount.Equal(target) {
				continue
			}
			candidates = append(candidates, sibling)
		}
	}
	return candidates, nil
}

// rankCandidates orders candidates by closest business date, then smallest
// timestamp gap, then transaction id. The final lexical tie-break makes the
// choice among equally good candidates deterministic rather than arbitrary.
func rankCandidates(tx *models.Transaction, candidates []*models.Transaction) {
	sort.Slice(candidates, func(i, j int) bool {
		di := absInt(models.DaysBetween(tx.Date, candidates[i].Date))
		dj := absInt(models.DaysBetween(tx.Date, candidates[j].Date))
		if di != dj {
			return di < dj
		}

		gi := absDuration(candidates[i].Date.Sub(tx.Date))
		gj := absDuration(candidates[j].Date.Sub(tx.Date))
		if gi != gj {
			return gi < gj
		}

		return candidates[i].TransactionID < candidates[j].TransactionID
	})
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
