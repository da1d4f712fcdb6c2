package ingest

import (
	"context"
	"fmt"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"
)

// NormalizerConfig holds configuration parameters for batch normalization.
type NormalizerConfig struct {
	// ClearStaleMatches controls whether re-ingesting a transaction with a
	// materially changed amount or date invalidates an existing internal
	// match. When set, both sides of the pair are cleared and left for the
	// next detection pass to re-validate.
	ClearStaleMatches bool `json:"clear_stale_matches"`
}

// DefaultNormalizerConfig returns a configuration with sensible defaults.
func DefaultNormalizerConfig() *NormalizerConfig {
	return &NormalizerConfig{
		ClearStaleMatches: true,
	}
}

// Normalizer converts raw payload batches into canonical ledger rows and
// applies them idempotently: re-applying the same batch produces no new rows
// and no drift in derived fields.
type Normalizer struct {
	store  ledger.Store
	config *NormalizerConfig
	logger logger.Logger
}

// NewNormalizer creates a normalizer bound to a ledger store.
func NewNormalizer(store ledger.Store, config *NormalizerConfig) *Normalizer {
	if config == nil {
		config = DefaultNormalizerConfig()
	}
	return &Normalizer{
		store:  store,
		config: config,
		logger: logger.WithComponent("normalizer"),
	}
}

// BatchResult summarizes one batch application.
type BatchResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`

	// MatchesCleared counts internal-transfer pairings invalidated by
	// material changes to a re-ingested row.
	MatchesCleared int `json:"matches_cleared"`

	// Transactions holds the rows as persisted, in batch order, for
	// downstream detection passes.
	Transactions []*models.Transaction `json:"-"`

	// Errors holds one entry per skipped malformed record. A non-empty list
	// does not mean the batch failed; well-formed records were applied.
	Errors []error `json:"-"`
}

// IngestBatch normalizes and applies a batch of raw payloads against one
// account. Malformed records are isolated, logged and skipped; one bad
// record never aborts the batch.
func (n *Normalizer) IngestBatch(ctx context.Context, account *models.Account, payloads []Payload) (*BatchResult, error) {
	if account == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "account", nil, nil)
	}
	if err := account.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "account", account.AccountID, err)
	}

	log := n.logger.WithFields(logger.Fields{
		"account_id": account.AccountID,
		"batch_size": len(payloads),
	})
	log.Info("Applying transaction batch")

	result := &BatchResult{}
	for i, payload := range payloads {
		tx, err := payload.toTransaction(account)
		if err != nil {
			log.WithError(err).WithField("index", i).Warn("Skipping malformed record")
			result.Skipped++
			result.Errors = append(result.Errors, errors.IngestError(
				errors.CodeMalformedPayload,
				fmt.Sprintf("record %d from %s", i, payload.Source()),
				err,
			))
			continue
		}

		if err := n.upsert(ctx, tx, result); err != nil {
			return nil, err
		}
	}

	log.WithFields(logger.Fields{
		"inserted":        result.Inserted,
		"updated":         result.Updated,
		"skipped":         result.Skipped,
		"matches_cleared": result.MatchesCleared,
	}).Info("Batch applied")
	return result, nil
}

// upsert applies one canonical row with merge semantics: insert when absent,
// otherwise overwrite the mutable fields while preserving detector
// annotations, unless the change is material enough to invalidate them.
func (n *Normalizer) upsert(ctx context.Context, incoming *models.Transaction, result *BatchResult) error {
	existing, err := n.store.GetTransaction(ctx, incoming.TransactionID)
	if err == ledger.ErrNotFound {
		if err := n.store.SaveTransaction(ctx, incoming); err != nil {
			return errors.StorageError(errors.CodeWriteConflict, "transaction", err).
				WithContext("transaction_id", incoming.TransactionID)
		}
		result.Inserted++
		result.Transactions = append(result.Transactions, incoming)
		return nil
	}
	if err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, "transaction", err)
	}

	stale := n.config.ClearStaleMatches && existing.IsInternal &&
		(!existing.Amount.Equal(incoming.Amount) || !existing.Date.Equal(incoming.Date))
	if stale {
		// The counterpart no longer offsets this row; clear both sides and
		// let the next detection pass re-pair if still valid.
		if err := n.store.ClearInternalMatch(ctx, existing.TransactionID); err != nil {
			return errors.StorageError(errors.CodeWriteConflict, "internal match", err).
				WithContext("transaction_id", existing.TransactionID)
		}
		existing.IsInternal = false
		existing.InternalMatchID = ""
		result.MatchesCleared++
		n.logger.WithField("transaction_id", existing.TransactionID).
			Info("Cleared stale internal match on re-ingest")
	}

	merged := existing.Clone()
	merged.AccountID = incoming.AccountID
	merged.UserID = incoming.UserID
	merged.Date = incoming.Date
	merged.Amount = incoming.Amount
	merged.Description = incoming.Description
	merged.Category = incoming.Category
	merged.Pending = incoming.Pending
	merged.Provider = incoming.Provider
	if incoming.MerchantName != "" {
		merged.MerchantName = incoming.MerchantName
	}

	if err := n.store.SaveTransaction(ctx, merged); err != nil {
		return errors.StorageError(errors.CodeWriteConflict, "transaction", err).
			WithContext("transaction_id", merged.TransactionID)
	}
	result.Updated++
	result.Transactions = append(result.Transactions, merged)
	return nil
}
