// Package engine orchestrates the reconciliation pipeline: payload
// ingestion, internal-transfer detection, recurring-pattern detection and
// the recurring bridge, in that order. Each stage is independently
// idempotent, so the engine as a whole can be re-run over the same inputs
// without drift.
package engine

import (
	"context"
	"time"

	"go-ledger-reconciliation/internal/ingest"
	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/internal/recurring"
	"go-ledger-reconciliation/internal/transfer"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"
)

// Config aggregates per-stage configuration for the pipeline.
type Config struct {
	Normalizer *ingest.NormalizerConfig  `json:"normalizer"`
	Transfer   *transfer.Config          `json:"transfer"`
	Recurring  *recurring.DetectorConfig `json:"recurring"`
	Bridge     *recurring.BridgeConfig   `json:"bridge"`
}

// DefaultConfig returns a configuration with sensible per-stage defaults.
func DefaultConfig() *Config {
	return &Config{
		Normalizer: ingest.DefaultNormalizerConfig(),
		Transfer:   transfer.DefaultConfig(),
		Recurring:  recurring.DefaultDetectorConfig(),
		Bridge:     recurring.DefaultBridgeConfig(),
	}
}

// Engine runs the full reconciliation pipeline against one ledger store.
type Engine struct {
	store      ledger.Store
	normalizer *ingest.Normalizer
	transfers  *transfer.Detector
	patterns   *recurring.Detector
	bridge     *recurring.Bridge
	logger     logger.Logger
}

// New creates an engine with all pipeline stages wired to the store.
func New(store ledger.Store, config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	transfers, err := transfer.NewDetector(store, config.Transfer)
	if err != nil {
		return nil, err
	}
	patterns, err := recurring.NewDetector(store, config.Recurring)
	if err != nil {
		return nil, err
	}
	bridge, err := recurring.NewBridge(store, config.Bridge)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      store,
		normalizer: ingest.NewNormalizer(store, config.Normalizer),
		transfers:  transfers,
		patterns:   patterns,
		bridge:     bridge,
		logger:     logger.WithComponent("engine"),
	}, nil
}

// SweepResult aggregates the outcome of one pipeline run.
type SweepResult struct {
	Ingest    *ingest.BatchResult      `json:"ingest,omitempty"`
	Transfers *transfer.SweepSummary   `json:"transfers"`
	Patterns  []*recurring.Candidate   `json:"patterns"`
	Bridge    *recurring.BridgeSummary `json:"bridge"`
	Duration  time.Duration            `json:"duration"`
}

// ProcessBatch ingests a payload batch for one account, then runs detection
// and bridging over the owning user's whole ledger. The detection window is
// unbounded: a new row can pair with or extend patterns from any point in
// history.
func (e *Engine) ProcessBatch(ctx context.Context, accountID string, payloads []ingest.Payload) (*SweepResult, error) {
	started := time.Now()

	account, err := e.store.GetAccount(ctx, accountID)
	if err == ledger.ErrNotFound {
		return nil, errors.StorageError(errors.CodeNotFound, "account", err).
			WithContext("account_id", accountID)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "account", err)
	}

	batch, err := e.normalizer.IngestBatch(ctx, account, payloads)
	if err != nil {
		return nil, err
	}

	result, err := e.SweepUser(ctx, account.UserID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	result.Ingest = batch
	result.Duration = time.Since(started)

	e.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"inserted":   batch.Inserted,
		"updated":    batch.Updated,
		"skipped":    batch.Skipped,
		"duration":   result.Duration.String(),
	}).Info("Batch processed")
	return result, nil
}

// SweepUser runs detection and bridging, without ingestion, over a user's
// ledger window.
func (e *Engine) SweepUser(ctx context.Context, userID string, from, to time.Time) (*SweepResult, error) {
	started := time.Now()

	transfers, err := e.transfers.SweepUser(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	candidates, err := e.patterns.DetectForUser(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	bridged, err := e.bridge.Apply(ctx, candidates)
	if err != nil {
		return nil, err
	}

	return &SweepResult{
		Transfers: transfers,
		Patterns:  candidates,
		Bridge:    bridged,
		Duration:  time.Since(started),
	}, nil
}

// Schedules returns the user's recurring schedules ordered by next due date.
func (e *Engine) Schedules(ctx context.Context, userID string) ([]*models.RecurringTransaction, error) {
	schedules, err := e.store.ListRecurringByUser(ctx, userID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "recurring schedules", err)
	}
	return schedules, nil
}
