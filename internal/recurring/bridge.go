package recurring

import (
	"context"
	"fmt"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"

	"github.com/google/uuid"
)

// BridgeConfig holds configuration parameters for the recurring bridge.
type BridgeConfig struct {
	// DefaultStepDays is the schedule step used when a frequency carries no
	// usable day count.
	DefaultStepDays int `json:"default_step_days"`
}

// DefaultBridgeConfig returns a configuration with sensible defaults.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		DefaultStepDays: 30,
	}
}

// Validate checks if the configuration is valid.
func (c *BridgeConfig) Validate() error {
	if c.DefaultStepDays <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"default_step_days", c.DefaultStepDays, nil)
	}
	return nil
}

// Bridge persists detector candidates as RecurringTransaction rows linked to
// a concrete ledger row. Safe to re-run on every batch: the upsert is keyed
// by the representative transaction id, so repeated application updates in
// place instead of appending.
type Bridge struct {
	store  ledger.Store
	config *BridgeConfig
	logger logger.Logger
}

// NewBridge creates a bridge bound to a ledger store.
func NewBridge(store ledger.Store, config *BridgeConfig) (*Bridge, error) {
	if config == nil {
		config = DefaultBridgeConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Bridge{
		store:  store,
		config: config,
		logger: logger.WithComponent("recurring_bridge"),
	}, nil
}

// BridgeSummary aggregates one bridge application.
type BridgeSummary struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Placeholders int `json:"placeholders"`
}

// Apply upserts one RecurringTransaction per candidate.
func (b *Bridge) Apply(ctx context.Context, candidates []*Candidate) (*BridgeSummary, error) {
	summary := &BridgeSummary{}
	for _, candidate := range candidates {
		if err := b.applyCandidate(ctx, candidate, summary); err != nil {
			return nil, err
		}
	}

	b.logger.WithFields(logger.Fields{
		"created":      summary.Created,
		"updated":      summary.Updated,
		"placeholders": summary.Placeholders,
	}).Info("Recurring bridge applied")
	return summary, nil
}

func (b *Bridge) applyCandidate(ctx context.Context, candidate *Candidate, summary *BridgeSummary) error {
	if candidate.Exemplar == nil {
		return errors.PatternError(errors.CodeNoRepresentative, candidate.Signature, nil)
	}

	step := candidate.Frequency.Days()
	if step <= 0 {
		step = b.config.DefaultStepDays
	}
	nextDue := candidate.LastSeen.AddDate(0, 0, step)

	representative, err := b.resolveRepresentative(ctx, candidate, summary)
	if err != nil {
		return err
	}

	rec := &models.RecurringTransaction{
		TransactionID: representative.TransactionID,
		AccountID:     representative.AccountID,
		Frequency:     candidate.Frequency,
		NextDueDate:   nextDue,
		Notes:         fmt.Sprintf("confidence=%.2f", candidate.Confidence),
	}

	_, err = b.store.GetRecurring(ctx, representative.TransactionID)
	created := err == ledger.ErrNotFound
	if err != nil && err != ledger.ErrNotFound {
		return errors.StorageError(errors.CodeStoreUnavailable, "recurring transaction", err)
	}

	if err := b.store.UpsertRecurring(ctx, rec); err != nil {
		return errors.PatternError(errors.CodeBridgeFailed, candidate.Signature, err)
	}
	if created {
		summary.Created++
	} else {
		summary.Updated++
	}
	return nil
}

// resolveRepresentative finds the ledger row a schedule should reference:
// an existing transaction matching the candidate's composite identity, or a
// synthesized placeholder when no historical match made it into the ledger.
func (b *Bridge) resolveRepresentative(ctx context.Context, candidate *Candidate, summary *BridgeSummary) (*models.Transaction, error) {
	exemplar := candidate.Exemplar
	key := ledger.NewRepresentativeKey(exemplar.AccountID, exemplar.Description, exemplar.Amount)

	representative, err := b.store.FindRepresentative(ctx, key)
	if err == nil {
		return representative, nil
	}
	if err != ledger.ErrNotFound {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "representative transaction", err)
	}

	// No ledger row carries this identity yet. Synthesize a placeholder so
	// the schedule has a stable foreign key; the distinct provider tag keeps
	// it from ever being confused with a real aggregator-sourced event.
	placeholder := exemplar.Clone()
	placeholder.TransactionID = fmt.Sprintf("placeholder-%s", uuid.NewString())
	placeholder.Provider = models.ProviderPlaceholder
	placeholder.Pending = false
	placeholder.IsInternal = false
	placeholder.InternalMatchID = ""

	if err := b.store.SaveTransaction(ctx, placeholder); err != nil {
		return nil, errors.PatternError(errors.CodeBridgeFailed, candidate.Signature, err)
	}
	summary.Placeholders++
	b.logger.WithFields(logger.Fields{
		"transaction_id": placeholder.TransactionID,
		"signature":      candidate.Signature,
	}).Info("Synthesized placeholder representative")
	return placeholder, nil
}
