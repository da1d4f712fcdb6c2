// Package ledger defines the persistence boundary of the reconciliation
// engine. The engine only ever writes transaction rows, internal-transfer
// annotations, recurring schedules and derived history rows; everything else
// is read-only. Two implementations exist: an in-memory store used by tests
// and the CLI, and a Postgres store for production wiring.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-ledger-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyMatched is returned by ClaimInternalMatch when either side
	// of the pair already carries an internal match.
	ErrAlreadyMatched = errors.New("transaction already matched")
)

// RepresentativeKey is the composite identity used to resolve the ledger row
// that represents a recurring pattern: case-insensitive description plus
// amount plus account. Formalized as a type so lookups cannot drift into ad
// hoc string concatenation.
type RepresentativeKey struct {
	AccountID   string
	Description string
	Amount      decimal.Decimal
}

// NewRepresentativeKey builds a key with the description folded for
// case-insensitive comparison.
func NewRepresentativeKey(accountID, description string, amount decimal.Decimal) RepresentativeKey {
	return RepresentativeKey{
		AccountID:   accountID,
		Description: strings.ToLower(strings.TrimSpace(description)),
		Amount:      amount,
	}
}

// Matches reports whether a transaction satisfies the key.
func (k RepresentativeKey) Matches(tx *models.Transaction) bool {
	return tx.AccountID == k.AccountID &&
		tx.Amount.Equal(k.Amount) &&
		strings.ToLower(strings.TrimSpace(tx.Description)) == k.Description
}

// Store is the transactional ledger collaborator. Zero-valued from/to times
// mean an unbounded range end. List results are ordered by date ascending,
// then transaction id, so detection passes are reproducible.
type Store interface {
	// Accounts (read side plus seeding; the engine never derives balances
	// into account rows).
	SaveAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error)

	// Transactions.
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	// SaveTransaction inserts or overwrites the row keyed by TransactionID.
	// Merge semantics live in the normalizer; the store is last-writer-wins.
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	ListTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]*models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.Transaction, error)
	// FindRepresentative returns the oldest transaction matching the key,
	// or ErrNotFound.
	FindRepresentative(ctx context.Context, key RepresentativeKey) (*models.Transaction, error)

	// Internal-transfer annotations.
	//
	// ClaimInternalMatch atomically marks both transactions as an internal
	// pair (both-or-neither). It returns ErrAlreadyMatched when a concurrent
	// run claimed either side first; callers treat that as a no-op.
	ClaimInternalMatch(ctx context.Context, firstID, secondID string) error
	// ClearInternalMatch removes the pairing from the given transaction and
	// from its counterpart. Clearing an unmatched transaction is a no-op.
	ClearInternalMatch(ctx context.Context, transactionID string) error

	// Recurring schedules, upserted by representative transaction id.
	UpsertRecurring(ctx context.Context, rec *models.RecurringTransaction) error
	GetRecurring(ctx context.Context, transactionID string) (*models.RecurringTransaction, error)
	ListRecurringByUser(ctx context.Context, userID string) ([]*models.RecurringTransaction, error)

	// Account history: one row per (account, date), overwritten on re-run.
	SaveHistoryPoints(ctx context.Context, accountID string, points []models.BalancePoint) error
	ListHistory(ctx context.Context, accountID string, from, to time.Time) ([]*models.AccountHistory, error)
}

// inRange reports whether a date falls inside the [from, to] window, where
// zero bounds are open.
func inRange(date, from, to time.Time) bool {
	if !from.IsZero() && date.Before(models.DateOnly(from)) {
		return false
	}
	if !to.IsZero() && date.After(models.DateOnly(to)) {
		return false
	}
	return true
}
