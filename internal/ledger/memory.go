package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-ledger-reconciliation/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the test suite and
// the CLI's offline mode, and doubles as the reference implementation for the
// concurrency contract: match claims are first-writer-wins under one lock.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	recurring    map[string]*models.RecurringTransaction
	// history is keyed by account id, then business date.
	history map[string]map[string]*models.AccountHistory
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
		recurring:    make(map[string]*models.RecurringTransaction),
		history:      make(map[string]map[string]*models.AccountHistory),
	}
}

// SaveAccount inserts or overwrites an account.
func (s *MemoryStore) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *account
	s.accounts[account.AccountID] = &c
	return nil
}

// GetAccount returns the account with the given id, or ErrNotFound.
func (s *MemoryStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *account
	return &c, nil
}

// ListAccountsByUser returns all accounts owned by the user, ordered by id.
func (s *MemoryStore) ListAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []*models.Account
	for _, account := range s.accounts {
		if account.UserID == userID {
			c := *account
			accounts = append(accounts, &c)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}

// GetTransaction returns the transaction with the given id, or ErrNotFound.
func (s *MemoryStore) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.Clone(), nil
}

// SaveTransaction inserts or overwrites the row keyed by TransactionID.
func (s *MemoryStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.TransactionID] = tx.Clone()
	return nil
}

// ListTransactionsByAccount returns the account's transactions in the window,
// ordered by date then id.
func (s *MemoryStore) ListTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && inRange(tx.Date, from, to) {
			result = append(result, tx.Clone())
		}
	}
	sortTransactions(result)
	return result, nil
}

// ListTransactionsByUser returns the user's transactions across all accounts
// in the window, ordered by date then id.
func (s *MemoryStore) ListTransactionsByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID && inRange(tx.Date, from, to) {
			result = append(result, tx.Clone())
		}
	}
	sortTransactions(result)
	return result, nil
}

// FindRepresentative returns the oldest transaction matching the composite
// key, or ErrNotFound.
func (s *MemoryStore) FindRepresentative(ctx context.Context, key RepresentativeKey) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*models.Transaction
	for _, tx := range s.transactions {
		if key.Matches(tx) {
			candidates = append(candidates, tx)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sortTransactions(candidates)
	return candidates[0].Clone(), nil
}

// ClaimInternalMatch atomically marks both transactions as an internal pair.
func (s *MemoryStore) ClaimInternalMatch(ctx context.Context, firstID, secondID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, ok := s.transactions[firstID]
	if !ok {
		return ErrNotFound
	}
	second, ok := s.transactions[secondID]
	if !ok {
		return ErrNotFound
	}

	// First writer wins: a concurrent claim on either side makes this a no-op
	// for the caller.
	if first.IsInternal || second.IsInternal {
		return ErrAlreadyMatched
	}

	first.IsInternal = true
	first.InternalMatchID = second.TransactionID
	second.IsInternal = true
	second.InternalMatchID = first.TransactionID
	return nil
}

// ClearInternalMatch removes the pairing from the transaction and its
// counterpart. Clearing an unmatched transaction is a no-op.
func (s *MemoryStore) ClearInternalMatch(ctx context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return ErrNotFound
	}
	if !tx.IsInternal {
		return nil
	}

	if counterpart, ok := s.transactions[tx.InternalMatchID]; ok {
		counterpart.IsInternal = false
		counterpart.InternalMatchID = ""
	}
	tx.IsInternal = false
	tx.InternalMatchID = ""
	return nil
}

// UpsertRecurring inserts or overwrites the schedule keyed by its
// representative transaction id.
func (s *MemoryStore) UpsertRecurring(ctx context.Context, rec *models.RecurringTransaction) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rec
	s.recurring[rec.TransactionID] = &c
	return nil
}

// GetRecurring returns the schedule keyed by transaction id, or ErrNotFound.
func (s *MemoryStore) GetRecurring(ctx context.Context, transactionID string) (*models.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recurring[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

// ListRecurringByUser returns all schedules whose accounts belong to the
// user, ordered by next due date then transaction id.
func (s *MemoryStore) ListRecurringByUser(ctx context.Context, userID string) ([]*models.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.RecurringTransaction
	for _, rec := range s.recurring {
		account, ok := s.accounts[rec.AccountID]
		if !ok || account.UserID != userID {
			continue
		}
		c := *rec
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextDueDate.Equal(result[j].NextDueDate) {
			return result[i].NextDueDate.Before(result[j].NextDueDate)
		}
		return result[i].TransactionID < result[j].TransactionID
	})
	return result, nil
}

// SaveHistoryPoints overwrites the (account, date) snapshots for the given
// points. Re-running reconstruction over the same range produces identical
// rows, never duplicates.
func (s *MemoryStore) SaveHistoryPoints(ctx context.Context, accountID string, points []models.BalancePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.history[accountID]
	if !ok {
		rows = make(map[string]*models.AccountHistory)
		s.history[accountID] = rows
	}
	for _, point := range points {
		date := models.DateOnly(point.Date)
		rows[date.Format(models.DateFormat)] = &models.AccountHistory{
			AccountID: accountID,
			Date:      date,
			Balance:   point.Balance,
		}
	}
	return nil
}

// ListHistory returns the account's history rows in the window, ordered by
// date ascending.
func (s *MemoryStore) ListHistory(ctx context.Context, accountID string, from, to time.Time) ([]*models.AccountHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AccountHistory
	for _, row := range s.history[accountID] {
		if inRange(row.Date, from, to) {
			c := *row
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func sortTransactions(txs []*models.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].TransactionID < txs[j].TransactionID
	})
}
