package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go-ledger-reconciliation/internal/models"

	"github.com/shopspring/decimal"

	// Postgres driver registration.
	_ "github.com/lib/pq"
)

// PostgresStore implements Store against a relational schema with four
// tables: accounts, transactions, recurring_transactions and account_history.
// All upserts rely on ON CONFLICT so re-running any engine operation is safe.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against the given DSN and
// verifies connectivity.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const transactionColumns = `transaction_id, account_id, user_id, date, amount, description,
		merchant_name, category, provider, pending, is_internal, internal_match_id, updated_by_rule`

// SaveAccount inserts or overwrites an account row.
func (s *PostgresStore) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (account_id, user_id, name, type, current_balance, balance_as_of)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    name = EXCLUDED.name,
		    type = EXCLUDED.type,
		    current_balance = EXCLUDED.current_balance,
		    balance_as_of = EXCLUDED.balance_as_of
	`

	var balance sql.NullString
	if account.CurrentBalance != nil {
		balance = sql.NullString{String: account.CurrentBalance.String(), Valid: true}
	}
	var asOf sql.NullTime
	if !account.BalanceAsOf.IsZero() {
		asOf = sql.NullTime{Time: account.BalanceAsOf, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		account.AccountID, account.UserID, account.Name, string(account.Type), balance, asOf)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetAccount returns the account with the given id, or ErrNotFound.
func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	query := `
		SELECT account_id, user_id, name, type, current_balance, balance_as_of
		FROM accounts
		WHERE account_id = $1
	`
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccountsByUser returns all accounts owned by the user, ordered by id.
func (s *PostgresStore) ListAccountsByUser(ctx context.Context, userID string) ([]*models.Account, error) {
	query := `
		SELECT account_id, user_id, name, type, current_balance, balance_as_of
		FROM accounts
		WHERE user_id = $1
		ORDER BY account_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// GetTransaction returns the transaction with the given id, or ErrNotFound.
func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// SaveTransaction inserts or overwrites the row keyed by transaction_id.
func (s *PostgresStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (transaction_id) DO UPDATE
		SET account_id = EXCLUDED.account_id,
		    user_id = EXCLUDED.user_id,
		    date = EXCLUDED.date,
		    amount = EXCLUDED.amount,
		    description = EXCLUDED.description,
		    merchant_name = EXCLUDED.merchant_name,
		    category = EXCLUDED.category,
		    provider = EXCLUDED.provider,
		    pending = EXCLUDED.pending,
		    is_internal = EXCLUDED.is_internal,
		    internal_match_id = EXCLUDED.internal_match_id,
		    updated_by_rule = EXCLUDED.updated_by_rule
	`

	_, err := s.db.ExecContext(ctx, query,
		tx.TransactionID, tx.AccountID, tx.UserID, tx.Date, tx.Amount.String(),
		tx.Description, tx.MerchantName, tx.Category, string(tx.Provider), tx.Pending,
		tx.IsInternal, nullString(tx.InternalMatchID), tx.UpdatedByRule)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// ListTransactionsByAccount returns the account's transactions in the window.
func (s *PostgresStore) ListTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date, transaction_id
	`
	return s.listTransactions(ctx, query, accountID, nullTime(from), nullTime(to))
}

// ListTransactionsByUser returns the user's transactions in the window.
func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date, transaction_id
	`
	return s.listTransactions(ctx, query, userID, nullTime(from), nullTime(to))
}

// FindRepresentative returns the oldest transaction matching the key.
func (s *PostgresStore) FindRepresentative(ctx context.Context, key RepresentativeKey) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		  AND LOWER(TRIM(description)) = $2
		  AND amount = $3
		ORDER BY date, transaction_id
		LIMIT 1
	`
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query,
		key.AccountID, key.Description, key.Amount.String()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find representative transaction: %w", err)
	}
	return tx, nil
}

// ClaimInternalMatch atomically marks both transactions as an internal pair.
// Row locks make concurrent claims first-writer-wins.
func (s *PostgresStore) ClaimInternalMatch(ctx context.Context, firstID, secondID string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	// Lock in a stable order to avoid deadlocks between concurrent claims.
	lockFirst, lockSecond := firstID, secondID
	if lockSecond < lockFirst {
		lockFirst, lockSecond = lockSecond, lockFirst
	}

	var matched bool
	for _, id := range []string{lockFirst, lockSecond} {
		var isInternal bool
		err := dbTx.QueryRowContext(ctx,
			`SELECT is_internal FROM transactions WHERE transaction_id = $1 FOR UPDATE`, id,
		).Scan(&isInternal)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock transaction %s: %w", id, err)
		}
		matched = matched || isInternal
	}
	if matched {
		return ErrAlreadyMatched
	}

	update := `UPDATE transactions SET is_internal = TRUE, internal_match_id = $2 WHERE transaction_id = $1`
	if _, err := dbTx.ExecContext(ctx, update, firstID, secondID); err != nil {
		return fmt.Errorf("failed to claim match: %w", err)
	}
	if _, err := dbTx.ExecContext(ctx, update, secondID, firstID); err != nil {
		return fmt.Errorf("failed to claim match: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match claim: %w", err)
	}
	return nil
}

// ClearInternalMatch removes the pairing from the transaction and its
// counterpart.
func (s *PostgresStore) ClearInternalMatch(ctx context.Context, transactionID string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var counterpart sql.NullString
	err = dbTx.QueryRowContext(ctx,
		`SELECT internal_match_id FROM transactions WHERE transaction_id = $1 FOR UPDATE`, transactionID,
	).Scan(&counterpart)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}

	clear := `UPDATE transactions SET is_internal = FALSE, internal_match_id = NULL WHERE transaction_id = $1`
	if _, err := dbTx.ExecContext(ctx, clear, transactionID); err != nil {
		return fmt.Errorf("failed to clear match: %w", err)
	}
	if counterpart.Valid {
		if _, err := dbTx.ExecContext(ctx, clear, counterpart.String); err != nil {
			return fmt.Errorf("failed to clear counterpart match: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match clear: %w", err)
	}
	return nil
}

// UpsertRecurring inserts or overwrites the schedule keyed by its
// representative transaction id.
func (s *PostgresStore) UpsertRecurring(ctx context.Context, rec *models.RecurringTransaction) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO recurring_transactions (transaction_id, account_id, frequency, next_due_date, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO UPDATE
		SET account_id = EXCLUDED.account_id,
		    frequency = EXCLUDED.frequency,
		    next_due_date = EXCLUDED.next_due_date,
		    notes = EXCLUDED.notes
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.TransactionID, rec.AccountID, string(rec.Frequency), rec.NextDueDate, rec.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert recurring transaction: %w", err)
	}
	return nil
}

// GetRecurring returns the schedule keyed by transaction id, or ErrNotFound.
func (s *PostgresStore) GetRecurring(ctx context.Context, transactionID string) (*models.RecurringTransaction, error) {
	query := `
		SELECT transaction_id, account_id, frequency, next_due_date, notes
		FROM recurring_transactions
		WHERE transaction_id = $1
	`
	var rec models.RecurringTransaction
	var frequency string
	err := s.db.QueryRowContext(ctx, query, transactionID).Scan(
		&rec.TransactionID, &rec.AccountID, &frequency, &rec.NextDueDate, &rec.Notes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring transaction: %w", err)
	}
	rec.Frequency = models.Frequency(frequency)
	return &rec, nil
}

// ListRecurringByUser returns all schedules whose accounts belong to the user.
func (s *PostgresStore) ListRecurringByUser(ctx context.Context, userID string) ([]*models.RecurringTransaction, error) {
	query := `
		SELECT r.transaction_id, r.account_id, r.frequency, r.next_due_date, r.notes
		FROM recurring_transactions r
		JOIN accounts a ON a.account_id = r.account_id
		WHERE a.user_id = $1
		ORDER BY r.next_due_date, r.transaction_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring transactions: %w", err)
	}
	defer rows.Close()

	var result []*models.RecurringTransaction
	for rows.Next() {
		var rec models.RecurringTransaction
		var frequency string
		if err := rows.Scan(&rec.TransactionID, &rec.AccountID, &frequency, &rec.NextDueDate, &rec.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan recurring transaction: %w", err)
		}
		rec.Frequency = models.Frequency(frequency)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring transactions: %w", err)
	}
	return result, nil
}

// SaveHistoryPoints overwrites the (account, date) snapshots for the given
// points inside one database transaction.
func (s *PostgresStore) SaveHistoryPoints(ctx context.Context, accountID string, points []models.BalancePoint) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO account_history (account_id, date, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, date) DO UPDATE
		SET balance = EXCLUDED.balance
	`
	for _, point := range points {
		if _, err := dbTx.ExecContext(ctx, query,
			accountID, models.DateOnly(point.Date), point.Balance.String()); err != nil {
			return fmt.Errorf("failed to save history point: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history points: %w", err)
	}
	return nil
}

// ListHistory returns the account's history rows in the window.
func (s *PostgresStore) ListHistory(ctx context.Context, accountID string, from, to time.Time) ([]*models.AccountHistory, error) {
	query := `
		SELECT account_id, date, balance
		FROM account_history
		WHERE account_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date
	`
	rows, err := s.db.QueryContext(ctx, query, accountID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list account history: %w", err)
	}
	defer rows.Close()

	var result []*models.AccountHistory
	for rows.Next() {
		var row models.AccountHistory
		var balance string
		if err := rows.Scan(&row.AccountID, &row.Date, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		row.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("invalid balance in history row: %w", err)
		}
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account history: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) listTransactions(ctx context.Context, query string, args ...interface{}) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var amount, provider string
	var matchID sql.NullString
	err := row.Scan(
		&tx.TransactionID, &tx.AccountID, &tx.UserID, &tx.Date, &amount,
		&tx.Description, &tx.MerchantName, &tx.Category, &provider, &tx.Pending,
		&tx.IsInternal, &matchID, &tx.UpdatedByRule)
	if err != nil {
		return nil, err
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in transaction row: %w", err)
	}
	tx.Provider = models.Provider(provider)
	tx.InternalMatchID = matchID.String
	tx.Date = models.DateOnly(tx.Date)
	return &tx, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var accountType string
	var balance sql.NullString
	var asOf sql.NullTime
	err := row.Scan(&account.AccountID, &account.UserID, &account.Name, &accountType, &balance, &asOf)
	if err != nil {
		return nil, err
	}
	account.Type = models.AccountType(accountType)
	if balance.Valid {
		d, err := decimal.NewFromString(balance.String)
		if err != nil {
			return nil, fmt.Errorf("invalid balance in account row: %w", err)
		}
		account.CurrentBalance = &d
	}
	if asOf.Valid {
		account.BalanceAsOf = models.DateOnly(asOf.Time)
	}
	return &account, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: models.DateOnly(t), Valid: true}
}
