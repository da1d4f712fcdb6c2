// Package models defines the canonical entities of the reconciliation core:
// accounts, ledger transactions, recurring schedules and balance history rows.
//
// All monetary values use decimal arithmetic. Transaction dates are business
// dates, not instants; comparisons throughout the engine operate on the
// calendar day (YYYY-MM-DD), never on wall-clock time.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical business-date layout used across the engine.
const DateFormat = "2006-01-02"

// Provider identifies the source system a transaction was ingested from.
type Provider string

const (
	// ProviderAggregator marks transactions pulled from a bank-aggregator API.
	ProviderAggregator Provider = "aggregator"
	// ProviderCSV marks transactions imported from a user CSV statement.
	ProviderCSV Provider = "csv"
	// ProviderPDF marks transactions extracted from a PDF statement.
	ProviderPDF Provider = "pdf"
	// ProviderManual marks transactions entered by hand.
	ProviderManual Provider = "manual"
	// ProviderPlaceholder marks synthetic rows created by the recurring
	// bridge so a schedule always has a ledger row to reference. Placeholder
	// rows are never treated as real aggregator-sourced events.
	ProviderPlaceholder Provider = "placeholder"
)

// IsValid checks if the provider is one of the known source systems.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderAggregator, ProviderCSV, ProviderPDF, ProviderManual, ProviderPlaceholder:
		return true
	default:
		return false
	}
}

// AccountType classifies an account for sign normalization purposes.
type AccountType string

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeLoan       AccountType = "loan"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeOther      AccountType = "other"
)

// IsLiability reports whether raw provider amounts for this account type
// carry the inverted sign convention (a charge grows the balance owed).
func (at AccountType) IsLiability() bool {
	return at == AccountTypeCredit || at == AccountTypeLoan
}

// IsValid checks if the account type is one of the known classifications.
func (at AccountType) IsValid() bool {
	switch at {
	case AccountTypeDepository, AccountTypeCredit, AccountTypeLoan, AccountTypeInvestment, AccountTypeOther:
		return true
	default:
		return false
	}
}

// Account represents one of the user's financial accounts. The engine only
// reads accounts; balances here act as anchors for reconstruction and
// forecasting, never as derived output.
type Account struct {
	AccountID string      `json:"account_id"`
	UserID    string      `json:"user_id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`

	// CurrentBalance is the last trusted balance reported by the provider.
	// Nil means no anchor is known; reconstruction must refuse to guess.
	CurrentBalance *decimal.Decimal `json:"current_balance,omitempty"`

	// BalanceAsOf is the business date CurrentBalance was observed on.
	BalanceAsOf time.Time `json:"balance_as_of,omitempty"`
}

// Validate performs basic validation on the Account.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.AccountID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid account type: %s", a.Type)
	}
	return nil
}

// Transaction represents one real-world ledger event after normalization.
//
// Amounts are signed so that outflows are negative and inflows positive,
// regardless of the raw provider convention. TransactionID is the global
// idempotency key: re-ingesting the same id merges rather than duplicates.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	UserID        string          `json:"user_id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	MerchantName  string          `json:"merchant_name,omitempty"`
	Category      string          `json:"category,omitempty"`
	Provider      Provider        `json:"provider"`
	Pending       bool            `json:"pending"`

	// IsInternal and InternalMatchID are set only by the internal-transfer
	// detector, always in symmetric pairs: if IsInternal is true,
	// InternalMatchID references a transaction whose own InternalMatchID
	// points back here and whose signed amount is the arithmetic negation.
	IsInternal      bool   `json:"is_internal"`
	InternalMatchID string `json:"internal_match_id,omitempty"`

	// UpdatedByRule is set upstream when a user-defined matching rule
	// overwrote fields. The engine consumes it as already-applied input.
	UpdatedByRule bool `json:"updated_by_rule"`
}

// Validate performs basic validation on the Transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if !t.Provider.IsValid() {
		return fmt.Errorf("invalid provider: %s", t.Provider)
	}
	if t.IsInternal && strings.TrimSpace(t.InternalMatchID) == "" {
		return fmt.Errorf("internal transaction must reference its counterpart")
	}
	return nil
}

// DateKey returns the transaction's business date as a YYYY-MM-DD string.
func (t *Transaction) DateKey() string {
	return t.Date.Format(DateFormat)
}

// IsOutflow reports whether the normalized amount represents money leaving
// the account.
func (t *Transaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// IsPlaceholder reports whether this row was synthesized by the recurring
// bridge rather than observed from a real source.
func (t *Transaction) IsPlaceholder() bool {
	return t.Provider == ProviderPlaceholder
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// String returns a string representation of the Transaction.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Account: %s, Amount: %s, Date: %s}",
		t.TransactionID, t.AccountID, t.Amount.String(), t.DateKey())
}

// MarshalJSON implements custom JSON marshaling so that amounts serialize as
// exact decimal strings and dates as business dates.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: t.Amount.String(),
		Date:   t.Date.Format(DateFormat),
		Alias:  (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.Date, err = ParseBusinessDate(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// Frequency is the categorical cadence of a recurring schedule. Gaps that do
// not land in a known bucket are carried as an approximate N-day cadence
// ("unknown-N-days") rather than discarded.
type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyBiweekly    Frequency = "biweekly"
	FrequencySemimonthly Frequency = "semimonthly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyYearly      Frequency = "yearly"
)

// UnknownFrequency builds the approximate-cadence label for a day gap that
// matches no canonical bucket.
func UnknownFrequency(gapDays int) Frequency {
	return Frequency(fmt.Sprintf("unknown-%d-days", gapDays))
}

// FrequencyFromGap maps a day gap to its canonical frequency label. Buckets
// are ranges, not exact values, so calendar drift (28..31 day months, weekend
// posting delays) still resolves to the intended cadence.
func FrequencyFromGap(gapDays int) Frequency {
	switch {
	case gapDays == 1:
		return FrequencyDaily
	case gapDays >= 6 && gapDays <= 8:
		return FrequencyWeekly
	case gapDays >= 13 && gapDays <= 16:
		return FrequencyBiweekly
	case gapDays >= 27 && gapDays <= 32:
		return FrequencyMonthly
	case gapDays >= 350 && gapDays <= 380:
		return FrequencyYearly
	default:
		return UnknownFrequency(gapDays)
	}
}

// Days returns the step length of the frequency in days. Approximate
// cadences return their embedded gap; anything unparseable falls back to a
// 30-day step, the documented default for unknown frequencies.
func (f Frequency) Days() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	case FrequencySemimonthly:
		return 15
	case FrequencyMonthly:
		return 30
	case FrequencyYearly:
		return 365
	}

	s := string(f)
	if strings.HasPrefix(s, "unknown-") && strings.HasSuffix(s, "-days") {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "unknown-"), "-days"))
		if err == nil && n > 0 {
			return n
		}
	}
	return 30
}

// IsValid checks if the frequency is a canonical label or a well-formed
// approximate cadence.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly,
		FrequencySemimonthly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	s := string(f)
	return strings.HasPrefix(s, "unknown-") && strings.HasSuffix(s, "-days")
}

// RecurringTransaction represents a detected or user-confirmed periodic
// obligation or income. Rows are created and updated in place by the
// recurring bridge; they are superseded, never deleted automatically.
type RecurringTransaction struct {
	// TransactionID references the representative ledger row.
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Frequency     Frequency `json:"frequency"`
	NextDueDate   time.Time `json:"next_due_date"`

	// Notes carries the detector's confidence annotation, e.g.
	// "confidence=0.30". The score is a relative ranking signal derived from
	// occurrence counts, not a calibrated probability.
	Notes string `json:"notes,omitempty"`
}

// Validate performs basic validation on the RecurringTransaction.
func (r *RecurringTransaction) Validate() error {
	if strings.TrimSpace(r.TransactionID) == "" {
		return fmt.Errorf("recurring transaction must reference a ledger row")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if !r.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency: %s", r.Frequency)
	}
	if r.NextDueDate.IsZero() {
		return fmt.Errorf("next due date cannot be zero")
	}
	return nil
}

// AccountHistory is one (account, date) balance snapshot. At most one row
// exists per account and date; values are derived by the reconstructor,
// never hand-edited.
type AccountHistory struct {
	AccountID string          `json:"account_id"`
	Date      time.Time       `json:"date"`
	Balance   decimal.Decimal `json:"balance"`
}

// BalancePoint is one entry of an ordered daily balance series.
type BalancePoint struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
}

// MarshalJSON serializes the point with a business date and decimal string.
func (bp BalancePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Date    string `json:"date"`
		Balance string `json:"balance"`
	}{
		Date:    bp.Date.Format(DateFormat),
		Balance: bp.Balance.String(),
	})
}

// ParseBusinessDate parses a business date from the formats commonly seen in
// statement exports, normalizing to midnight UTC.
func ParseBusinessDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateFormat,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"01/02/2006",
		"02.01.2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return DateOnly(t), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DateOnly truncates a time to its calendar day at midnight UTC.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
// Negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// ParseAmount parses a decimal amount from a raw statement string, tolerating
// currency symbols and thousand separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}
