// Package recurring implements recurring-pattern detection and its
// persistence bridge. The detector is read-only: it groups ledger
// transactions by amount and description signature, measures periodicity
// from day gaps, and emits scored candidates. The bridge translates those
// candidates into persisted RecurringTransaction rows.
package recurring

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// DetectorConfig holds configuration parameters for pattern detection.
type DetectorConfig struct {
	// MinOccurrences is the minimum group size before a pattern is
	// considered recurring. Smaller groups are insufficient evidence, not
	// errors.
	MinOccurrences int `json:"min_occurrences"`

	// SignatureLength is the prefix length of the normalized description
	// signature. Long enough to separate merchants, short enough to absorb
	// trailing store numbers and reference codes.
	SignatureLength int `json:"signature_length"`

	// AmountPrecision is the number of decimal places amounts are rounded
	// to when forming the grouping key.
	AmountPrecision int `json:"amount_precision"`
}

// DefaultDetectorConfig returns a configuration with sensible defaults.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		MinOccurrences:  3,
		SignatureLength: 16,
		AmountPrecision: 2,
	}
}

// Validate checks if the configuration is valid.
func (c *DetectorConfig) Validate() error {
	if c.MinOccurrences < 2 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"min_occurrences", c.MinOccurrences, nil).
			WithSuggestion("a single occurrence can never establish a cadence; use at least 2")
	}
	if c.SignatureLength <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"signature_length", c.SignatureLength, nil)
	}
	if c.AmountPrecision < 0 || c.AmountPrecision > 10 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"amount_precision", c.AmountPrecision, nil)
	}
	return nil
}

// Candidate is one detected recurring pattern.
type Candidate struct {
	// Amount is the rounded amount shared by the group.
	Amount decimal.Decimal `json:"amount"`
	// Signature is the normalized description signature of the group.
	Signature string `json:"signature"`
	// Frequency is the canonical cadence label derived from the modal gap.
	Frequency models.Frequency `json:"frequency"`
	// GapDays is the modal day gap the frequency was derived from.
	GapDays     int       `json:"gap_days"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Occurrences int       `json:"occurrences"`

	// Confidence grows with occurrence count (occurrences/10, clamped to
	// 1.0). A relative ranking signal, not a calibrated probability.
	Confidence float64 `json:"confidence"`

	// Exemplar is the most recent transaction of the group; the bridge uses
	// it to resolve or synthesize the representative ledger row.
	Exemplar *models.Transaction `json:"-"`
}

// Detector finds repeating transaction patterns in a ledger window.
type Detector struct {
	store  ledger.Store
	config *DetectorConfig
	logger logger.Logger
}

// NewDetector creates a detector bound to a ledger store.
func NewDetector(store ledger.Store, config *DetectorConfig) (*Detector, error) {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		store:  store,
		config: config,
		logger: logger.WithComponent("recurring_detector"),
	}, nil
}

// DetectForUser runs detection over the user's ledger window. Zero-valued
// bounds mean unbounded history.
func (d *Detector) DetectForUser(ctx context.Context, userID string, from, to time.Time) ([]*Candidate, error) {
	transactions, err := d.store.ListTransactionsByUser(ctx, userID, from, to)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "transactions", err)
	}

	candidates := d.Detect(transactions)
	d.logger.WithFields(logger.Fields{
		"user_id":      userID,
		"transactions": len(transactions),
		"candidates":   len(candidates),
	}).Info("Recurring detection completed")
	return candidates, nil
}

// Detect groups transactions and emits one candidate per group that repeats
// with a measurable cadence. Pure and read-only; the ledger is never
// mutated.
func (d *Detector) Detect(transactions []*models.Transaction) []*Candidate {
	type group struct {
		amount decimal.Decimal
		txs    []*models.Transaction
	}

	groups := make(map[string]*group)
	var order []string
	for _, tx := range transactions {
		if tx.IsPlaceholder() {
			continue
		}
		rounded := tx.Amount.Round(int32(d.config.AmountPrecision))
		key := rounded.String() + "|" + d.Signature(tx.Description)
		g, ok := groups[key]
		if !ok {
			g = &group{amount: rounded}
			groups[key] = g
			order = append(order, key)
		}
		g.txs = append(g.txs, tx)
	}
	sort.Strings(order)

	var candidates []*Candidate
	for _, key := range order {
		g := groups[key]
		if candidate := d.evaluateGroup(key, g.amount, g.txs); candidate != nil {
			candidates = append(candidates, candidate)
		}
	}
	return candidates
}

// evaluateGroup measures one group's periodicity. Returns nil when the group
// is insufficient evidence.
func (d *Detector) evaluateGroup(key string, amount decimal.Decimal, txs []*models.Transaction) *Candidate {
	if len(txs) < d.config.MinOccurrences {
		return nil
	}

	// Gaps are measured between distinct business dates; same-day duplicates
	// contribute to the occurrence count but not to the cadence.
	dateSet := make(map[string]time.Time)
	for _, tx := range txs {
		dateSet[tx.DateKey()] = models.DateOnly(tx.Date)
	}
	dates := make([]time.Time, 0, len(dateSet))
	for _, date := range dateSet {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) < 2 {
		return nil
	}

	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, models.DaysBetween(dates[i-1], dates[i]))
	}

	modalGap := modalGap(gaps)

	sorted := make([]*models.Transaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].TransactionID < sorted[j].TransactionID
	})
	exemplar := sorted[len(sorted)-1].Clone()

	confidence := float64(len(txs)) / 10.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	parts := strings.SplitN(key, "|", 2)
	return &Candidate{
		Amount:      amount,
		Signature:   parts[1],
		Frequency:   models.FrequencyFromGap(modalGap),
		GapDays:     modalGap,
		FirstSeen:   dates[0],
		LastSeen:    dates[len(dates)-1],
		Occurrences: len(txs),
		Confidence:  confidence,
		Exemplar:    exemplar,
	}
}

// Signature normalizes a merchant description into the grouping signature:
// non-alphanumeric characters stripped, lower-cased, truncated to the
// configured prefix length. Absorbs store numbers and punctuation drift
// while keeping distinct merchants apart.
func (d *Detector) Signature(description string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(description) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
		if b.Len() >= d.config.SignatureLength {
			break
		}
	}
	return b.String()
}

// modalGap returns the statistical mode of the gap list. When several gaps
// share the highest count the smallest wins, an explicit tie-break rather
// than an exception.
func modalGap(gaps []int) int {
	counts := make(map[int]int)
	for _, gap := range gaps {
		counts[gap]++
	}

	best, bestCount := 0, 0
	for gap, count := range counts {
		if count > bestCount || (count == bestCount && gap < best) {
			best, bestCount = gap, count
		}
	}
	return best
}
