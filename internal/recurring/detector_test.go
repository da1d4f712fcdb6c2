package recurring

import (
	"testing"
	"time"

	"go-ledger-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func createPatternTx(id string, date time.Time, amount float64, description string) *models.Transaction {
	return &models.Transaction{
		TransactionID: id,
		AccountID:     "acc-1",
		UserID:        "user-1",
		Date:          date,
		Amount:        decimal.NewFromFloat(amount),
		Description:   description,
		Provider:      models.ProviderAggregator,
	}
}

func TestDetect_TwoOccurrencesAreNotRecurring(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	txs := []*models.Transaction{
		createPatternTx("tx-1", base, -9.99, "Netflix.com"),
		createPatternTx("tx-2", base.AddDate(0, 0, 30), -9.99, "Netflix.com"),
	}

	if candidates := detector.Detect(txs); len(candidates) != 0 {
		t.Errorf("Expected no candidates below the occurrence floor, got %d", len(candidates))
	}
}

func TestDetect_MonthlySubscription(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	// Three charges with calendar drift: gaps of 31 and 29 days.
	txs := []*models.Transaction{
		createPatternTx("tx-1", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), -9.99, "Netflix.com"),
		createPatternTx("tx-2", time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), -9.99, "NETFLIX COM"),
		createPatternTx("tx-3", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), -9.99, "Netflix .com #1234"),
	}

	candidates := detector.Detect(txs)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.Frequency != models.FrequencyMonthly {
		t.Errorf("Expected monthly frequency, got %s", c.Frequency)
	}
	if c.Occurrences != 3 {
		t.Errorf("Expected 3 occurrences, got %d", c.Occurrences)
	}
	if !c.Amount.Equal(decimal.NewFromFloat(-9.99)) {
		t.Errorf("Expected amount -9.99, got %s", c.Amount)
	}
	if c.Exemplar == nil || c.Exemplar.TransactionID != "tx-3" {
		t.Errorf("Expected most recent transaction as exemplar, got %+v", c.Exemplar)
	}
	if c.Confidence != 0.3 {
		t.Errorf("Expected confidence 0.3 at 3 occurrences, got %.2f", c.Confidence)
	}
}

func TestDetect_SeparatesAmountsAndMerchants(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []*models.Transaction
	for i := 0; i < 3; i++ {
		date := base.AddDate(0, 0, i*30)
		txs = append(txs,
			createPatternTx(string(rune('a'+i))+"-netflix", date, -9.99, "Netflix.com"),
			createPatternTx(string(rune('a'+i))+"-spotify", date, -10.99, "Spotify AB"),
			createPatternTx(string(rune('a'+i))+"-gym", date, -9.99, "City Gym"),
		)
	}

	candidates := detector.Detect(txs)
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 separate candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.Occurrences != 3 {
			t.Errorf("Candidate %s: expected 3 occurrences, got %d", c.Signature, c.Occurrences)
		}
	}
}

func TestDetect_SameDayDuplicatesDoNotBreakCadence(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	txs := []*models.Transaction{
		createPatternTx("tx-1", base, -9.99, "Netflix.com"),
		createPatternTx("tx-1b", base, -9.99, "Netflix.com"),
		createPatternTx("tx-2", base.AddDate(0, 0, 30), -9.99, "Netflix.com"),
		createPatternTx("tx-3", base.AddDate(0, 0, 60), -9.99, "Netflix.com"),
	}

	candidates := detector.Detect(txs)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Frequency != models.FrequencyMonthly {
		t.Errorf("Expected monthly frequency despite same-day duplicate, got %s", candidates[0].Frequency)
	}
	if candidates[0].Occurrences != 4 {
		t.Errorf("Expected duplicates to count toward occurrences, got %d", candidates[0].Occurrences)
	}
}

func TestDetect_IgnoresPlaceholders(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	var txs []*models.Transaction
	for i := 0; i < 3; i++ {
		tx := createPatternTx(string(rune('a'+i)), base.AddDate(0, 0, i*30), -9.99, "Netflix.com")
		tx.Provider = models.ProviderPlaceholder
		txs = append(txs, tx)
	}

	if candidates := detector.Detect(txs); len(candidates) != 0 {
		t.Errorf("Expected placeholder rows to be excluded, got %d candidates", len(candidates))
	}
}

func TestDetect_UnknownCadenceIsCarried(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []*models.Transaction{
		createPatternTx("tx-1", base, -50.00, "Storage Unit"),
		createPatternTx("tx-2", base.AddDate(0, 0, 45), -50.00, "Storage Unit"),
		createPatternTx("tx-3", base.AddDate(0, 0, 90), -50.00, "Storage Unit"),
	}

	candidates := detector.Detect(txs)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Frequency != models.Frequency("unknown-45-days") {
		t.Errorf("Expected unknown-45-days frequency, got %s", candidates[0].Frequency)
	}
	if candidates[0].Frequency.Days() != 45 {
		t.Errorf("Expected 45-day step, got %d", candidates[0].Frequency.Days())
	}
}

func TestDetect_ConfidenceClamped(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []*models.Transaction
	for i := 0; i < 15; i++ {
		txs = append(txs, createPatternTx(
			time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i*7).Format("tx-2006-01-02"),
			base.AddDate(0, 0, i*7), -12.00, "Weekly Cleaner"))
	}

	candidates := detector.Detect(txs)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Confidence != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %.2f", candidates[0].Confidence)
	}
	if candidates[0].Frequency != models.FrequencyWeekly {
		t.Errorf("Expected weekly frequency, got %s", candidates[0].Frequency)
	}
}

func TestSignature_Normalization(t *testing.T) {
	detector, _ := NewDetector(nil, nil)

	a := detector.Signature("Netflix.com")
	b := detector.Signature("NETFLIX COM")
	c := detector.Signature("Netflix .com #1234")
	if a != b || b != c {
		t.Errorf("Expected punctuation and case drift to collapse: %q %q %q", a, b, c)
	}

	if detector.Signature("Spotify AB") == a {
		t.Error("Expected distinct merchants to keep distinct signatures")
	}

	long := detector.Signature("A Very Long Merchant Name With Store Number 4471")
	if len(long) != 16 {
		t.Errorf("Expected signature truncated to 16 characters, got %d", len(long))
	}
}

func TestDetectorConfig_Validate(t *testing.T) {
	bad := &DetectorConfig{MinOccurrences: 1, SignatureLength: 16, AmountPrecision: 2}
	if err := bad.Validate(); err == nil {
		t.Error("Expected min occurrences below 2 to be rejected")
	}
	if err := DefaultDetectorConfig().Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}
