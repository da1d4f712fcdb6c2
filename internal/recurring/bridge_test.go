package recurring

import (
	"context"
	"strings"
	"testing"
	"time"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func createBridgeStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	store := ledger.NewMemoryStore()
	account := &models.Account{
		AccountID: "acc-1",
		UserID:    "user-1",
		Name:      "Checking",
		Type:      models.AccountTypeDepository,
	}
	if err := store.SaveAccount(context.Background(), account); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	return store
}

func createCandidate(exemplar *models.Transaction, lastSeen time.Time) *Candidate {
	return &Candidate{
		Amount:      exemplar.Amount,
		Signature:   "netflixcom",
		Frequency:   models.FrequencyMonthly,
		GapDays:     30,
		FirstSeen:   lastSeen.AddDate(0, 0, -60),
		LastSeen:    lastSeen,
		Occurrences: 3,
		Confidence:  0.3,
		Exemplar:    exemplar,
	}
}

func TestBridge_CreatesScheduleFromLedgerRow(t *testing.T) {
	ctx := context.Background()
	store := createBridgeStore(t)
	bridge, err := NewBridge(store, nil)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	lastSeen := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	exemplar := createPatternTx("tx-3", lastSeen, -9.99, "Netflix.com")
	store.SaveTransaction(ctx, exemplar)

	summary, err := bridge.Apply(ctx, []*Candidate{createCandidate(exemplar, lastSeen)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if summary.Created != 1 || summary.Placeholders != 0 {
		t.Errorf("Expected 1 created schedule without placeholders, got %+v", summary)
	}

	rec, err := store.GetRecurring(ctx, "tx-3")
	if err != nil {
		t.Fatalf("GetRecurring() error = %v", err)
	}
	if rec.Frequency != models.FrequencyMonthly {
		t.Errorf("Expected monthly frequency, got %s", rec.Frequency)
	}
	wantDue := lastSeen.AddDate(0, 0, 30)
	if !rec.NextDueDate.Equal(wantDue) {
		t.Errorf("Expected next due %s, got %s",
			wantDue.Format(models.DateFormat), rec.NextDueDate.Format(models.DateFormat))
	}
	if rec.Notes != "confidence=0.30" {
		t.Errorf("Expected confidence annotation in notes, got %q", rec.Notes)
	}
}

func TestBridge_ReapplyUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := createBridgeStore(t)
	bridge, _ := NewBridge(store, nil)

	lastSeen := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	exemplar := createPatternTx("tx-3", lastSeen, -9.99, "Netflix.com")
	store.SaveTransaction(ctx, exemplar)
	candidate := createCandidate(exemplar, lastSeen)

	if _, err := bridge.Apply(ctx, []*Candidate{candidate}); err != nil {
		t.Fatalf("Apply() first pass error = %v", err)
	}

	// A month later the pattern has one more occurrence.
	newLast := lastSeen.AddDate(0, 0, 30)
	later := createCandidate(exemplar, newLast)
	later.Occurrences = 4
	later.Confidence = 0.4

	summary, err := bridge.Apply(ctx, []*Candidate{later})
	if err != nil {
		t.Fatalf("Apply() second pass error = %v", err)
	}
	if summary.Created != 0 || summary.Updated != 1 {
		t.Errorf("Expected in-place update, got %+v", summary)
	}

	schedules, _ := store.ListRecurringByUser(ctx, "user-1")
	if len(schedules) != 1 {
		t.Fatalf("Expected exactly one schedule after re-apply, got %d", len(schedules))
	}
	if schedules[0].Notes != "confidence=0.40" {
		t.Errorf("Expected refreshed confidence, got %q", schedules[0].Notes)
	}
	if !schedules[0].NextDueDate.Equal(newLast.AddDate(0, 0, 30)) {
		t.Errorf("Expected advanced due date, got %s", schedules[0].NextDueDate.Format(models.DateFormat))
	}
}

func TestBridge_SynthesizesPlaceholder(t *testing.T) {
	ctx := context.Background()
	store := createBridgeStore(t)
	bridge, _ := NewBridge(store, nil)

	// The exemplar never made it into the ledger (historical import gap).
	lastSeen := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	exemplar := createPatternTx("tx-gone", lastSeen, -9.99, "Netflix.com")

	summary, err := bridge.Apply(ctx, []*Candidate{createCandidate(exemplar, lastSeen)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if summary.Placeholders != 1 || summary.Created != 1 {
		t.Errorf("Expected 1 placeholder and 1 schedule, got %+v", summary)
	}

	txs, _ := store.ListTransactionsByAccount(ctx, "acc-1", time.Time{}, time.Time{})
	if len(txs) != 1 {
		t.Fatalf("Expected 1 synthesized row, got %d", len(txs))
	}
	placeholder := txs[0]
	if !placeholder.IsPlaceholder() {
		t.Errorf("Expected placeholder provider, got %s", placeholder.Provider)
	}
	if !strings.HasPrefix(placeholder.TransactionID, "placeholder-") {
		t.Errorf("Expected placeholder id prefix, got %s", placeholder.TransactionID)
	}
	if !placeholder.Amount.Equal(decimal.NewFromFloat(-9.99)) {
		t.Errorf("Expected exemplar amount on placeholder, got %s", placeholder.Amount)
	}

	// Re-applying finds the placeholder instead of synthesizing another.
	second, err := bridge.Apply(ctx, []*Candidate{createCandidate(exemplar, lastSeen)})
	if err != nil {
		t.Fatalf("Apply() second pass error = %v", err)
	}
	if second.Placeholders != 0 || second.Updated != 1 {
		t.Errorf("Expected placeholder reuse on re-apply, got %+v", second)
	}
	txs, _ = store.ListTransactionsByAccount(ctx, "acc-1", time.Time{}, time.Time{})
	if len(txs) != 1 {
		t.Errorf("Expected no duplicate placeholders, got %d rows", len(txs))
	}
}

func TestBridge_UnknownFrequencyStep(t *testing.T) {
	ctx := context.Background()
	store := createBridgeStore(t)
	bridge, _ := NewBridge(store, nil)

	lastSeen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	exemplar := createPatternTx("tx-storage", lastSeen, -50.00, "Storage Unit")
	store.SaveTransaction(ctx, exemplar)

	candidate := createCandidate(exemplar, lastSeen)
	candidate.Frequency = models.Frequency("unknown-45-days")
	candidate.GapDays = 45

	if _, err := bridge.Apply(ctx, []*Candidate{candidate}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, _ := store.GetRecurring(ctx, "tx-storage")
	if !rec.NextDueDate.Equal(lastSeen.AddDate(0, 0, 45)) {
		t.Errorf("Expected 45-day step for approximate cadence, got %s",
			rec.NextDueDate.Format(models.DateFormat))
	}
}
