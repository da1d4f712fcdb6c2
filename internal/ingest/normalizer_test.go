package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func createTestAccount(accountID string, accountType models.AccountType) *models.Account {
	return &models.Account{
		AccountID: accountID,
		UserID:    "user-1",
		Name:      "Test " + accountID,
		Type:      accountType,
	}
}

func TestNormalizeAmount(t *testing.T) {
	raw := decimal.NewFromFloat(45.00)

	if got := NormalizeAmount(raw, models.AccountTypeDepository); !got.Equal(raw) {
		t.Errorf("Expected depository amount unchanged, got %s", got)
	}
	if got := NormalizeAmount(raw, models.AccountTypeCredit); !got.Equal(raw.Neg()) {
		t.Errorf("Expected credit amount inverted, got %s", got)
	}
	if got := NormalizeAmount(raw.Neg(), models.AccountTypeLoan); !got.Equal(raw) {
		t.Errorf("Expected loan amount inverted, got %s", got)
	}
}

func TestFingerprintID_Deterministic(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromFloat(-12.34)

	a := fingerprintID(models.ProviderCSV, "acc-1", date, amount, "Coffee Shop")
	b := fingerprintID(models.ProviderCSV, "acc-1", date, amount, "  COFFEE SHOP ")
	if a != b {
		t.Errorf("Expected description folding to produce the same id: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "csv-") {
		t.Errorf("Expected provider-prefixed id, got %s", a)
	}

	c := fingerprintID(models.ProviderCSV, "acc-2", date, amount, "Coffee Shop")
	if a == c {
		t.Error("Expected different accounts to produce different ids")
	}
	d := fingerprintID(models.ProviderPDF, "acc-1", date, amount, "Coffee Shop")
	if a == d {
		t.Error("Expected different providers to produce different ids")
	}
}

func TestIngestBatch_InsertAndIdempotentReapply(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	normalizer := NewNormalizer(store, nil)
	account := createTestAccount("acc-1", models.AccountTypeDepository)

	payloads := []Payload{
		&CSVPayload{Date: "2026-01-10", Amount: "-45.00", Description: "Grocery Store"},
		&CSVPayload{Date: "2026-01-11", Amount: "2500.00", Description: "Payroll"},
	}

	first, err := normalizer.IngestBatch(ctx, account, payloads)
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if first.Inserted != 2 || first.Updated != 0 {
		t.Errorf("Expected 2 inserts on first apply, got inserted=%d updated=%d", first.Inserted, first.Updated)
	}

	second, err := normalizer.IngestBatch(ctx, account, payloads)
	if err != nil {
		t.Fatalf("IngestBatch() second apply error = %v", err)
	}
	if second.Inserted != 0 || second.Updated != 2 {
		t.Errorf("Expected 0 inserts on re-apply, got inserted=%d updated=%d", second.Inserted, second.Updated)
	}

	txs, _ := store.ListTransactionsByAccount(ctx, "acc-1", time.Time{}, time.Time{})
	if len(txs) != 2 {
		t.Errorf("Expected 2 rows after re-apply, got %d", len(txs))
	}
}

func TestIngestBatch_MalformedRecordIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	normalizer := NewNormalizer(store, nil)
	account := createTestAccount("acc-1", models.AccountTypeDepository)

	payloads := []Payload{
		&CSVPayload{Date: "2026-01-10", Amount: "-45.00", Description: "Grocery Store"},
		&CSVPayload{Date: "not a date", Amount: "-1.00", Description: "Broken"},
		&CSVPayload{Date: "2026-01-11", Amount: "nonsense", Description: "Also broken"},
		&CSVPayload{Date: "2026-01-12", Amount: "10.00", Description: "Refund"},
	}

	result, err := normalizer.IngestBatch(ctx, account, payloads)
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if result.Inserted != 2 {
		t.Errorf("Expected 2 well-formed records applied, got %d", result.Inserted)
	}
	if result.Skipped != 2 || len(result.Errors) != 2 {
		t.Errorf("Expected 2 skipped records with errors, got skipped=%d errors=%d",
			result.Skipped, len(result.Errors))
	}
}

func TestIngestBatch_LiabilitySignNormalization(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	normalizer := NewNormalizer(store, nil)
	account := createTestAccount("card-1", models.AccountTypeCredit)

	// A credit card charge arrives positive from the provider.
	payloads := []Payload{
		&AggregatorPayload{TransactionID: "tx-charge", Date: "2026-01-10", Amount: "45.00", Description: "Restaurant"},
	}
	if _, err := normalizer.IngestBatch(ctx, account, payloads); err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}

	tx, _ := store.GetTransaction(ctx, "tx-charge")
	if !tx.Amount.Equal(decimal.NewFromFloat(-45.00)) {
		t.Errorf("Expected charge stored as -45.00, got %s", tx.Amount)
	}
	if !tx.IsOutflow() {
		t.Error("Expected a card charge to be an outflow")
	}
}

func TestIngestBatch_MergePreservesAnnotations(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	normalizer := NewNormalizer(store, nil)
	account := createTestAccount("acc-1", models.AccountTypeDepository)

	payloads := []Payload{
		&AggregatorPayload{TransactionID: "tx-1", Date: "2026-01-10", Amount: "-100.00", Description: "Transfer out", Pending: true},
	}
	if _, err := normalizer.IngestBatch(ctx, account, payloads); err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}

	// Simulate a detector pass marking the row, with a counterpart present.
	counterpart := &models.Transaction{
		TransactionID: "tx-2", AccountID: "acc-2", UserID: "user-1",
		Date:   time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromFloat(100.00), Description: "Transfer in",
		Provider: models.ProviderAggregator,
	}
	store.SaveTransaction(ctx, counterpart)
	store.ClaimInternalMatch(ctx, "tx-1", "tx-2")

	// Re-ingest with the pending flag settled; amount and date unchanged.
	payloads = []Payload{
		&AggregatorPayload{TransactionID: "tx-1", Date: "2026-01-10", Amount: "-100.00", Description: "Transfer out", Pending: false},
	}
	result, err := normalizer.IngestBatch(ctx, account, payloads)
	if err != nil {
		t.Fatalf("IngestBatch() re-apply error = %v", err)
	}
	if result.MatchesCleared != 0 {
		t.Errorf("Expected pending settlement alone not to clear the match, cleared=%d", result.MatchesCleared)
	}

	tx, _ := store.GetTransaction(ctx, "tx-1")
	if tx.Pending {
		t.Error("Expected pending flag to be updated")
	}
	if !tx.IsInternal || tx.InternalMatchID != "tx-2" {
		t.Error("Expected internal match annotation to survive the merge")
	}
}

func TestIngestBatch_StaleMatchCleared(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	normalizer := NewNormalizer(store, nil)
	account := createTestAccount("acc-1", models.AccountTypeDepository)

	payloads := []Payload{
		&AggregatorPayload{TransactionID: "tx-1", Date: "2026-01-10", Amount: "-100.00", Description: "Transfer out"},
	}
	normalizer.IngestBatch(ctx, account, payloads)

	counterpart := &models.Transaction{
		TransactionID: "tx-2", AccountID: "acc-2", UserID: "user-1",
		Date:   time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromFloat(100.00), Description: "Transfer in",
		Provider: models.ProviderAggregator,
	}
	store.SaveTransaction(ctx, counterpart)
	store.ClaimInternalMatch(ctx, "tx-1", "tx-2")

	// The provider corrects the amount; the pair no longer offsets.
	payloads = []Payload{
		&AggregatorPayload{TransactionID: "tx-1", Date: "2026-01-10", Amount: "-120.00", Description: "Transfer out"},
	}
	result, err := normalizer.IngestBatch(ctx, account, payloads)
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if result.MatchesCleared != 1 {
		t.Errorf("Expected 1 cleared match, got %d", result.MatchesCleared)
	}

	tx1, _ := store.GetTransaction(ctx, "tx-1")
	tx2, _ := store.GetTransaction(ctx, "tx-2")
	if tx1.IsInternal || tx2.IsInternal {
		t.Error("Expected both sides cleared after a material change")
	}
	if !tx1.Amount.Equal(decimal.NewFromFloat(-120.00)) {
		t.Errorf("Expected corrected amount -120.00, got %s", tx1.Amount)
	}
}

func TestReadCSVPayloads(t *testing.T) {
	input := strings.NewReader(
		"date,amount,description,category\n" +
			"2026-01-10,-45.00,Grocery Store,groceries\n" +
			"2026-01-11,2500.00,Payroll,income\n")

	payloads, err := ReadCSVPayloads(input)
	if err != nil {
		t.Fatalf("ReadCSVPayloads() error = %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("Expected 2 payloads, got %d", len(payloads))
	}
	if payloads[0].Source() != models.ProviderCSV {
		t.Errorf("Expected csv provider, got %s", payloads[0].Source())
	}

	row, ok := payloads[0].(*CSVPayload)
	if !ok {
		t.Fatal("Expected a CSVPayload")
	}
	if row.Description != "Grocery Store" || row.Category != "groceries" {
		t.Errorf("Unexpected row contents: %+v", row)
	}
}
