package ledger

import (
	"context"
	"testing"
	"time"

	"go-ledger-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func createTestAccount(accountID, userID string) *models.Account {
	return &models.Account{
		AccountID: accountID,
		UserID:    userID,
		Name:      "Test " + accountID,
		Type:      models.AccountTypeDepository,
	}
}

func createTestTx(id, accountID string, date time.Time, amount float64) *models.Transaction {
	return &models.Transaction{
		TransactionID: id,
		AccountID:     accountID,
		UserID:        "user-1",
		Date:          date,
		Amount:        decimal.NewFromFloat(amount),
		Description:   "Test transaction",
		Provider:      models.ProviderAggregator,
	}
}

func TestMemoryStore_SaveAndGetTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tx := createTestTx("tx-1", "acc-1", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), -50.00)
	if err := store.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	got, err := store.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if !got.Amount.Equal(tx.Amount) {
		t.Errorf("Expected amount %s, got %s", tx.Amount, got.Amount)
	}

	// Mutating the returned copy must not leak into the store.
	got.Description = "mutated"
	again, _ := store.GetTransaction(ctx, "tx-1")
	if again.Description != "Test transaction" {
		t.Error("Expected store contents to be isolated from returned copies")
	}

	if _, err := store.GetTransaction(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for missing transaction, got %v", err)
	}
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	day1 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

	// Insert out of order; same-day rows tie-break on id.
	store.SaveTransaction(ctx, createTestTx("tx-c", "acc-1", day2, -1))
	store.SaveTransaction(ctx, createTestTx("tx-b", "acc-1", day1, -2))
	store.SaveTransaction(ctx, createTestTx("tx-a", "acc-1", day1, -3))

	txs, err := store.ListTransactionsByAccount(ctx, "acc-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListTransactionsByAccount() error = %v", err)
	}

	wantOrder := []string{"tx-a", "tx-b", "tx-c"}
	if len(txs) != len(wantOrder) {
		t.Fatalf("Expected %d transactions, got %d", len(wantOrder), len(txs))
	}
	for i, want := range wantOrder {
		if txs[i].TransactionID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, txs[i].TransactionID)
		}
	}
}

func TestMemoryStore_WindowBounds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for day := 10; day <= 14; day++ {
		date := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
		store.SaveTransaction(ctx, createTestTx(date.Format("tx-2006-01-02"), "acc-1", date, -1))
	}

	from := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC)

	txs, _ := store.ListTransactionsByAccount(ctx, "acc-1", from, to)
	if len(txs) != 3 {
		t.Errorf("Expected 3 transactions in bounded window, got %d", len(txs))
	}

	all, _ := store.ListTransactionsByAccount(ctx, "acc-1", time.Time{}, time.Time{})
	if len(all) != 5 {
		t.Errorf("Expected 5 transactions with open bounds, got %d", len(all))
	}

	tail, _ := store.ListTransactionsByAccount(ctx, "acc-1", from, time.Time{})
	if len(tail) != 4 {
		t.Errorf("Expected 4 transactions with open upper bound, got %d", len(tail))
	}
}

func TestMemoryStore_ClaimInternalMatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	store.SaveTransaction(ctx, createTestTx("tx-out", "acc-1", day, -100))
	store.SaveTransaction(ctx, createTestTx("tx-in", "acc-2", day, 100))
	store.SaveTransaction(ctx, createTestTx("tx-other", "acc-3", day, 100))

	if err := store.ClaimInternalMatch(ctx, "tx-out", "tx-in"); err != nil {
		t.Fatalf("ClaimInternalMatch() error = %v", err)
	}

	// Both sides carry the symmetric annotation.
	out, _ := store.GetTransaction(ctx, "tx-out")
	in, _ := store.GetTransaction(ctx, "tx-in")
	if !out.IsInternal || out.InternalMatchID != "tx-in" {
		t.Errorf("Expected tx-out matched to tx-in, got internal=%v match=%s", out.IsInternal, out.InternalMatchID)
	}
	if !in.IsInternal || in.InternalMatchID != "tx-out" {
		t.Errorf("Expected tx-in matched to tx-out, got internal=%v match=%s", in.IsInternal, in.InternalMatchID)
	}

	// A second claim against either side loses.
	if err := store.ClaimInternalMatch(ctx, "tx-other", "tx-in"); err != ErrAlreadyMatched {
		t.Errorf("Expected ErrAlreadyMatched, got %v", err)
	}
	other, _ := store.GetTransaction(ctx, "tx-other")
	if other.IsInternal {
		t.Error("Expected losing claim to leave the claimant untouched")
	}

	if err := store.ClaimInternalMatch(ctx, "tx-out", "missing"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for missing counterpart, got %v", err)
	}
}

func TestMemoryStore_ClearInternalMatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	store.SaveTransaction(ctx, createTestTx("tx-out", "acc-1", day, -100))
	store.SaveTransaction(ctx, createTestTx("tx-in", "acc-2", day, 100))
	store.ClaimInternalMatch(ctx, "tx-out", "tx-in")

	if err := store.ClearInternalMatch(ctx, "tx-out"); err != nil {
		t.Fatalf("ClearInternalMatch() error = %v", err)
	}

	out, _ := store.GetTransaction(ctx, "tx-out")
	in, _ := store.GetTransaction(ctx, "tx-in")
	if out.IsInternal || in.IsInternal {
		t.Error("Expected both sides of the pair to be cleared")
	}

	// Clearing an unmatched transaction is a no-op.
	if err := store.ClearInternalMatch(ctx, "tx-out"); err != nil {
		t.Errorf("Expected clearing an unmatched transaction to be a no-op, got %v", err)
	}
}

func TestMemoryStore_FindRepresentative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	amount := decimal.NewFromFloat(-9.99)
	for i, day := range []int{15, 5, 25} {
		tx := createTestTx(
			[]string{"tx-mid", "tx-oldest", "tx-newest"}[i],
			"acc-1",
			time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
			0,
		)
		tx.Amount = amount
		tx.Description = "Netflix.com"
		store.SaveTransaction(ctx, tx)
	}

	key := NewRepresentativeKey("acc-1", "  NETFLIX.COM ", amount)
	got, err := store.FindRepresentative(ctx, key)
	if err != nil {
		t.Fatalf("FindRepresentative() error = %v", err)
	}
	if got.TransactionID != "tx-oldest" {
		t.Errorf("Expected oldest matching transaction, got %s", got.TransactionID)
	}

	missing := NewRepresentativeKey("acc-1", "Netflix.com", decimal.NewFromFloat(-19.99))
	if _, err := store.FindRepresentative(ctx, missing); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for unmatched key, got %v", err)
	}
}

func TestMemoryStore_RecurringRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.SaveAccount(ctx, createTestAccount("acc-1", "user-1"))
	store.SaveAccount(ctx, createTestAccount("acc-2", "user-1"))
	store.SaveAccount(ctx, createTestAccount("acc-9", "user-2"))

	recs := []*models.RecurringTransaction{
		{TransactionID: "tx-b", AccountID: "acc-1", Frequency: models.FrequencyMonthly, NextDueDate: time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)},
		{TransactionID: "tx-a", AccountID: "acc-2", Frequency: models.FrequencyWeekly, NextDueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{TransactionID: "tx-z", AccountID: "acc-9", Frequency: models.FrequencyMonthly, NextDueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, rec := range recs {
		if err := store.UpsertRecurring(ctx, rec); err != nil {
			t.Fatalf("UpsertRecurring() error = %v", err)
		}
	}

	// Upsert overwrites in place.
	updated := *recs[0]
	updated.Frequency = models.FrequencyBiweekly
	store.UpsertRecurring(ctx, &updated)

	got, err := store.GetRecurring(ctx, "tx-b")
	if err != nil {
		t.Fatalf("GetRecurring() error = %v", err)
	}
	if got.Frequency != models.FrequencyBiweekly {
		t.Errorf("Expected upsert to overwrite frequency, got %s", got.Frequency)
	}

	list, err := store.ListRecurringByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRecurringByUser() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 schedules for user-1, got %d", len(list))
	}
	if list[0].TransactionID != "tx-a" || list[1].TransactionID != "tx-b" {
		t.Errorf("Expected due-date ordering tx-a, tx-b; got %s, %s",
			list[0].TransactionID, list[1].TransactionID)
	}
}

func TestMemoryStore_HistoryOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	points := []models.BalancePoint{
		{Date: day, Balance: decimal.NewFromInt(100)},
		{Date: day.AddDate(0, 0, 1), Balance: decimal.NewFromInt(90)},
	}
	if err := store.SaveHistoryPoints(ctx, "acc-1", points); err != nil {
		t.Fatalf("SaveHistoryPoints() error = %v", err)
	}

	// Re-running with a corrected value overwrites, never duplicates.
	points[0].Balance = decimal.NewFromInt(110)
	store.SaveHistoryPoints(ctx, "acc-1", points[:1])

	rows, err := store.ListHistory(ctx, "acc-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 history rows, got %d", len(rows))
	}
	if !rows[0].Balance.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected overwritten balance 110, got %s", rows[0].Balance)
	}
}
