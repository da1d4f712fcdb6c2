package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestLedgerError_Error(t *testing.T) {
	err := New(CategoryValidation, CodeInvalidAmount, "invalid amount")
	if err.Error() != "invalid amount" {
		t.Errorf("Expected bare message, got %q", err.Error())
	}

	err = err.WithSuggestion("use a decimal number")
	if !strings.Contains(err.Error(), "suggestion: use a decimal number") {
		t.Errorf("Expected suggestion appended, got %q", err.Error())
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, CategoryStorage, CodeStoreUnavailable, "store unavailable")

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
	if Wrap(nil, CategoryStorage, CodeStoreUnavailable, "ignored") != nil {
		t.Error("Expected wrapping nil to return nil")
	}
}

func TestAsLedgerError_WalksChain(t *testing.T) {
	inner := ValidationError(CodeInvalidDate, "date", "bogus", nil)
	wrapped := fmt.Errorf("processing record: %w", inner)

	got, ok := AsLedgerError(wrapped)
	if !ok {
		t.Fatal("Expected to find a LedgerError in the chain")
	}
	if got.Code != CodeInvalidDate {
		t.Errorf("Expected code %s, got %s", CodeInvalidDate, got.Code)
	}

	if _, ok := AsLedgerError(fmt.Errorf("plain error")); ok {
		t.Error("Expected no LedgerError in a plain chain")
	}
	if _, ok := AsLedgerError(nil); ok {
		t.Error("Expected nil to yield no LedgerError")
	}
}

func TestIsCategoryAndIsCode(t *testing.T) {
	err := PairingError(CodeMatchConflict, "tx-1", nil)

	if !IsCategory(err, CategoryPairing) {
		t.Error("Expected pairing category")
	}
	if IsCategory(err, CategoryStorage) {
		t.Error("Did not expect storage category")
	}
	if !IsCode(err, CodeMatchConflict) {
		t.Error("Expected match_conflict code")
	}
	if IsCode(err, CodeSelfMatch) {
		t.Error("Did not expect self_match code")
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  *LedgerError
		want int
	}{
		{ValidationError(CodeMissingField, "field", nil, nil), 2},
		{IngestError(CodeMalformedPayload, "record 3", nil), 2},
		{ConfigurationError(CodeInvalidConfig, "setting", 0, nil), 3},
		{PairingError(CodeMatchConflict, "tx-1", nil), 4},
		{PatternError(CodeBridgeFailed, "sig", nil), 4},
		{ProjectionError(CodeMissingAnchor, "acc-1", nil), 4},
		{StorageError(CodeStoreUnavailable, "transactions", nil), 5},
		{InternalError("boom", nil), 6},
	}

	for _, tt := range tests {
		if got := tt.err.GetExitCode(); got != tt.want {
			t.Errorf("GetExitCode() for %s = %d, want %d", tt.err.Category, got, tt.want)
		}
	}
}

func TestConstructors_CarryContext(t *testing.T) {
	err := ValidationError(CodeInvalidAmount, "amount", "abc", nil)
	if err.Context["field"] != "amount" || err.Context["value"] != "abc" {
		t.Errorf("Expected field context, got %+v", err.Context)
	}
	if err.Suggestion == "" {
		t.Error("Expected a suggestion on validation errors")
	}

	err = StorageError(CodeNotFound, "account", nil).WithContext("account_id", "acc-1")
	if err.Context["account_id"] != "acc-1" {
		t.Errorf("Expected added context, got %+v", err.Context)
	}
}
