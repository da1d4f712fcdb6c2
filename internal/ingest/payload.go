// Package ingest turns raw transaction payloads from heterogeneous sources
// into canonical ledger rows and applies them with idempotent
// upsert-by-transaction-id semantics.
//
// Each source variant (aggregator pull, CSV import, PDF extraction, manual
// entry) is its own payload type converging on models.Transaction, rather
// than ad hoc branching on dictionary keys at every call site.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"go-ledger-reconciliation/internal/models"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// Payload is one raw transaction record from some source system. Variants
// normalize themselves against the account they are ingested into; the
// account supplies ownership and the type used for sign normalization.
type Payload interface {
	// Source identifies the originating system.
	Source() models.Provider
	// toTransaction converts the raw record into a canonical ledger row.
	toTransaction(account *models.Account) (*models.Transaction, error)
}

// NormalizeAmount applies the engine's sign convention: outflows negative,
// inflows positive. Liability accounts (credit, loan) report magnitudes with
// the opposite sense, so their raw amounts are inverted before storage.
// "Positive" always means the account got richer.
func NormalizeAmount(raw decimal.Decimal, accountType models.AccountType) decimal.Decimal {
	if accountType.IsLiability() {
		return raw.Neg()
	}
	return raw
}

// AggregatorPayload is a record pulled from a bank-aggregator API. The
// aggregator supplies a stable per-provider transaction id, which becomes
// the upsert key directly.
type AggregatorPayload struct {
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	MerchantName  string `json:"merchant_name,omitempty"`
	Category      string `json:"category,omitempty"`
	Pending       bool   `json:"pending"`
}

// Source identifies the originating system.
func (p *AggregatorPayload) Source() models.Provider { return models.ProviderAggregator }

func (p *AggregatorPayload) toTransaction(account *models.Account) (*models.Transaction, error) {
	if strings.TrimSpace(p.TransactionID) == "" {
		return nil, fmt.Errorf("aggregator record is missing a transaction id")
	}

	date, err := models.ParseBusinessDate(p.Date)
	if err != nil {
		return nil, fmt.Errorf("aggregator record %s: %w", p.TransactionID, err)
	}
	amount, err := models.ParseAmount(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("aggregator record %s: %w", p.TransactionID, err)
	}

	return &models.Transaction{
		TransactionID: p.TransactionID,
		AccountID:     account.AccountID,
		UserID:        account.UserID,
		Date:          date,
		Amount:        NormalizeAmount(amount, account.Type),
		Description:   strings.TrimSpace(p.Description),
		MerchantName:  strings.TrimSpace(p.MerchantName),
		Category:      strings.TrimSpace(p.Category),
		Provider:      models.ProviderAggregator,
		Pending:       p.Pending,
	}, nil
}

// CSVPayload is one row of a user-imported CSV statement. CSV rows carry no
// external identifier, so a deterministic fingerprint of the row contents
// becomes the transaction id; re-importing the same file is idempotent.
type CSVPayload struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Category    string `csv:"category,omitempty"`
}

// Source identifies the originating system.
func (p *CSVPayload) Source() models.Provider { return models.ProviderCSV }

func (p *CSVPayload) toTransaction(account *models.Account) (*models.Transaction, error) {
	date, err := models.ParseBusinessDate(p.Date)
	if err != nil {
		return nil, fmt.Errorf("csv row: %w", err)
	}
	amount, err := models.ParseAmount(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("csv row: %w", err)
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, fmt.Errorf("csv row on %s: description cannot be empty", p.Date)
	}

	normalized := NormalizeAmount(amount, account.Type)
	return &models.Transaction{
		TransactionID: fingerprintID(models.ProviderCSV, account.AccountID, date, normalized, p.Description),
		AccountID:     account.AccountID,
		UserID:        account.UserID,
		Date:          date,
		Amount:        normalized,
		Description:   strings.TrimSpace(p.Description),
		Category:      strings.TrimSpace(p.Category),
		Provider:      models.ProviderCSV,
	}, nil
}

// ReadCSVPayloads parses a CSV statement into payloads. Parsing here is
// strict about the header only; malformed rows surface later, one by one,
// during normalization so a single bad row cannot abort the batch.
func ReadCSVPayloads(r io.Reader) ([]Payload, error) {
	var rows []*CSVPayload
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse CSV statement: %w", err)
	}

	payloads := make([]Payload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, row)
	}
	return payloads, nil
}

// PDFPayload is one line item extracted from a PDF statement by an upstream
// extractor. Extraction is lossy, so every field arrives as text.
type PDFPayload struct {
	Page        int    `json:"page"`
	Line        int    `json:"line"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Source identifies the originating system.
func (p *PDFPayload) Source() models.Provider { return models.ProviderPDF }

func (p *PDFPayload) toTransaction(account *models.Account) (*models.Transaction, error) {
	date, err := models.ParseBusinessDate(p.Date)
	if err != nil {
		return nil, fmt.Errorf("pdf line %d/%d: %w", p.Page, p.Line, err)
	}
	amount, err := models.ParseAmount(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("pdf line %d/%d: %w", p.Page, p.Line, err)
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, fmt.Errorf("pdf line %d/%d: description cannot be empty", p.Page, p.Line)
	}

	normalized := NormalizeAmount(amount, account.Type)
	return &models.Transaction{
		TransactionID: fingerprintID(models.ProviderPDF, account.AccountID, date, normalized, p.Description),
		AccountID:     account.AccountID,
		UserID:        account.UserID,
		Date:          date,
		Amount:        normalized,
		Description:   strings.TrimSpace(p.Description),
		Provider:      models.ProviderPDF,
	}, nil
}

// ManualPayload is a transaction entered by hand. Manual entries arrive
// already typed; sign normalization still applies so liability accounts
// behave consistently across sources.
type ManualPayload struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
}

// Source identifies the originating system.
func (p *ManualPayload) Source() models.Provider { return models.ProviderManual }

func (p *ManualPayload) toTransaction(account *models.Account) (*models.Transaction, error) {
	if p.Date.IsZero() {
		return nil, fmt.Errorf("manual entry: date cannot be zero")
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, fmt.Errorf("manual entry: description cannot be empty")
	}

	date := models.DateOnly(p.Date)
	normalized := NormalizeAmount(p.Amount, account.Type)
	return &models.Transaction{
		TransactionID: fingerprintID(models.ProviderManual, account.AccountID, date, normalized, p.Description),
		AccountID:     account.AccountID,
		UserID:        account.UserID,
		Date:          date,
		Amount:        normalized,
		Description:   strings.TrimSpace(p.Description),
		Category:      strings.TrimSpace(p.Category),
		Provider:      models.ProviderManual,
	}, nil
}

// fingerprintID derives a deterministic transaction id for sources that do
// not supply one. The same record always maps to the same id, which is what
// makes re-imports idempotent.
func fingerprintID(provider models.Provider, accountID string, date time.Time, amount decimal.Decimal, description string) string {
	material := strings.Join([]string{
		string(provider),
		accountID,
		date.Format(models.DateFormat),
		amount.String(),
		strings.ToLower(strings.TrimSpace(description)),
	}, "|")

	sum := sha256.Sum256([]byte(material))
	return fmt.Sprintf("%s-%s", provider, hex.EncodeToString(sum[:8]))
}
