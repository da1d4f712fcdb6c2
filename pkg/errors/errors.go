// Package errors provides the structured error taxonomy used across the
// reconciliation engine. Every error carries a category, a specific code, an
// optional suggestion for the operator and a context map, on top of a stack
// trace captured at construction time.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryIngest        ErrorCategory = "ingest"
	CategoryPairing       ErrorCategory = "pairing"
	CategoryPattern       ErrorCategory = "pattern"
	CategoryProjection    ErrorCategory = "projection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeInvalidRange  ErrorCode = "invalid_range"

	// Ingest errors
	CodeMalformedPayload ErrorCode = "malformed_payload"
	CodeUnknownProvider  ErrorCode = "unknown_provider"
	CodeAccountMismatch  ErrorCode = "account_mismatch"

	// Pairing errors
	CodeMatchConflict ErrorCode = "match_conflict"
	CodeSelfMatch     ErrorCode = "self_match"
	CodePairAsymmetry ErrorCode = "pair_asymmetry"

	// Pattern errors
	CodeBridgeFailed     ErrorCode = "bridge_failed"
	CodeNoRepresentative ErrorCode = "no_representative"

	// Projection errors
	CodeMissingAnchor  ErrorCode = "missing_anchor"
	CodeInvalidHorizon ErrorCode = "invalid_horizon"
	CodeUnknownMethod  ErrorCode = "unknown_method"
	CodeNoHistory      ErrorCode = "no_history"

	// Storage errors
	CodeNotFound         ErrorCode = "not_found"
	CodeWriteConflict    ErrorCode = "write_conflict"
	CodeStoreUnavailable ErrorCode = "store_unavailable"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// LedgerError is the base error type for all engine errors
type LedgerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *LedgerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *LedgerError) GetExitCode() int {
	switch e.Category {
	case CategoryValidation, CategoryIngest:
		return 2
	case CategoryConfiguration:
		return 3
	case CategoryPairing, CategoryPattern, CategoryProjection:
		return 4
	case CategoryStorage:
		return 5
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *LedgerError) WithContext(key string, value interface{}) *LedgerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *LedgerError) WithSuggestion(suggestion string) *LedgerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LedgerError
func New(category ErrorCategory, code ErrorCode, message string) *LedgerError {
	return &LedgerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with LedgerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *LedgerError {
	if err == nil {
		return nil
	}

	return &LedgerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// AsLedgerError extracts a LedgerError from an error chain
func AsLedgerError(err error) (*LedgerError, bool) {
	if err == nil {
		return nil, false
	}

	for err != nil {
		if le, ok := err.(*LedgerError); ok {
			return le, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// IsCategory reports whether err belongs to the given category
func IsCategory(err error, category ErrorCategory) bool {
	if le, ok := AsLedgerError(err); ok {
		return le.Category == category
	}
	return false
}

// IsCode reports whether err carries the given code
func IsCode(err error, code ErrorCode) bool {
	if le, ok := AsLedgerError(err); ok {
		return le.Code == code
	}
	return false
}

// Specific error constructors

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeInvalidRange:
		message = fmt.Sprintf("invalid range in '%s': %v", field, value)
		suggestion = "ensure the end of the range does not precede its start"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	result := build(err, CategoryValidation, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// IngestError creates an ingestion-related error
func IngestError(code ErrorCode, detail string, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeMalformedPayload:
		message = fmt.Sprintf("malformed payload: %s", detail)
		suggestion = "fix or remove the record and re-submit the batch; well-formed records were not affected"
	case CodeUnknownProvider:
		message = fmt.Sprintf("unknown payload provider: %s", detail)
		suggestion = "use one of: aggregator, csv, pdf, manual"
	case CodeAccountMismatch:
		message = fmt.Sprintf("payload account does not match batch account: %s", detail)
		suggestion = "ingest each batch against the account it belongs to"
	default:
		message = fmt.Sprintf("ingest error: %s", detail)
		suggestion = "check the batch contents and re-run; ingestion is idempotent"
	}

	result := build(err, CategoryIngest, code, message)
	return result.WithSuggestion(suggestion).WithContext("detail", detail)
}

// PairingError creates an internal-transfer pairing error
func PairingError(code ErrorCode, transactionID string, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeMatchConflict:
		message = fmt.Sprintf("transaction %s was claimed by a concurrent match", transactionID)
		suggestion = "re-run detection; already-matched pairs are skipped"
	case CodeSelfMatch:
		message = fmt.Sprintf("transaction %s cannot match itself or its own account", transactionID)
		suggestion = "check the candidate scan scope"
	case CodePairAsymmetry:
		message = fmt.Sprintf("asymmetric internal match involving transaction %s", transactionID)
		suggestion = "clear both sides of the pair and re-run detection"
	default:
		message = fmt.Sprintf("pairing error for transaction %s", transactionID)
		suggestion = "re-run detection over the same window"
	}

	result := build(err, CategoryPairing, code, message)
	return result.WithSuggestion(suggestion).WithContext("transaction_id", transactionID)
}

// PatternError creates a recurring-pattern or bridge error
func PatternError(code ErrorCode, detail string, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeBridgeFailed:
		message = fmt.Sprintf("failed to persist recurring schedule: %s", detail)
		suggestion = "re-run the bridge; the upsert is idempotent"
	case CodeNoRepresentative:
		message = fmt.Sprintf("no representative ledger row for candidate: %s", detail)
		suggestion = "a placeholder row should have been synthesized; check store writes"
	default:
		message = fmt.Sprintf("pattern error: %s", detail)
		suggestion = "re-run detection over the same window"
	}

	result := build(err, CategoryPattern, code, message)
	return result.WithSuggestion(suggestion).WithContext("detail", detail)
}

// ProjectionError creates a reconstruction or forecast error
func ProjectionError(code ErrorCode, detail string, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingAnchor:
		message = fmt.Sprintf("no anchor balance available: %s", detail)
		suggestion = "provide a known balance; the reconstructor never guesses a starting point"
	case CodeInvalidHorizon:
		message = fmt.Sprintf("invalid forecast horizon: %s", detail)
		suggestion = "use a positive number of days"
	case CodeUnknownMethod:
		message = fmt.Sprintf("unknown forecast method: %s", detail)
		suggestion = "use 'rule' or 'stat'"
	case CodeNoHistory:
		message = fmt.Sprintf("insufficient balance history: %s", detail)
		suggestion = "reconstruct account history before using the statistical model"
	default:
		message = fmt.Sprintf("projection error: %s", detail)
		suggestion = "check the requested range and inputs"
	}

	result := build(err, CategoryProjection, code, message)
	return result.WithSuggestion(suggestion).WithContext("detail", detail)
}

// StorageError creates a store-related error
func StorageError(code ErrorCode, entity string, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeNotFound:
		message = fmt.Sprintf("%s not found", entity)
		suggestion = "check the identifier and scope"
	case CodeWriteConflict:
		message = fmt.Sprintf("concurrent write conflict on %s", entity)
		suggestion = "re-run the operation; writes are idempotent"
	case CodeStoreUnavailable:
		message = fmt.Sprintf("ledger store unavailable while accessing %s", entity)
		suggestion = "check the store connection settings"
	default:
		message = fmt.Sprintf("storage error on %s", entity)
		suggestion = "check the store and try again"
	}

	result := build(err, CategoryStorage, code, message)
	return result.WithSuggestion(suggestion).WithContext("entity", entity)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *LedgerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	result := build(err, CategoryConfiguration, code, message)
	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an unexpected internal error
func InternalError(detail string, err error) *LedgerError {
	message := fmt.Sprintf("unexpected internal error: %s", detail)
	result := build(err, CategoryInternal, CodeUnexpectedError, message)
	return result.WithSuggestion("this is likely a bug; re-running is safe but report the failure")
}

func build(err error, category ErrorCategory, code ErrorCode, message string) *LedgerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}
