// Package errors provides structured error types for the telemetry core.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySnapshot  ErrorCategory = "SNAPSHOT"
	ErrCategoryArchive   ErrorCategory = "ARCHIVE"
	ErrCategoryPipeline  ErrorCategory = "PIPELINE"
	ErrCategoryRetention ErrorCategory = "RETENTION"
	ErrCategoryQuery     ErrorCategory = "QUERY"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Snapshot codes
	CodeEmptyEntityID = "EMPTY_ENTITY_ID"
	CodeWriteFailed   = "WRITE_FAILED"

	// Archive codes
	CodeInsertFailed = "INSERT_FAILED"
	CodeLedgerFailed = "LEDGER_FAILED"

	// Pipeline codes
	CodeRunInProgress = "RUN_IN_PROGRESS"
	CodeFamilyFailed  = "FAMILY_FAILED"

	// Retention codes
	CodePruneFailed  = "PRUNE_FAILED"
	CodeVacuumFailed = "VACUUM_FAILED"
	CodeExportFailed = "EXPORT_FAILED"

	// Query codes
	CodeInvalidRange = "INVALID_RANGE"
	CodeScanFailed   = "SCAN_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TelemetryError is the structured error type used throughout the system.
type TelemetryError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *TelemetryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TelemetryError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *TelemetryError) Is(target error) bool {
	var t *TelemetryError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new TelemetryError.
func New(category ErrorCategory, code, message string) *TelemetryError {
	return &TelemetryError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new TelemetryError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TelemetryError {
	return &TelemetryError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *TelemetryError) WithDetails(details map[string]interface{}) *TelemetryError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var te *TelemetryError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TelemetryError.
func GetCategory(err error) ErrorCategory {
	var te *TelemetryError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TelemetryError.
func GetCode(err error) string {
	var te *TelemetryError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Database write
// failures are deliberately not retryable: retry policy for archive runs
// belongs to the scheduler, not the store.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryPipeline && code == CodeRunInProgress:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSnapshotError(code, message string, cause error) *TelemetryError {
	return Wrap(ErrCategorySnapshot, code, message, cause)
}

func NewArchiveError(code, message string, cause error) *TelemetryError {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewPipelineError(code, message string, cause error) *TelemetryError {
	return Wrap(ErrCategoryPipeline, code, message, cause)
}

func NewRetentionError(code, message string, cause error) *TelemetryError {
	return Wrap(ErrCategoryRetention, code, message, cause)
}

func NewQueryError(code, message string, cause error) *TelemetryError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewInternalError(message string, cause error) *TelemetryError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
