// Package errors provides structured error types for tripbench.
// All errors include a category, code, message, and retryable flag so the
// command surface can decide between aborting, recovering, and retrying.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies errors by pipeline component.
type ErrorCategory string

const (
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryParse    ErrorCategory = "PARSE"
	ErrCategoryMetric   ErrorCategory = "METRIC"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryHistory  ErrorCategory = "HISTORY"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeMissingColumn   = "MISSING_COLUMN"
	CodeDuplicateColumn = "DUPLICATE_COLUMN"
	CodeEmptyInput      = "EMPTY_INPUT"

	// Parse codes
	CodeMalformedRow = "MALFORMED_ROW"
	CodeFieldCount   = "FIELD_COUNT"

	// Metric codes
	CodeZeroBaseline = "ZERO_BASELINE"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// History codes
	CodeRunNotFound = "RUN_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Detail keys shared by constructors and callers.
const (
	DetailRow    = "row"
	DetailColumn = "column"
	DetailMetric = "metric"
)

// PipelineError is the structured error type used throughout tripbench.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string. Details are appended in key order.
func (e *PipelineError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] %s", e.Category, e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Details[k])
		}
		sb.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *PipelineError) WithDetails(details map[string]interface{}) *PipelineError {
	cp := *e
	merged := make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp.Details = merged
	return &cp
}

// Detail returns a single detail value.
func (e *PipelineError) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsFatal reports whether the error must abort a run. Metric errors are
// recovered locally by the reporter; everything else is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return GetCategory(err) != ErrCategoryMetric
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NewSchemaError reports a problem with the input's columns.
func NewSchemaError(code, column, message string) *PipelineError {
	return New(ErrCategorySchema, code, message).WithDetails(map[string]interface{}{
		DetailColumn: column,
	})
}

// NewParseError reports a malformed data row. row is the 1-based data row
// number; column may be empty when the whole row is unusable.
func NewParseError(code string, row int, column, message string, cause error) *PipelineError {
	details := map[string]interface{}{DetailRow: row}
	if column != "" {
		details[DetailColumn] = column
	}
	return Wrap(ErrCategoryParse, code, message, cause).WithDetails(details)
}

// NewMetricError reports a metric comparison that cannot be computed.
func NewMetricError(code, metric, message string) *PipelineError {
	return New(ErrCategoryMetric, code, message).WithDetails(map[string]interface{}{
		DetailMetric: metric,
	})
}

// NewConfigError reports an invalid configuration or flag value.
func NewConfigError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryConfig, CodeInvalidConfig, message, cause)
}

// NewStorageError wraps an object storage failure.
func NewStorageError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

// NewHistoryError wraps a run history failure.
func NewHistoryError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryHistory, code, message, cause)
}

// NewInternalError wraps an unexpected failure inside the pipeline.
func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
