package errors

import (
	"fmt"
)

// SeekError is the structured error type for citeseek. It carries the
// context needed for logging, retry decisions, and user presentation.
type SeekError struct {
	// Code is the unique error code (e.g., "ERR_302_EMBEDDING_PROVIDER").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SeekError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SeekError) Unwrap() error {
	return e.Cause
}

// Is matches SeekErrors by code, enabling errors.Is with code sentinels.
func (e *SeekError) Is(target error) bool {
	if t, ok := target.(*SeekError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail. Returns the error for chaining.
func (e *SeekError) WithDetail(key, value string) *SeekError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SeekError) WithSuggestion(suggestion string) *SeekError {
	e.Suggestion = suggestion
	return e
}

// New creates a SeekError with the given code and message. Category,
// severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *SeekError {
	return &SeekError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SeekError from an existing error, reusing its message.
func Wrap(code string, err error) *SeekError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// QueryEmptyError reports a query that cleaned to nothing.
func QueryEmptyError() *SeekError {
	return New(ErrCodeQueryEmpty, "query is empty after cleaning", nil).
		WithSuggestion("provide at least one non-stopword search term")
}

// EmbeddingError reports an embedding provider failure. These are
// retryable and never trigger vector index fallback.
func EmbeddingError(message string, cause error) *SeekError {
	return New(ErrCodeEmbeddingProvider, message, cause)
}

// RerankerError reports a reranker service failure.
func RerankerError(message string, cause error) *SeekError {
	return New(ErrCodeRerankerUnavailable, message, cause)
}

// SearchError reports a failed search request.
func SearchError(message string, cause error) *SeekError {
	return New(ErrCodeSearchFailed, message, cause)
}

// ConfigError reports a configuration problem.
func ConfigError(message string, cause error) *SeekError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsRetryable reports whether err is a SeekError marked retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SeekError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal reports whether err has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SeekError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or empty string for foreign errors.
func GetCode(err error) string {
	if se, ok := err.(*SeekError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category, or empty string for foreign errors.
func GetCategory(err error) Category {
	if se, ok := err.(*SeekError); ok {
		return se.Category
	}
	return ""
}
