// Package errors provides categorized error types matching the failure
// taxonomy of the ingestion pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/peer-digital/medla-projects/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransient represents retryable network/server errors (timeouts, 5xx)
	CategoryTransient ErrorCategory = "transient"
	// CategoryParse represents structural parse misses (missing table, malformed row)
	CategoryParse ErrorCategory = "parse"
	// CategoryDataQuality represents record-level data quality errors (bad date, missing field)
	CategoryDataQuality ErrorCategory = "data_quality"
	// CategoryDetailMismatch represents a detail fetch that returned the wrong case
	CategoryDetailMismatch ErrorCategory = "detail_mismatch"
	// CategoryQuota represents exhausted quota on the classification collaborator
	CategoryQuota ErrorCategory = "quota"
	// CategoryPersistence represents database errors
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryNotFound represents a resource that does not exist
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryUserInput represents invalid caller input (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryRateLimit represents caller-side rate limiting
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewTransientError creates an error for a retryable upstream failure
func NewTransientError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_TRANSIENT",
		Message:    message,
		Cause:      cause,
	}
}

// NewParseError creates an error for a structural parse miss
func NewParseError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryParse,
		StatusCode: http.StatusBadGateway,
		Code:       "PARSE_MISS",
		Message:    message,
		Cause:      cause,
	}
}

// NewDataQualityError creates a record-level data quality error
func NewDataQualityError(caseNumber, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDataQuality,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "DATA_QUALITY",
		Message:    message,
		Details: map[string]interface{}{
			"caseNumber": caseNumber,
		},
	}
}

// NewDetailMismatchError creates an error for a detail page serving the wrong case
func NewDetailMismatchError(requested, got string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDetailMismatch,
		StatusCode: http.StatusBadGateway,
		Code:       "DETAIL_MISMATCH",
		Message:    fmt.Sprintf("detail page returned case %q, expected %q", got, requested),
		Details: map[string]interface{}{
			"requested": requested,
			"got":       got,
		},
	}
}

// NewQuotaExceededError creates an error for exhausted classification quota
func NewQuotaExceededError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryQuota,
		StatusCode: http.StatusTooManyRequests,
		Code:       "QUOTA_EXCEEDED",
		Message:    "classification quota exceeded",
		Cause:      cause,
	}
}

// NewPersistenceError creates an error for a failed database operation
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       "PERSISTENCE_ERROR",
		Message:    fmt.Sprintf("database operation failed: %s", operation),
		Cause:      cause,
	}
}

// NewNotFoundError creates an error for a missing resource
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInvalidInputError creates an error for invalid caller input
func NewInvalidInputError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_INPUT",
		Message:    message,
	}
}

// NewRateLimitError creates an error for a rate-limited caller
func NewRateLimitError(retryAfterSeconds int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("rate limit exceeded, try again in %d seconds", retryAfterSeconds),
	}
}

// categoryOf extracts the category from an error chain
func categoryOf(err error) (ErrorCategory, bool) {
	var categorized *CategorizedError
	if stderrors.As(err, &categorized) {
		return categorized.Category, true
	}
	return "", false
}

// IsTransient reports whether the error is a retryable upstream failure
func IsTransient(err error) bool {
	category, ok := categoryOf(err)
	return ok && category == CategoryTransient
}

// IsQuotaExceeded reports whether the error is an exhausted-quota condition
func IsQuotaExceeded(err error) bool {
	category, ok := categoryOf(err)
	return ok && category == CategoryQuota
}

// IsNotFound reports whether the error is a missing-resource condition
func IsNotFound(err error) bool {
	category, ok := categoryOf(err)
	return ok && category == CategoryNotFound
}

// IsDetailMismatch reports whether the error is a wrong-case detail response
func IsDetailMismatch(err error) bool {
	category, ok := categoryOf(err)
	return ok && category == CategoryDetailMismatch
}
