// Package errors provides the categorized error taxonomy for the probe point
// service. Categories drive both HTTP status mapping at the API boundary and
// retry classification inside the orchestrator.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents invalid caller input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflicting state transitions
	CategoryConflict ErrorCategory = "conflict"
	// CategoryStore represents durable store I/O failures
	CategoryStore ErrorCategory = "store"
	// CategoryProvider represents audit provider failures
	CategoryProvider ErrorCategory = "provider"
	// CategorySystem represents internal errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
	Retryable  bool
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

// NewInvalidRequestError creates an error for malformed submission input.
// Nothing is persisted when submission fails with this error.
func NewInvalidRequestError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_REQUEST",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
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

// NewAlreadyClaimedError signals that a job's queued->running claim was won by
// another worker. Treated as a no-op by the caller, never surfaced to users.
func NewAlreadyClaimedError(jobID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "ALREADY_CLAIMED",
		Message:    fmt.Sprintf("job already claimed: %s", jobID),
		Details: map[string]interface{}{
			"jobId": jobID,
		},
	}
}

// NewInvalidTransitionError signals a disallowed job status transition
func NewInvalidTransitionError(jobID string, from, to types.JobStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("job %s: cannot transition from %s to %s", jobID, from, to),
		Details: map[string]interface{}{
			"jobId": jobID,
			"from":  string(from),
			"to":    string(to),
		},
	}
}

// NewStoreUnavailableError creates an error for durable store I/O failures.
// Callers should back off and retry their poll; job attempt counters are not
// consumed by store failures.
func NewStoreUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStore,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "STORE_UNAVAILABLE",
		Message:    fmt.Sprintf("store unavailable during %s", operation),
		Cause:      cause,
		Retryable:  true,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Audit provider failure classes

// NewProviderTransportError creates a retryable network/timeout error
func NewProviderTransportError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_TRANSPORT",
		Message:    "audit provider unreachable",
		Cause:      cause,
		Retryable:  true,
	}
}

// NewProviderUnavailableError creates a retryable provider 5xx/429 error
func NewProviderUnavailableError(statusCode int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_UNAVAILABLE",
		Message:    fmt.Sprintf("audit provider unavailable (status %d)", statusCode),
		Retryable:  true,
		Details: map[string]interface{}{
			"providerStatus": statusCode,
		},
	}
}

// NewProviderRejectedError creates a non-retryable provider 4xx error
func NewProviderRejectedError(statusCode int, detail string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "PROVIDER_REJECTED",
		Message:    fmt.Sprintf("audit provider rejected the request: %s", detail),
		Details: map[string]interface{}{
			"providerStatus": statusCode,
		},
	}
}

// NewMalformedResponseError creates a non-retryable response-mapping error
func NewMalformedResponseError(detail string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "MALFORMED_RESPONSE",
		Message:    fmt.Sprintf("audit provider returned a malformed response: %s", detail),
	}
}

// NewMaxAttemptsExceededError is the synthetic terminal reason attached when a
// retry is requested after attempts are exhausted
func NewMaxAttemptsExceededError(jobID string, attempts int) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "MAX_ATTEMPTS_EXCEEDED",
		Message:    "max retry attempts exceeded",
		Details: map[string]interface{}{
			"jobId":    jobID,
			"attempts": attempts,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsRetryable determines whether re-attempting the failed operation may
// succeed. Store, transport, and provider-availability failures are
// transient; validation, rejection, and mapping failures are not.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Retryable
}

// IsAlreadyClaimed reports whether the error is a lost job claim
func IsAlreadyClaimed(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == "ALREADY_CLAIMED"
}

// IsNotFound reports whether the error is a not-found error
func IsNotFound(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryNotFound
}

// IsStoreUnavailable reports whether the error is a store I/O failure
func IsStoreUnavailable(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryStore
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
