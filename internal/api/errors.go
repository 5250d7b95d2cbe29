package api

import (
	"encoding/json"
	"net/http"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondServiceError maps a categorized error onto the HTTP response.
// Internal details and causes stay on the server side.
func respondServiceError(w http.ResponseWriter, err error) {
	catErr := errors.Categorize(err)

	switch catErr.Category {
	case errors.CategoryValidation, errors.CategoryAuthorization, errors.CategoryNotFound:
		respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
	case errors.CategoryStore:
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Service temporarily unavailable", nil)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
	}
}
