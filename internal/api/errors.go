// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sharemeal/sharemeal-go/internal/errs"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication and authorization
	ReasonUnauthenticated    = "unauthenticated"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonForbidden          = "forbidden"

	// Rate limiting
	ReasonRateLimited = "rate_limited"

	// Request validation
	ReasonBadRequest   = "bad_request"
	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"
	ReasonNotFound     = "not_found"
	ReasonConflict     = "conflict"

	// Server errors
	ReasonInternalError    = "internal_error"
	ReasonStoreUnavailable = "store_unavailable"
)

// ErrorEnvelope is the standard error response format.
// All error responses should use this structure for consistency.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text (e.g., "forbidden")
	ReasonCode string `json:"reason_code"` // Deterministic reason code
	Message    string `json:"message"`     // Human-readable message
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	envelope := ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
		},
	}

	json.NewEncoder(w).Encode(envelope)
}

// WriteDomainError maps a domain error to its HTTP representation.
// Unknown errors become 500 without leaking internals.
func WriteDomainError(w http.ResponseWriter, err error) {
	var de *errs.Error
	if !errors.As(err, &de) {
		WriteInternalError(w, "internal error")
		return
	}

	switch de.Kind {
	case errs.KindValidation:
		WriteError(w, http.StatusBadRequest, de.Reason, de.Message)
	case errs.KindAuthentication:
		WriteError(w, http.StatusUnauthorized, de.Reason, de.Message)
	case errs.KindAuthorization:
		WriteError(w, http.StatusForbidden, de.Reason, de.Message)
	case errs.KindNotFound:
		WriteError(w, http.StatusNotFound, de.Reason, de.Message)
	case errs.KindConflict:
		WriteError(w, http.StatusConflict, de.Reason, de.Message)
	case errs.KindUnavailable:
		WriteError(w, http.StatusServiceUnavailable, de.Reason, de.Message)
	default:
		WriteInternalError(w, "internal error")
	}
}

// Common error helpers for frequently used patterns

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteForbidden writes a 403 Forbidden error.
func WriteForbidden(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusForbidden, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteConflict writes a 409 Conflict error.
func WriteConflict(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusConflict, reasonCode, message)
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}
