// Package api carries the response envelope and the error taxonomy shared by
// every HTTP surface: {success, data, error, pagination} bodies and stable
// machine-readable error codes of the form <ENTITY>_<REASON>.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorDetail describes a single field-level validation failure.
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a request-terminating error with a stable code. Services return
// *Error for every anticipated failure; anything else is treated as an
// internal error at the boundary.
type Error struct {
	Status  int           `json:"-"`
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails attaches field-level details and returns the error.
func (e *Error) WithDetails(details ...ErrorDetail) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// AsError unwraps err into *Error if it is one.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func code(entity, reason string) string {
	return strings.ToUpper(entity) + "_" + reason
}

// NotFound reports that a record is absent within the caller's own tenant scope.
func NotFound(entity, message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code(entity, "NOT_FOUND"), Message: message}
}

// Validation reports missing or malformed required fields.
func Validation(entity, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code(entity, "VALIDATION_ERROR"), Message: message}
}

// Duplicate reports a scoped-uniqueness collision.
func Duplicate(entity, message string) *Error {
	return &Error{Status: http.StatusConflict, Code: code(entity, "DUPLICATE"), Message: message}
}

// ForeignKey reports a referenced entity that is missing or cross-tenant.
func ForeignKey(entity, message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code(entity, "FOREIGN_KEY_ERROR"), Message: message}
}

// Forbidden reports a tenant-boundary or self-protection violation. Missing
// records are masked as Forbidden on cross-tenant mutation paths so that
// existence never leaks across organizations.
func Forbidden(entity, message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: code(entity, "FORBIDDEN"), Message: message}
}

// Unauthorized reports a failed or missing authentication.
func Unauthorized(entity, message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: code(entity, "UNAUTHORIZED"), Message: message}
}

// DeleteFailed reports that dependent records block a delete.
func DeleteFailed(entity, message string) *Error {
	return &Error{Status: http.StatusConflict, Code: code(entity, "DELETE_FAILED"), Message: message}
}

// Internal reports an unexpected failure. The underlying cause is logged at
// the boundary and never exposed to the caller.
func Internal(entity string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code(entity, "INTERNAL_ERROR"), Message: "Internal server error"}
}
