// Package apperr defines the machine-readable error codes returned by the
// licensing and sync core.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a domain error carrying a stable code and the HTTP status it maps to.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New creates an error with the given status and code.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// WithMessage returns a copy of e with a different message.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap returns a copy of e wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Validation
var (
	ErrBadRequest    = New(http.StatusBadRequest, "BAD_REQUEST", "invalid request")
	ErrBadRecord     = New(http.StatusBadRequest, "BAD_RECORD", "record is missing its id")
	ErrUnknownTable  = New(http.StatusBadRequest, "UNKNOWN_TABLE", "table is not syncable")
	ErrInvalidFormat = New(http.StatusBadRequest, "INVALID_FORMAT", "license file is malformed")
	ErrMissingFields = New(http.StatusBadRequest, "MISSING_FIELDS", "license file is missing fields")
)

// Authorization and state
var (
	ErrNotFound          = New(http.StatusNotFound, "NOT_FOUND", "not found")
	ErrLicenseNotActive  = New(http.StatusForbidden, "LICENSE_NOT_ACTIVE", "license is not active for this device")
	ErrBlocked           = New(http.StatusForbidden, "BLOCKED", "license is blocked")
	ErrExpired           = New(http.StatusForbidden, "EXPIRED", "license is expired")
	ErrBlockedOrExpired  = New(http.StatusBadRequest, "BLOCKED_OR_EXPIRED", "license is blocked or expired")
	ErrCompanyNotLinked  = New(http.StatusForbidden, "COMPANY_NOT_LINKED", "license is not linked to a company")
	ErrMaxDevices        = New(http.StatusBadRequest, "MAX_DEVICES_REACHED", "device limit reached")
	ErrNoHistory         = New(http.StatusNotFound, "NO_HISTORY", "device has no activation history")
	ErrNoActiveLicense   = New(http.StatusNotFound, "NO_ACTIVE_LICENSE", "no usable license for this customer")
	ErrBusinessNotFound  = New(http.StatusNotFound, "BUSINESS_NOT_FOUND", "business not found")
	ErrAlreadyLinked     = New(http.StatusBadRequest, "ALREADY_LINKED", "license is already linked to a company")
	ErrBusinessConflict  = New(http.StatusConflict, "BUSINESS_ID_CONFLICT", "customer already has another business_id")
	ErrProjectNotFound   = New(http.StatusNotFound, "NOT_FOUND", "project not found")
	ErrCustomerNotFound  = New(http.StatusNotFound, "NOT_FOUND", "customer not found")
	ErrLicenseNotFound   = New(http.StatusNotFound, "NOT_FOUND", "license not found")
	ErrActivationMissing = New(http.StatusNotFound, "NOT_FOUND", "activation not found")
)

// Integrity
var (
	ErrBadSignature      = New(http.StatusBadRequest, "BAD_SIGNATURE", "signature does not match payload")
	ErrMissingEnv        = New(http.StatusInternalServerError, "MISSING_ENV", "license signing keys are not configured")
	ErrLicenseNotStarted = New(http.StatusBadRequest, "LICENSE_NOT_STARTED", "license has no validity window yet")
)

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 for unknown errors.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the code for err, or "" for infrastructure errors.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
