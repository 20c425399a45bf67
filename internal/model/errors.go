package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storefront error taxonomy.
// Use errors.Is() to check against these.
var (
	ErrCatalogFormat        = errors.New("catalog format")
	ErrCatalogLoad          = errors.New("catalog load failed")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrValidation           = errors.New("validation failed")
	ErrSubmissionInProgress = errors.New("submission in progress")
	ErrTransport            = errors.New("transport error")
	ErrNotFound             = errors.New("not found")
	ErrRateLimited          = errors.New("rate limited")
)

// Error is the structured error surfaced to buyers.
// Implements error interface and supports unwrapping.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"` // Set for validation errors

	StatusCode     int   `json:"-"` // HTTP status for the storefront API
	UpstreamStatus int   `json:"-"` // Intake/catalog response status, 0 when no response was received
	Err            error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isSentinel(err error) bool {
	switch err {
	case ErrCatalogFormat, ErrCatalogLoad, ErrEmptyCart, ErrValidation,
		ErrSubmissionInProgress, ErrTransport, ErrNotFound, ErrRateLimited:
		return true
	}
	return false
}

// NewCatalogFormatError reports a catalog document that lacks an items array
// or declares an unsupported schema.
func NewCatalogFormatError(reason string) *Error {
	return &Error{
		Code:       "CATALOG_FORMAT",
		Message:    fmt.Sprintf("malformed catalog: %s", reason),
		StatusCode: 502,
		Err:        ErrCatalogFormat,
	}
}

// NewCatalogLoadError reports a failed catalog fetch. status is the HTTP
// status of the catalog source, or 0 for network failures.
func NewCatalogLoadError(status int, err error) *Error {
	return &Error{
		Code:           "CATALOG_UNAVAILABLE",
		Message:        "failed to load catalog",
		StatusCode:     502,
		UpstreamStatus: status,
		Err:            fmt.Errorf("%w: %v", ErrCatalogLoad, err),
	}
}

// NewEmptyCartError rejects a submission with no line items.
func NewEmptyCartError() *Error {
	return &Error{
		Code:       "EMPTY_CART",
		Message:    "add at least one item before submitting",
		StatusCode: 422,
		Err:        ErrEmptyCart,
	}
}

// NewValidationError names the first missing or invalid field.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("%s %s", field, reason),
		Field:      field,
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewSubmissionInProgressError rejects a re-entrant submission.
func NewSubmissionInProgressError() *Error {
	return &Error{
		Code:       "SUBMISSION_IN_PROGRESS",
		Message:    "an order is already being submitted",
		StatusCode: 409,
		Err:        ErrSubmissionInProgress,
	}
}

// NewTransportError reports a failed delivery to the intake endpoint.
// status is 0 when no response was received (network error or timeout).
func NewTransportError(status int, detail string, err error) *Error {
	msg := "order delivery failed"
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	wrapped := ErrTransport
	if err != nil {
		wrapped = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &Error{
		Code:           "TRANSPORT_ERROR",
		Message:        msg,
		StatusCode:     502,
		UpstreamStatus: status,
		Err:            wrapped,
	}
}

// NewNotFoundError creates a 404 error for missing products or sessions.
func NewNotFoundError(resource string) *Error {
	return &Error{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewRateLimitError asks the buyer to retry order submission later.
func NewRateLimitError() *Error {
	return &Error{
		Code:       "RATE_LIMITED",
		Message:    "too many orders right now, try again shortly",
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}
