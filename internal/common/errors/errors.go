// Package errors provides the typed business-error taxonomy for the matching
// core and the connection lifecycle.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidParameter          ErrorCode = "INVALID_PARAMETER"
	ErrCodeIneligibleTicket          ErrorCode = "INELIGIBLE_TICKET"
	ErrCodeNotAuthorized             ErrorCode = "NOT_AUTHORIZED"
	ErrCodeInvalidState              ErrorCode = "INVALID_STATE"
	ErrCodeDuplicateActiveConnection ErrorCode = "DUPLICATE_ACTIVE_CONNECTION"
	ErrCodeBlocked                   ErrorCode = "BLOCKED"
	ErrCodeNotFound                  ErrorCode = "NOT_FOUND"
	ErrCodeInternal                  ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured, non-retriable business error. It is
// returned to the caller immediately; the core never retries on its own.
type DomainError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("DomainError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidParameterError flags an out-of-range pagination or threshold input.
func NewInvalidParameterError(param, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeInvalidParameter,
		Message:    fmt.Sprintf("Invalid parameter '%s'", param),
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
		Timestamp:  time.Now().UTC(),
	}
}

// NewIneligibleTicketError flags a non-active or role-mismatched ticket passed
// into scoring. With correct pre-filtering this should not occur.
func NewIneligibleTicketError(ticketID, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeIneligibleTicket,
		Message:    "Ticket is not eligible for matching",
		Details:    fmt.Sprintf("ticketId: %s, %s", ticketID, details),
		HTTPStatus: http.StatusUnprocessableEntity,
		Timestamp:  time.Now().UTC(),
	}
}

// NewNotAuthorizedError flags an actor acting on a connection they may not act on.
func NewNotAuthorizedError(details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotAuthorized,
		Message:    "Actor is not authorized for this action",
		Details:    details,
		HTTPStatus: http.StatusForbidden,
		Timestamp:  time.Now().UTC(),
	}
}

// NewInvalidStateError flags a lifecycle transition attempted from a state
// that does not allow it, including the lost-race case under concurrent
// responses.
func NewInvalidStateError(connectionID, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeInvalidState,
		Message:    "Connection is not in a state that allows this transition",
		Details:    fmt.Sprintf("connectionId: %s, %s", connectionID, details),
		HTTPStatus: http.StatusConflict,
		Timestamp:  time.Now().UTC(),
	}
}

// NewDuplicateActiveConnectionError flags a proposal against a pair that
// already has a pending or accepted connection.
func NewDuplicateActiveConnectionError(userA, userB string) *DomainError {
	return &DomainError{
		Code:       ErrCodeDuplicateActiveConnection,
		Message:    "An active connection already exists for this pair",
		Details:    fmt.Sprintf("pair: %s, %s", userA, userB),
		HTTPStatus: http.StatusConflict,
		Timestamp:  time.Now().UTC(),
	}
}

// NewBlockedError flags an action against a pair where one party has blocked
// the other.
func NewBlockedError(details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeBlocked,
		Message:    "This pair is blocked",
		Details:    details,
		HTTPStatus: http.StatusForbidden,
		Timestamp:  time.Now().UTC(),
	}
}

// NewNotFoundError flags an unknown id.
func NewNotFoundError(resource, id string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    fmt.Sprintf("id: %s", id),
		HTTPStatus: http.StatusNotFound,
		Timestamp:  time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected infrastructure failure.
func NewInternalError(err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeInternal,
		Message:    "Unexpected internal error",
		Details:    err.Error(),
		HTTPStatus: http.StatusInternalServerError,
		Timestamp:  time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf extracts the error code, or ErrCodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// HTTPStatusOf returns the HTTP status an error maps to, defaulting to 500
// for untyped errors.
func HTTPStatusOf(err error) int {
	var de *DomainError
	if stderrors.As(err, &de) && de.HTTPStatus != 0 {
		return de.HTTPStatus
	}
	return http.StatusInternalServerError
}
