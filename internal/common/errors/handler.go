// internal/common/errors/handler.go
package errors

import (
	stderrors "errors"
	"time"
)

// ErrorResponse is the JSON body the request-handling layer returns for a
// failed operation.
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// ToResponse converts any error into the wire representation, normalizing
// untyped errors to INTERNAL_ERROR without leaking their details.
func ToResponse(err error) ErrorResponse {
	de := normalize(err)
	resp := ErrorResponse{
		Code:      de.Code,
		Message:   de.Message,
		Timestamp: de.Timestamp.Format(time.RFC3339),
	}
	if de.Code != ErrCodeInternal {
		resp.Details = de.Details
	}
	return resp
}

// normalize ensures we always have a DomainError.
func normalize(err error) *DomainError {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de
	}
	return NewInternalError(err)
}
