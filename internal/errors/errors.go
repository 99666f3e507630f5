package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a collecte error code.
type ErrorCode string

const (
	ErrUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"  // 415
	ErrParseFailure       ErrorCode = "PARSE_FAILURE"       // 422
	ErrNetworkFailure     ErrorCode = "NETWORK_FAILURE"     // 502
	ErrApplicationFailure ErrorCode = "APPLICATION_FAILURE" // 400 unless the server said otherwise
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrCSRFRejected       ErrorCode = "CSRF_REJECTED"       // 403
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewUnsupportedFormat creates a 415 error for a file whose extension is not recognised.
func NewUnsupportedFormat(name string) *AppError {
	return &AppError{
		Code:    ErrUnsupportedFormat,
		Status:  415,
		Message: fmt.Sprintf("unsupported file format: %s (expected .csv, .xlsx or .xls)", name),
		Details: map[string]any{"file": name},
	}
}

// NewParseFailure creates a 422 error for bytes that could not be decoded into a grid.
func NewParseFailure(name string, err error) *AppError {
	msg := fmt.Sprintf("could not read %s", name)
	if err != nil {
		msg = fmt.Sprintf("could not read %s: %v", name, err)
	}
	return &AppError{
		Code:    ErrParseFailure,
		Status:  422,
		Message: msg,
		Details: map[string]any{"file": name},
		Err:     err,
	}
}

// NewNetworkFailure creates a 502 error for a failed request or a non-OK status.
func NewNetworkFailure(url string, status int, err error) *AppError {
	var msg string
	switch {
	case err != nil:
		msg = fmt.Sprintf("request to %s failed: %v", url, err)
	default:
		msg = fmt.Sprintf("request to %s returned HTTP %d", url, status)
	}
	details := map[string]any{"url": url}
	if status != 0 {
		details["status"] = status
	}
	return &AppError{
		Code:    ErrNetworkFailure,
		Status:  502,
		Message: msg,
		Details: details,
		Err:     err,
	}
}

// NewApplicationFailure creates an error for a server answer carrying success:false.
// status is the HTTP status of that answer; 0 or 2xx are reported as 400.
func NewApplicationFailure(msg string, status int) *AppError {
	if msg == "" {
		msg = "the server rejected the request"
	}
	if status < 400 {
		status = 400
	}
	return &AppError{
		Code:    ErrApplicationFailure,
		Status:  status,
		Message: msg,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewPageOutOfRange creates a 400 error for a page outside [1, totalPages].
func NewPageOutOfRange(page, totalPages int) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: fmt.Sprintf("page %d is out of range (1..%d)", page, totalPages),
		Details: map[string]any{"page": page, "total_pages": totalPages},
	}
}

// NewNotFound creates a 404 error for an unknown resource.
func NewNotFound(kind, identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewCSRFRejected creates a 403 error for a missing or mismatched anti-forgery token.
func NewCSRFRejected() *AppError {
	return &AppError{
		Code:    ErrCSRFRejected,
		Status:  403,
		Message: "CSRF token missing or incorrect",
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if an error is (or wraps) an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AppError
	if errors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As returns the AppError in err's chain, or wraps err as INTERNAL.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var aErr *AppError
	if errors.As(err, &aErr) {
		return aErr
	}
	return NewInternal(err)
}

// UserMessage returns the text shown in inline error states.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var aErr *AppError
	if errors.As(err, &aErr) {
		return aErr.Message
	}
	return err.Error()
}
