package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Lookup
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Admission: expected, frequent outcomes, not faults. Closed and Wait
	// stay distinct so callers can render the right fallback content.
	ErrCodeAdmissionClosed ErrorCode = "ADMISSION_CLOSED"
	ErrCodeAdmissionWait   ErrorCode = "ADMISSION_WAIT"

	// Callback
	ErrCodeAmountMismatch ErrorCode = "AMOUNT_MISMATCH"
	ErrCodeAlreadyUsed    ErrorCode = "ALREADY_USED"

	// External wallet
	ErrCodeUpstreamInvoice ErrorCode = "UPSTREAM_INVOICE_ERROR"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Authentication
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AdmissionClosed() *AppError {
	return New(ErrCodeAdmissionClosed, "Payment not allowed outside opening hours")
}

func AdmissionWait() *AppError {
	return New(ErrCodeAdmissionWait, "Payment not allowed due to recent payment")
}

func AmountMismatch(expectedMsat int64) *AppError {
	return New(ErrCodeAmountMismatch, fmt.Sprintf("Amount mismatch. Expected %d msats.", expectedMsat))
}

func AlreadyUsed() *AppError {
	return New(ErrCodeAlreadyUsed, "Payment already used.")
}

func UpstreamInvoice(cause error) *AppError {
	return Wrap(ErrCodeUpstreamInvoice, cause.Error(), cause)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// AsAppError attempts to extract an AppError from an error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given structured code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
