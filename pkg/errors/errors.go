package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Tokens
	ErrInvalidSigningMethod = errors.New("invalid token signing method")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")

	// Auth
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrMissingConfirmation = errors.New("wipe confirmation is required")

	// Parts
	ErrNotFound          = errors.New("record not found")
	ErrValidation        = errors.New("validation error")
	ErrDuplicatePartID   = errors.New("part id already exists")
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrInvalidState      = errors.New("invalid part state")

	// Files
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrConversionFailed    = errors.New("model conversion failed")
	ErrConversionPending   = errors.New("model conversion in progress")
)

// statusBySentinel maps domain errors to HTTP codes. Order matters only for
// errors that wrap more than one sentinel.
var statusBySentinel = []struct {
	err  error
	code int
}{
	{ErrValidation, http.StatusBadRequest},
	{ErrMissingConfirmation, http.StatusBadRequest},
	{ErrUnsupportedFileType, http.StatusBadRequest},
	{ErrFileTooLarge, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrInvalidToken, http.StatusUnauthorized},
	{ErrTokenExpired, http.StatusUnauthorized},
	{ErrInvalidSigningMethod, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrNotFound, http.StatusNotFound},
	{ErrConversionPending, http.StatusNotFound},
	{ErrDuplicatePartID, http.StatusConflict},
	{ErrInvalidTransition, http.StatusConflict},
	{ErrInvalidState, http.StatusConflict},
	{ErrConversionFailed, http.StatusUnprocessableEntity},
}

// StatusCode returns the HTTP status for err, or 500 for unknown errors.
func StatusCode(err error) int {
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return http.StatusInternalServerError
}

// HttpError carries a user-facing message plus the underlying cause for logs.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Context map[string]interface{}
	Details interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(code int, message string, err error, ctx map[string]interface{}) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Context: ctx}
}

// FieldError is a validation failure bound to a single input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

func NewFieldError(field, format string, args ...interface{}) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}
