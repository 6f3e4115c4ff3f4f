package domain

import (
	"errors"
	"net/http"
)

// Error kinds, matched with errors.Is
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrBlocked           = errors.New("blocked relation")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidCard       = errors.New("invalid card")
	ErrAlreadySettled    = errors.New("already settled")
	ErrAlreadyExists     = errors.New("already exists")
	ErrGatewayTimeout    = errors.New("gateway timeout")
	ErrConflict          = errors.New("conflict")

	// ErrConcurrentUpdate signals a lost optimistic-lock race; callers retry it.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// AppError is a domain error carrying the HTTP status chosen by the raiser
type AppError struct {
	Status  int    // HTTP status code
	Message string // Client facing message
	Kind    error  // One of the Err* kinds
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Kind }

// NewError creates an AppError
func NewError(status int, kind error, message string) *AppError {
	return &AppError{Status: status, Message: message, Kind: kind}
}

// NotFound builds a 404 error
func NotFound(message string) *AppError {
	return NewError(http.StatusNotFound, ErrNotFound, message)
}

// Invalid builds a 400 validation error
func Invalid(message string) *AppError {
	return NewError(http.StatusBadRequest, ErrValidation, message)
}

// Forbidden builds a 403 error
func Forbidden(message string) *AppError {
	return NewError(http.StatusForbidden, ErrForbidden, message)
}

// AsAppError extracts the AppError from err, if any
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
