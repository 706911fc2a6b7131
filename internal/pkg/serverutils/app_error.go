package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind is the closed set of failure categories the gateway can report.
// Handlers dispatch on the discriminant, not on duck-typed fields.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthorized
	KindNotFound
	KindExternalProcess
	KindUpstreamStream
	KindPersistence
)

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, optional
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error kind to its HTTP status code.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func NewExternalProcessError(message string, err error) *AppError {
	return &AppError{Kind: KindExternalProcess, Message: message, Err: err}
}

func NewUpstreamStreamError(message string, err error) *AppError {
	return &AppError{Kind: KindUpstreamStream, Message: message, Err: err}
}

func NewPersistenceError(message string, err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: message, Err: err}
}

// AsAppError unwraps err into an *AppError when possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
