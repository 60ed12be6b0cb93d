// Package apperr holds the error kinds shared by every feature package and
// their mapping to HTTP status codes.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream error")
)

// Error carries a client-facing message and the kind it belongs to.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is lets errors.Is match both the kind and another *Error with the same message.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && t.Message == e.Message
	}
	return false
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(msg string) *Error   { return &Error{Kind: ErrValidation, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: ErrNotFound, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: ErrUnauthorized, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: ErrConflict, Message: msg} }
func Upstream(msg string) *Error     { return &Error{Kind: ErrUpstream, Message: msg} }

// Status maps an error to the HTTP status code handlers should answer with.
func Status(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// Message returns the client-facing message for err. Server errors never leak details.
func Message(err error) string {
	if Status(err) >= fiber.StatusInternalServerError {
		return "Internal server error"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
