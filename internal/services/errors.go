package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the gateway. Handlers translate them to status codes.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUploadFailed = errors.New("upload failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrServer       = errors.New("server error")
)

// Error is a gateway failure with a message that is safe to show to the client
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is matches the error kind so callers can use errors.Is(err, ErrNotFound)
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(message string) error {
	return &Error{Kind: ErrValidation, Message: message}
}

func notFoundError(message string) error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func unauthorizedError(message string) error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

func uploadError(err error) error {
	return &Error{Kind: ErrUploadFailed, Message: "Failed to upload image. Please try again.", Err: err}
}

func serverError(err error) error {
	return &Error{Kind: ErrServer, Message: "Internal server error", Err: err}
}
