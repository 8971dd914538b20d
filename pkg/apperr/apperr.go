package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies a failure for routing and status mapping.
type Kind int

const (
	// KindValidation malformed input, rejected to the originator only
	KindValidation Kind = iota + 1
	// KindForbidden authorization violation, rejected to the originator only
	KindForbidden
	// KindNotFound reference to a missing or tombstoned message
	KindNotFound
	// KindStoreUnavailable transient persistence failure, retryable via REST
	KindStoreUnavailable
	// KindChannelUnavailable recipient has no live connection; a normal miss
	KindChannelUnavailable
)

// Error carries a kind, a message and an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// Validation creates a KindValidation error.
func Validation(msg string) error {
	return &Error{kind: KindValidation, msg: msg}
}

// Forbidden creates a KindForbidden error.
func Forbidden(msg string) error {
	return &Error{kind: KindForbidden, msg: msg}
}

// NotFound creates a KindNotFound error.
func NotFound(msg string) error {
	return &Error{kind: KindNotFound, msg: msg}
}

// StoreUnavailable wraps a persistence failure.
func StoreUnavailable(cause error) error {
	return &Error{kind: KindStoreUnavailable, msg: "message store unavailable", cause: cause}
}

// ChannelUnavailable creates a KindChannelUnavailable error.
func ChannelUnavailable(msg string) error {
	return &Error{kind: KindChannelUnavailable, msg: msg}
}

// KindOf extracts the Kind from err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to a fiber status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindStoreUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
