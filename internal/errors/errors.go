// Package errors provides standardized errors that express the intent of a failure
// rather than the client library that produced it. Use cases classify failures with
// these sentinels and callers decide whether a failure is fatal, retryable or ignorable.
package errors

import (
	"errors"
	"fmt"
)

// Standard errors shared by the notification pipeline.
var (
	// ErrInvalidInput indicates the input data is malformed or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnection indicates an external system (broker or status store) could not be reached.
	ErrConnection = errors.New("connection error")

	// ErrNotStarted indicates an operation required a started component.
	ErrNotStarted = errors.New("not started")

	// ErrUnknownEventType indicates an event type without a registered handler.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrClosed indicates the component was already closed.
	ErrClosed = errors.New("closed")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is like Wrap but formats the message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
