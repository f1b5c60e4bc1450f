// Package apperr defines the error kinds shared by every layer of the pipeline.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal        Kind = "internal"
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindExternalService Kind = "external_service"
)

// Kind sentinels for errors.Is.
var (
	ErrInternal        = &Error{Kind: KindInternal}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrExternalService = &Error{Kind: KindExternalService}
)

// Error carries a kind, a human readable message and the underlying cause.
// Attempts is set for external calls that went through a retry policy.
type Error struct {
	Kind     Kind
	Message  string
	Attempts uint
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

func External(message string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: message, Err: err}
}

// ExternalAfter reports an external failure that survived attempts tries.
func ExternalAfter(message string, attempts uint, err error) *Error {
	return &Error{Kind: KindExternalService, Message: message, Attempts: attempts, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
