package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the orchestrator can surface. Nothing
// below the orchestrator escapes unclassified.
type ErrorKind string

const (
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindRateLimited     ErrorKind = "rate_limited"
	KindConnectError    ErrorKind = "connect_error"
	KindTimeoutExceeded ErrorKind = "timeout_exceeded"
	KindProtocolError   ErrorKind = "protocol_error"
	KindGeneratorError  ErrorKind = "generator_error"
	KindTicketExpired   ErrorKind = "ticket_expired"
	KindTicketNotFound  ErrorKind = "ticket_not_found"
)

// Retryable reports whether the kind represents a transient condition the
// caller may reasonably retry against.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindConnectError, KindTimeoutExceeded:
		return true
	}
	return false
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a classified error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify extracts the classified error from err, wrapping anything
// unclassified under the given fallback kind.
func Classify(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: fallback, Message: err.Error()}
}

// ErrInvalidTransition guards the ticket state machine.
var ErrInvalidTransition = errors.New("invalid ticket transition")
