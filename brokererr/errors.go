// Package brokererr defines the structured error taxonomy shared by every
// broker package: a fixed set of kinds with numeric codes, retryability,
// and circuit-breaker accounting rules.
package brokererr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fixed error kinds a broker call can fail with.
type Kind string

const (
	KindServiceNotFound      Kind = "ServiceNotFound"
	KindServiceNotAvailable  Kind = "ServiceNotAvailable"
	KindRequestTimeout       Kind = "RequestTimeout"
	KindRequestSkipped       Kind = "RequestSkipped"
	KindValidationError      Kind = "ValidationError"
	KindMaxCallLevel         Kind = "MaxCallLevel"
	KindCustomError          Kind = "CustomError"
)

// Error is the structured error type returned by every broker operation.
// It carries a Kind, a numeric Code and, where applicable, structured Data
// and the NodeID the failure originated from.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	NodeID  string         `json:"nodeID,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s (code %d)", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a *Error with the same Kind. Two errors of
// the same kind but different data/message are still considered equal for
// the purposes of errors.Is, matching how callers branch on kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the pipeline may re-enter call for this error.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRequestTimeout:
		return true
	case KindCustomError:
		return e.Code >= 500
	default:
		return false
	}
}

// CountsAsFailure reports whether this error should increment the owning
// endpoint's circuit-breaker failure counter, given the breaker's
// configured failureOnTimeout/failureOnReject flags.
func (e *Error) CountsAsFailure(failureOnTimeout, failureOnReject bool) bool {
	switch e.Kind {
	case KindRequestTimeout:
		return failureOnTimeout
	case KindCustomError:
		return failureOnReject && e.Code >= 500
	default:
		return false
	}
}

// ServiceNotFound builds the "not registered" error for an unknown action.
func ServiceNotFound(action string) *Error {
	return &Error{
		Kind:    KindServiceNotFound,
		Code:    404,
		Message: fmt.Sprintf("Action '%s' is not registered!", action),
		Data:    map[string]any{"action": action},
	}
}

// ServiceNotFoundOnNode builds the "not available on <node>" variant used
// when a caller pins opts.nodeID to a node that doesn't host the action.
func ServiceNotFoundOnNode(action, nodeID string) *Error {
	return &Error{
		Kind:    KindServiceNotFound,
		Code:    404,
		Message: fmt.Sprintf("Action '%s' is not available on node '%s'!", action, nodeID),
		Data:    map[string]any{"action": action, "nodeID": nodeID},
		NodeID:  nodeID,
	}
}

// ServiceNotAvailable builds the error used when an action is registered
// but every endpoint is circuit-open (or all endpoints have disconnected).
func ServiceNotAvailable(action string) *Error {
	return &Error{
		Kind:    KindServiceNotAvailable,
		Code:    404,
		Message: fmt.Sprintf("Action '%s' is not available!", action),
		Data:    map[string]any{"action": action},
	}
}

// RequestTimeout builds the timeout sentinel error.
func RequestTimeout(action string, timeoutMs int64) *Error {
	return &Error{
		Kind:    KindRequestTimeout,
		Code:    504,
		Message: fmt.Sprintf("Request is timed out when calling '%s' action.", action),
		Data:    map[string]any{"action": action, "timeout": timeoutMs},
	}
}

// RequestSkipped builds the error raised when a call is abandoned because
// a prior retry attempt already resolved the caller's context.
func RequestSkipped(action string) *Error {
	return &Error{
		Kind:    KindRequestSkipped,
		Code:    514,
		Message: fmt.Sprintf("Calling '%s' is skipped because of timeout.", action),
		Data:    map[string]any{"action": action},
	}
}

// ValidationError builds a parameter-validation failure. cause, if set, is
// retrievable via errors.Unwrap.
func ValidationError(message string, data map[string]any, cause error) *Error {
	return &Error{
		Kind:    KindValidationError,
		Code:    422,
		Message: message,
		Data:    data,
		cause:   cause,
	}
}

// MaxCallLevel builds the error raised when a nested call would exceed the
// broker's configured maxCallLevel.
func MaxCallLevel(action string, level int) *Error {
	return &Error{
		Kind:    KindMaxCallLevel,
		Code:    500,
		Message: fmt.Sprintf("Request level is reached the limit (%d) on '%s' action.", level, action),
		Data:    map[string]any{"action": action, "level": level},
	}
}

// CustomError builds a generic handler error with an arbitrary HTTP-style
// code. Bare strings and other panics are coerced to this with code 500.
func CustomError(message string, code int) *Error {
	return &Error{Kind: KindCustomError, Code: code, Message: message}
}

// Wrap coerces an arbitrary error into *Error: passes through an existing
// *Error unchanged, otherwise wraps it as a CustomError with code 500,
// preserving cause for errors.Unwrap.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindCustomError, Code: 500, Message: err.Error(), cause: err}
}

// FromString coerces a bare message (as a handler might panic with) into a
// CustomError(msg, 500).
func FromString(msg string) *Error {
	return &Error{Kind: KindCustomError, Code: 500, Message: msg}
}
