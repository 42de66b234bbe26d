// Package failure defines the error taxonomy shared by the retry engine and
// the workflow step driver.
package failure

import (
	"errors"
	"fmt"
)

// Kind tags a step failure.
type Kind int

const (
	// KindStepFailure is an error raised by a step body. Retryable.
	KindStepFailure Kind = iota
	// KindTimeout is a step body that did not settle before its timeout. Retryable.
	KindTimeout
	// KindTerminate stops the whole run. Never retried.
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindStepFailure:
		return "step_failure"
	case KindTimeout:
		return "timeout"
	case KindTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TimeoutMessage is the message carried by every timeout failure.
const TimeoutMessage = "Step timeout"

// ErrStepTimeout is matched by errors.Is for timeout failures.
var ErrStepTimeout = errors.New(TimeoutMessage)

// Error is a classified step failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry engine may attempt the operation again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindStepFailure, KindTimeout:
		return true
	case KindTerminate:
		return false
	default:
		return false
	}
}

// Step wraps err as a retryable step failure, preserving its message. Errors
// that are already classified are returned unchanged.
func Step(err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	return &Error{Kind: KindStepFailure, Message: err.Error(), Err: err}
}

// Stepf builds a step failure from a format string.
func Stepf(format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)

	return &Error{Kind: KindStepFailure, Message: err.Error(), Err: errors.Unwrap(err)}
}

// Timeout returns a new timeout failure.
func Timeout() *Error {
	return &Error{Kind: KindTimeout, Message: TimeoutMessage, Err: ErrStepTimeout}
}

// Terminate returns an error that stops the run without being retried.
func Terminate(message string) *Error {
	return &Error{Kind: KindTerminate, Message: message}
}

// TerminateWith classifies err as terminal.
func TerminateWith(err error) *Error {
	return &Error{Kind: KindTerminate, Message: err.Error(), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}

	return 0, false
}

// IsTerminate reports whether err must stop the run.
func IsTerminate(err error) bool {
	kind, ok := KindOf(err)

	return ok && kind == KindTerminate
}

// IsTimeout reports whether err is a step timeout.
func IsTimeout(err error) bool {
	kind, ok := KindOf(err)

	return ok && kind == KindTimeout
}
