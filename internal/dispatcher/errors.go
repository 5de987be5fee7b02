package dispatcher

import (
	"errors"
	"fmt"
)

// ErrClosed is the cause of Cancelled errors produced by a shutdown.
var ErrClosed = errors.New("dispatcher closed")

// executionFailureError is an error raised by the inference call itself.
type executionFailureError struct {
	requestID string
	modelID   string
	err       error
}

func (e executionFailureError) Error() string {
	return fmt.Sprintf("execution failed: request %s on %s: %v", e.requestID, e.modelID, e.err)
}

func (e executionFailureError) Unwrap() error { return e.err }

func (executionFailureError) Temporary() bool { return false }

// ErrExecutionFailure wraps cause as an execution failure.
func ErrExecutionFailure(requestID, modelID string, cause error) error {
	return executionFailureError{requestID: requestID, modelID: modelID, err: cause}
}

// IsExecutionFailure reports whether err came from a failed inference call.
func IsExecutionFailure(err error) bool {
	var e executionFailureError
	return errors.As(err, &e)
}

// cancelledError is the terminal state of a request whose caller gave up or
// whose dispatcher shut down before it ran.
type cancelledError struct {
	requestID string
	cause     error
}

func (e cancelledError) Error() string {
	return fmt.Sprintf("request %s cancelled: %v", e.requestID, e.cause)
}

func (e cancelledError) Unwrap() error { return e.cause }

func (cancelledError) Temporary() bool { return false }

// ErrCancelled builds a cancelled outcome for requestID.
func ErrCancelled(requestID string, cause error) error {
	return cancelledError{requestID: requestID, cause: cause}
}

// IsCancelled reports whether err is a cancelled outcome.
func IsCancelled(err error) bool {
	var e cancelledError
	return errors.As(err, &e)
}
