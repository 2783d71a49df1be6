/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a submission or its task does not finish within the queue timeout.
var ErrTimeout = errors.New("request processing timed out")

// ErrCancelled is returned for requests that were still pending when the queue was cleaned up.
var ErrCancelled = errors.New("request cancelled")

// ErrClosed is returned for submissions made after the queue was cleaned up.
var ErrClosed = errors.New("queue is closed")

// TaskError wraps an error returned (or a panic raised) by a task,
// so that callers can tell task failures apart from queue-level errors.
type TaskError struct {
	Err error
}

// Error returns a string representation of the error.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task failed: %s", e.Err.Error())
}

// Unwrap returns the underlying task error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
