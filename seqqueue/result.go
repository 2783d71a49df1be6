/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue

import (
	"context"
	"sync"
)

// Result is a handle for a single queued task. It is resolved exactly once,
// either with the task's value or with a terminal error (*TaskError, ErrTimeout,
// or ErrCancelled). All methods are safe for concurrent use.
type Result[V any] struct {
	mu       sync.Mutex
	resolved bool
	value    V
	err      error
	done     chan struct{}
}

func newResult[V any]() *Result[V] {
	return &Result[V]{done: make(chan struct{})}
}

// resolve assigns the final value and error. Only the first call takes effect;
// it reports whether this call was the one that resolved the handle.
func (r *Result[V]) resolve(value V, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	r.value = value
	r.err = err
	close(r.done)
	return true
}

// Done returns a channel that is closed when the handle is resolved.
func (r *Result[V]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the handle is resolved or the passed context is done.
// On resolution it returns the task's value and error,
// on context cancellation the context's error.
func (r *Result[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
