package camera

import (
	"context"
	"sync/atomic"
)

// Future holds the single terminal outcome of an asynchronous operation
type Future[T any] struct {
	resolved atomic.Bool
	done     chan struct{}
	value    T
	err      error
}

// NewFuture creates an unresolved future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve sets the outcome. Only the first call has an effect; it returns
// false for every later call.
func (f *Future[T]) Resolve(value T, err error) bool {
	if !f.resolved.CompareAndSwap(false, true) {
		return false
	}
	f.value = value
	f.err = err
	close(f.done)
	return true
}

// Done is closed once the future is resolved
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has been resolved
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future is resolved or ctx is done
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
