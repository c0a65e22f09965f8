// Package async holds the tick-side completion primitives used by the engine:
// one-shot futures for decoder callbacks and a deferred queue for work that has
// to wait for the next tick.
package async

import "errors"

// ErrCanceled is the error reported by Err on a canceled future.
var ErrCanceled = errors.New("async: canceled")

// Future is a one-shot completion. Handlers registered with Then run at most
// once and are dropped as soon as they have fired, so a handler can never be
// triggered by a later, unrelated request.
//
// A Future is not safe for concurrent use. Settle it from the goroutine that
// drives the ticks.
type Future[T any] struct {
	settled  bool
	canceled bool
	value    T
	err      error
	handlers []func(T, error)
}

// NewFuture returns a pending future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Failed returns a future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. It reports false if the future was
// already settled or canceled.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. It reports false if the future was
// already settled or canceled.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	if err == nil {
		err = errors.New("async: rejected with nil error")
	}
	return f.settle(zero, err)
}

// Cancel settles the future without running any handler. Later calls to
// Resolve or Reject are ignored.
func (f *Future[T]) Cancel() bool {
	if f.settled {
		return false
	}
	f.settled = true
	f.canceled = true
	f.err = ErrCanceled
	f.handlers = nil
	return true
}

// Then registers fn. If the future is already settled fn runs immediately,
// unless the future was canceled.
func (f *Future[T]) Then(fn func(T, error)) {
	if f.settled {
		if !f.canceled {
			fn(f.value, f.err)
		}
		return
	}
	f.handlers = append(f.handlers, fn)
}

// Done reports whether the future is settled.
func (f *Future[T]) Done() bool { return f.settled }

// Canceled reports whether the future was canceled.
func (f *Future[T]) Canceled() bool { return f.canceled }

// Result returns the settled value and error. ok is false while pending.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	return f.value, f.err, f.settled
}

// Err returns the settlement error, or nil while pending or on success.
func (f *Future[T]) Err() error { return f.err }

func (f *Future[T]) settle(v T, err error) bool {
	if f.settled {
		return false
	}
	f.settled = true
	f.value = v
	f.err = err

	handlers := f.handlers
	f.handlers = nil
	for _, h := range handlers {
		h(v, err)
	}
	return true
}
