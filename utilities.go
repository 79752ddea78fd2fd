package tomorrowland

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TimeoutError is the error channel of a promise produced by Timeout: either
// the wrapped rejection of the source promise, or a timed-out marker.
type TimeoutError[E any] struct {
	err      *E
	timedOut bool
}

func newWrappedTimeoutError[E any](err E) *TimeoutError[E] {
	return &TimeoutError[E]{err: &err}
}

func newTimedOutError[E any]() *TimeoutError[E] {
	return &TimeoutError[E]{timedOut: true}
}

// TimedOut reports whether the source promise failed to resolve in time.
func (e *TimeoutError[E]) TimedOut() bool { return e.timedOut }

// Rejected returns the source promise's rejection error, if that is what
// this error wraps.
func (e *TimeoutError[E]) Rejected() (E, bool) {
	if e.err == nil {
		var zero E
		return zero, false
	}
	return *e.err, true
}

func (e *TimeoutError[E]) Error() string {
	if e.timedOut {
		return Namespace + ": operation timed out"
	}
	return fmt.Sprint(*e.err)
}

// Unwrap exposes a wrapped rejection for errors.Is/As when E is an error.
func (e *TimeoutError[E]) Unwrap() error {
	if e.err != nil {
		if wrapped, ok := any(*e.err).(error); ok {
			return wrapped
		}
	}
	return nil
}

func (e *TimeoutError[E]) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.err != nil {
			_, _ = fmt.Fprintf(s, "%+v", *e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// Delay returns a promise that adopts the source's outcome after d has
// elapsed, measured from the source's resolution. Requesting cancellation of
// the returned promise cancels it immediately and releases the timer, in
// addition to the usual upstream propagation.
func (p *Promise[V, E]) Delay(onCtx *Context, d time.Duration) *Promise[V, E] {
	child, cb := newObserverChild[V, E](p.b, p.b, callbackConfig{}, true)
	var timer atomic.Pointer[time.Timer]
	cb.pushCancelHandler(immediateContext, func() {
		cb.resolveCancelled()
		if t := timer.Load(); t != nil {
			t.Stop()
		}
	})
	p.b.pushCallback(immediateContext, func(value *V, err *E) {
		t := time.AfterFunc(d, func() {
			onCtx.run(func() { mirror(cb, value, err) })
		})
		timer.Store(t)
		if cb.isTerminal() {
			t.Stop()
		}
	})
	return child
}

// Timeout bounds the source's resolution time. If the source resolves within
// d the returned promise adopts its outcome, wrapping any rejection in a
// TimeoutError. Otherwise the returned promise rejects as timed out and the
// source receives a cancel request.
func Timeout[V, E any](p *Promise[V, E], onCtx *Context, d time.Duration) *Promise[V, *TimeoutError[E]] {
	parent := p.b
	child, cb := newObserverChild[V, *TimeoutError[E]](parent, parent, callbackConfig{}, true)
	var zeroV V
	timer := time.AfterFunc(d, func() {
		onCtx.run(func() {
			if cb.resolve(resultError, zeroV, newTimedOutError[E]()) {
				parent.requestCancel()
			}
		})
	})
	cb.pushCancelHandler(immediateContext, func() { timer.Stop() })
	parent.pushCallback(onCtx, func(value *V, err *E) {
		timer.Stop()
		switch {
		case value != nil:
			cb.resolve(resultValue, *value, nil)
		case err != nil:
			cb.resolve(resultError, zeroV, newWrappedTimeoutError(*err))
		default:
			cb.resolveCancelled()
		}
	})
	return child
}

// NewFulfilledAfter returns a promise that fulfills with value once d has
// elapsed. Requesting cancellation before the timer fires cancels the
// promise immediately and releases the timer.
func NewFulfilledAfter[V, E any](onCtx *Context, value V, d time.Duration) *Promise[V, E] {
	return newResolvedAfter[V, E](onCtx, d, func(b *box[V, E]) {
		var zeroE E
		b.resolve(resultValue, value, zeroE)
	})
}

// NewRejectedAfter returns a promise that rejects with err once d has
// elapsed. Requesting cancellation before the timer fires cancels the
// promise immediately and releases the timer.
func NewRejectedAfter[V, E any](onCtx *Context, err E, d time.Duration) *Promise[V, E] {
	return newResolvedAfter[V, E](onCtx, d, func(b *box[V, E]) {
		var zeroV V
		b.resolve(resultError, zeroV, err)
	})
}

// NewCancelledAfter returns a promise that cancels once d has elapsed, or
// immediately if cancellation is requested first.
func NewCancelledAfter[V, E any](onCtx *Context, d time.Duration) *Promise[V, E] {
	return newResolvedAfter[V, E](onCtx, d, func(b *box[V, E]) {
		b.resolveCancelled()
	})
}

func newResolvedAfter[V, E any](onCtx *Context, d time.Duration, resolve func(*box[V, E])) *Promise[V, E] {
	b := newBox[V, E](stateEmpty)
	timer := time.AfterFunc(d, func() {
		onCtx.run(func() { resolve(b) })
	})
	b.pushCancelHandler(immediateContext, func() {
		b.resolveCancelled()
		timer.Stop()
	})
	return newPromiseWrapper(b)
}
