package tomorrowland

import (
	"runtime"
)

// Promise is the read side of a write-once asynchronous outcome: a value, an
// error, or cancellation. Observers attach through the operator family; each
// operator returns a new child promise mirroring the source per its
// semantics. Promises may be shared freely across goroutines.
//
// Dropping every reference to a Promise seals its observer accounting: once
// all of its propagating children have requested cancellation (or there
// never were any), the promise receives a cancel request automatically.
type Promise[V, E any] struct {
	b *box[V, E]
}

// Resolver is the write side. At most one resolution wins; later attempts
// are ignored. Dropping every reference to a Resolver without resolving
// cancels the promise.
type Resolver[V, E any] struct {
	b *box[V, E]
}

func newPromiseWrapper[V, E any](b *box[V, E]) *Promise[V, E] {
	p := &Promise[V, E]{b: b}
	runtime.SetFinalizer(p, (*Promise[V, E]).finalize)
	return p
}

func newResolverWrapper[V, E any](b *box[V, E]) *Resolver[V, E] {
	r := &Resolver[V, E]{b: b}
	runtime.SetFinalizer(r, (*Resolver[V, E]).finalize)
	return r
}

// finalize seals the observer count when the promise handle becomes
// unreachable. Internal plumbing retains the box rather than the handle, with
// two exceptions: a DelayedPromise keeps its promise handle, and the cancel
// hook of PropagatingCancellation keeps the returned handle until that
// promise resolves or receives a cancel request; until then its finalizer
// does not run.
func (p *Promise[V, E]) finalize() {
	if p.b.sealObserverCount() {
		p.b.requestCancel()
	}
}

// finalize cancels a promise abandoned by its producer.
func (r *Resolver[V, E]) finalize() {
	r.b.resolveCancelled()
}

// WithResolver returns an unresolved promise together with its write handle.
func WithResolver[V, E any]() (*Promise[V, E], *Resolver[V, E]) {
	b := newBox[V, E](stateEmpty)
	return newPromiseWrapper(b), newResolverWrapper(b)
}

// New creates a promise whose body runs on onCtx with the write handle.
// A NowOr context acts like Immediate here, letting the body observe
// IsExecutingNow from its surrounding scope.
func New[V, E any](onCtx *Context, body func(*Resolver[V, E])) *Promise[V, E] {
	if body == nil {
		panic(Namespace + ": nil promise body")
	}
	p, r := WithResolver[V, E]()
	onCtx.runBody(func() { body(r) })
	return p
}

// NewFulfilled returns a promise already fulfilled with value.
func NewFulfilled[V, E any](value V) *Promise[V, E] {
	b := newBox[V, E](stateEmpty)
	var zeroE E
	b.resolve(resultValue, value, zeroE)
	return newPromiseWrapper(b)
}

// NewRejected returns a promise already rejected with err.
func NewRejected[V, E any](err E) *Promise[V, E] {
	b := newBox[V, E](stateEmpty)
	var zeroV V
	b.resolve(resultError, zeroV, err)
	return newPromiseWrapper(b)
}

// NewCancelled returns a promise already cancelled.
func NewCancelled[V, E any]() *Promise[V, E] {
	b := newBox[V, E](stateEmpty)
	b.resolveCancelled()
	return newPromiseWrapper(b)
}

// TryGetResult returns the resolution if the promise has one. The outcome
// triple follows the convention value/nil for fulfilled, nil/err for
// rejected, and nil/nil with resolved true for cancelled.
func (p *Promise[V, E]) TryGetResult() (value *V, err *E, resolved bool) {
	return p.b.result()
}

// RequestCancel asks the promise to cancel. The request is advisory: the
// producer's cancel handlers run and may still fulfill or reject. A promise
// whose producer registered no cancel handler cancels outright.
func (p *Promise[V, E]) RequestCancel() {
	p.b.requestCancel()
}

// RequestCancelOnInvalidate arranges for the token's next invalidation to
// request cancellation of this promise.
func (p *Promise[V, E]) RequestCancelOnInvalidate(token *InvalidationToken) {
	token.subscribe(p.b)
}

// Cancellable returns a handle exposing only RequestCancel.
func (p *Promise[V, E]) Cancellable() *Cancellable {
	return &Cancellable{box: p.b}
}

// --- Resolver surface ---

// Fulfill resolves the promise with value if it is still unresolved.
func (r *Resolver[V, E]) Fulfill(value V) {
	var zeroE E
	r.b.resolve(resultValue, value, zeroE)
}

// Reject resolves the promise with err if it is still unresolved.
func (r *Resolver[V, E]) Reject(err E) {
	var zeroV V
	r.b.resolve(resultError, zeroV, err)
}

// Cancel resolves the promise as cancelled if it is still unresolved.
func (r *Resolver[V, E]) Cancel() {
	r.b.resolveCancelled()
}

// Resolve adopts an outcome triple: value wins over err, both nil cancels.
func (r *Resolver[V, E]) Resolve(value *V, err *E) {
	switch {
	case value != nil:
		r.Fulfill(*value)
	case err != nil:
		r.Reject(*err)
	default:
		r.Cancel()
	}
}

// OnCancelRequested registers a handler invoked on onCtx when cancellation
// of the promise is requested. A handler registered after the request has
// already arrived fires immediately on its context. The handler may resolve
// the promise any way it likes, including fulfilling it.
func (r *Resolver[V, E]) OnCancelRequested(onCtx *Context, handler func(*Resolver[V, E])) {
	// Coalesce onto the queue a QoS, queue, operation-queue or now-or context
	// ultimately lands on, the same destination its callbacks use. Immediate,
	// Main and Automatic report no destination and are used as given.
	ctx := onCtx
	if q, oq := onCtx.destination(); q != nil {
		ctx = QueueContext(q)
	} else if oq != nil {
		ctx = OperationQueueContext(oq)
	}
	// Capturing r keeps the write handle reachable while the handler is
	// registered; the promise stays resolvable until the request fires or
	// resolution discards the handler list.
	r.b.pushCancelHandler(ctx, func() { handler(r) })
}

// HasRequestedCancel reports whether cancellation has been requested, even
// if the promise has since resolved normally.
func (r *Resolver[V, E]) HasRequestedCancel() bool {
	return r.b.seenCancelRequest()
}

// HandleCallback returns a completion adapter for bridging callback-based
// APIs onto r. Invoked with a value it fulfills; with an error it rejects;
// with both, the value wins and the error is ignored; with neither it
// rejects with ErrAPIMismatch.
func HandleCallback[V any](r *Resolver[V, error]) func(value *V, err error) {
	// The adapter keeps the write handle reachable for as long as the caller
	// holds it.
	return func(value *V, err error) {
		switch {
		case value != nil:
			r.Fulfill(*value)
		case err != nil:
			r.Reject(err)
		default:
			r.Reject(ErrAPIMismatch)
		}
	}
}

// --- observer child plumbing ---

// newObserverChild builds the child pair for an operator attachment and
// wires cancellation accounting. Propagating children bump the parent's
// observer count; the child's first cancel request releases that count and,
// when it was the last outstanding observer, forwards the request upstream.
//
// The release runs as a cancel-request handler on the child, which also
// keeps the child resolvable after a cancel request: the request parks it in
// the cancelling state rather than cancelling it outright, so a parent that
// declines the forwarded request can still fulfill the child.
func newObserverChild[CV, CE any](parent canceller, acct observerAccounting, cfg callbackConfig, propagating bool) (*Promise[CV, CE], *box[CV, CE]) {
	child := newBox[CV, CE](stateEmpty)
	if propagating {
		acct.incrementObserverCount()
	}
	linked := cfg.linkCancel
	release := newOneshot(func() {
		shouldCancel := false
		if propagating {
			shouldCancel = acct.decrementObserverCount()
		}
		if shouldCancel || linked {
			parent.requestCancel()
		}
	})
	child.pushCancelHandler(immediateContext, release.invoke)
	return newPromiseWrapper(child), child
}

// observerAccounting is the slice of box used by child wiring, type-erased
// so children of different parameterizations can share it.
type observerAccounting interface {
	incrementObserverCount()
	decrementObserverCount() bool
	markHasPropagating()
}

// mirror resolves a child box with the parent's outcome triple.
func mirror[V, E any](child *box[V, E], value *V, err *E) {
	switch {
	case value != nil:
		var zeroE E
		child.resolve(resultValue, *value, zeroE)
	case err != nil:
		var zeroV V
		child.resolve(resultError, zeroV, *err)
	default:
		child.resolveCancelled()
	}
}

// adoptNested makes child await a promise returned from a handler. Future
// cancel requests on the child forward into the nested promise's observer
// accounting. Under WithEnforceContext resolution re-routes through
// callbackCtx instead of the nested promise's resolution context.
func adoptNested[V, E any](child *box[V, E], nested *Promise[V, E], cfg callbackConfig, callbackCtx *Context) {
	resCtx := Immediate()
	if cfg.enforceContext {
		resCtx = callbackCtx
	}
	nb := nested.b
	nb.incrementObserverCount()
	release := newOneshot(func() {
		if nb.decrementObserverCount() {
			nb.requestCancel()
		}
	})
	child.pushCancelHandler(Immediate(), release.invoke)
	nb.pushCallback(resCtx, func(value *V, err *E) {
		mirror(child, value, err)
	})
}

// --- operators ---

// Then invokes handler with the fulfilled value and propagates the source's
// outcome unchanged. Errors and cancellation propagate without running the
// handler.
func (p *Promise[V, E]) Then(onCtx *Context, handler func(V), opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if value != nil {
			if !cfg.gateOpen() {
				cb.resolveCancelled()
				return
			}
			handler(*value)
		}
		mirror(cb, value, err)
	})
	return child
}

// Map transforms the fulfilled value; errors and cancellation propagate.
func Map[V, E, U any](p *Promise[V, E], onCtx *Context, handler func(V) U, opts ...CallbackOption) *Promise[U, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[U, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		switch {
		case value != nil:
			if !cfg.gateOpen() {
				cb.resolveCancelled()
				return
			}
			var zeroE E
			cb.resolve(resultValue, handler(*value), zeroE)
		case err != nil:
			var zeroU U
			cb.resolve(resultError, zeroU, *err)
		default:
			cb.resolveCancelled()
		}
	})
	return child
}

// FlatMap transforms the fulfilled value into a nested promise the child
// then awaits; errors and cancellation propagate.
func FlatMap[V, E, U any](p *Promise[V, E], onCtx *Context, handler func(V) *Promise[U, E], opts ...CallbackOption) *Promise[U, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[U, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		switch {
		case value != nil:
			if !cfg.gateOpen() {
				cb.resolveCancelled()
				return
			}
			adoptNested(cb, handler(*value), cfg, onCtx)
		case err != nil:
			var zeroU U
			cb.resolve(resultError, zeroU, *err)
		default:
			cb.resolveCancelled()
		}
	})
	return child
}

// Catch invokes handler with the rejection error and propagates the
// source's outcome unchanged.
func (p *Promise[V, E]) Catch(onCtx *Context, handler func(E), opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if err != nil {
			if !cfg.gateOpen() {
				cb.resolveCancelled()
				return
			}
			handler(*err)
		}
		mirror(cb, value, err)
	})
	return child
}

// Recover turns a rejection into a fulfillment with the handler's return
// value; fulfillment and cancellation propagate.
func (p *Promise[V, E]) Recover(onCtx *Context, handler func(E) V, opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if err != nil {
			if !cfg.gateOpen() {
				cb.resolveCancelled()
				return
			}
			var zeroE E
			cb.resolve(resultValue, handler(*err), zeroE)
			return
		}
		mirror(cb, value, err)
	})
	return child
}

// RecoverWith turns a rejection into a nested promise the child awaits.
func RecoverWith[V, E any](p *Promise[V, E], onCtx *Context, handler func(E) *Promise[V, E], opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if err != nil {
			if !cfg.gateOpen() {
				cb.resolveCancelled()
				return
			}
			adoptNested(cb, handler(*err), cfg, onCtx)
			return
		}
		mirror(cb, value, err)
	})
	return child
}

// Inspect invokes handler with the outcome triple for every resolution
// (value/nil fulfilled, nil/err rejected, nil/nil cancelled) and propagates
// the outcome unchanged. Use it when callback release on the invoking
// context matters, since it runs for every outcome.
func (p *Promise[V, E]) Inspect(onCtx *Context, handler func(value *V, err *E), opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if !cfg.gateOpen() {
			cb.resolveCancelled()
			return
		}
		handler(value, err)
		mirror(cb, value, err)
	})
	return child
}

// Always replaces any outcome with a promise returned from the handler,
// which observes the full outcome triple.
func Always[V, E, U, F any](p *Promise[V, E], onCtx *Context, handler func(value *V, err *E) *Promise[U, F], opts ...CallbackOption) *Promise[U, F] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[U, F](p.b, p.b, cfg, true)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if !cfg.gateOpen() {
			cb.resolveCancelled()
			return
		}
		adoptNested(cb, handler(value, err), cfg, onCtx)
	})
	return child
}

// Tap invokes the observer with the outcome triple without participating in
// cancellation accounting: attaching a Tap never prevents or delays
// cancellation propagating from the source's other children. The returned
// promise mirrors the source.
func (p *Promise[V, E]) Tap(onCtx *Context, handler func(value *V, err *E), opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, false)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if cfg.gateOpen() {
			handler(value, err)
		}
		mirror(cb, value, err)
	})
	return child
}

// WhenCancelled invokes the observer only if the source is cancelled. Like
// Tap it does not participate in cancellation accounting.
func (p *Promise[V, E]) WhenCancelled(onCtx *Context, handler func(), opts ...CallbackOption) *Promise[V, E] {
	cfg := buildCallbackConfig(opts)
	child, cb := newObserverChild[V, E](p.b, p.b, cfg, false)
	p.b.pushCallback(onCtx, func(value *V, err *E) {
		if value == nil && err == nil && cfg.gateOpen() {
			handler()
		}
		mirror(cb, value, err)
	})
	return child
}

// IgnoringCancel returns a child that mirrors the source but ignores
// external cancel requests: RequestCancel on it is inert, so the source can
// never be cancelled through it.
func (p *Promise[V, E]) IgnoringCancel() *Promise[V, E] {
	child, cb := newObserverChild[V, E](p.b, p.b, callbackConfig{}, false)
	cb.ignoresCancel = true
	p.b.pushCallback(immediateContext, func(value *V, err *E) {
		mirror(cb, value, err)
	})
	return child
}

// MakeChild returns a plain passthrough mirror that hides the source's
// identity without joining its cancellation accounting.
func (p *Promise[V, E]) MakeChild() *Promise[V, E] {
	child, cb := newObserverChild[V, E](p.b, p.b, callbackConfig{}, false)
	p.b.pushCallback(immediateContext, func(value *V, err *E) {
		mirror(cb, value, err)
	})
	return child
}

// PropagatingCancellation returns a mirror that forwards cancel requests
// upstream as soon as the source's observer count reaches zero, without
// waiting for the source's handle to be dropped. cancelRequested runs on
// onCtx before the request propagates, giving the caller a chance to drop
// the returned promise.
func (p *Promise[V, E]) PropagatingCancellation(onCtx *Context, cancelRequested func(*Promise[V, E])) *Promise[V, E] {
	parent := p.b
	child := newBox[V, E](stateEmpty)
	parent.incrementObserverCount()
	parent.markHasPropagating()
	release := newOneshot(func() {
		if parent.decrementObserverCount() {
			parent.requestCancel()
		}
	})
	wrapper := newPromiseWrapper(child)
	child.pushCancelHandler(immediateContext, func() {
		onCtx.run(func() { cancelRequested(wrapper) })
		release.invoke()
	})
	parent.pushCallback(immediateContext, func(value *V, err *E) {
		mirror(child, value, err)
	})
	return wrapper
}
