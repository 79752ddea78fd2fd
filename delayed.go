package tomorrowland

import "sync"

// DelayedPromise defers its producer body until the promise is first
// demanded. The body runs at most once, on the context given at
// construction, triggered by the first Promise call.
type DelayedPromise[V, E any] struct {
	once sync.Once
	ctx  *Context
	body func(*Resolver[V, E])
	p    *Promise[V, E]
	r    *Resolver[V, E]
}

// NewDelayed creates a delayed promise. Unlike New, a NowOr context keeps
// its inner behavior here, since the body runs from whatever call site
// first demands the promise.
func NewDelayed[V, E any](onCtx *Context, body func(*Resolver[V, E])) *DelayedPromise[V, E] {
	if body == nil {
		panic(Namespace + ": nil promise body")
	}
	b := newBox[V, E](stateDelayed)
	return &DelayedPromise[V, E]{
		ctx:  onCtx,
		body: body,
		p:    newPromiseWrapper(b),
		r:    newResolverWrapper(b),
	}
}

// Promise demands the promise, scheduling the body on the first call.
// A delayed promise cancelled before its first demand never runs the body.
func (d *DelayedPromise[V, E]) Promise() *Promise[V, E] {
	d.once.Do(func() {
		body, r := d.body, d.r
		d.body, d.r = nil, nil
		if d.p.b.transitionTo(stateEmpty) {
			d.ctx.run(func() { body(r) })
		}
	})
	return d.p
}
