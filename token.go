package tomorrowland

import (
	uatomic "go.uber.org/atomic"
)

// canceller is the type-erased cancel surface of a box, letting tokens and
// Cancellable handles hold boxes of any value/error parameterization. Both
// hold the box strongly, not weakly.
type canceller interface {
	requestCancel()
}

// InvalidationToken gates callback invocation and cancels associated
// promises. Invalidating a token guarantees that callbacks registered with
// it will not run even if their promise later resolves; promises registered
// via RequestCancelOnInvalidate additionally receive a cancel request.
//
// Tokens may be used from any number of goroutines concurrently.
type InvalidationToken struct {
	generation    uatomic.Uint64
	subscriptions sealableList[canceller]
}

// NewInvalidationToken returns a fresh token.
func NewInvalidationToken() *InvalidationToken {
	return &InvalidationToken{}
}

// Invalidate bumps the token's generation, gating out every callback
// registered before this call, and requests cancellation of all promises
// subscribed via RequestCancelOnInvalidate.
func (t *InvalidationToken) Invalidate() {
	t.generation.Add(1)
	t.drainSubscriptions()
}

// CancelWithoutInvalidating requests cancellation of the subscribed promises
// without gating out registered callbacks.
func (t *InvalidationToken) CancelWithoutInvalidating() {
	t.drainSubscriptions()
}

func (t *InvalidationToken) drainSubscriptions() {
	// The list is swapped out whole, not sealed: tokens are reusable and new
	// subscriptions must keep working after an invalidation.
	node := reverseList(t.subscriptions.take())
	for node != nil {
		node.value.requestCancel()
		node = node.next
	}
}

// RequestCancelOnInvalidate subscribes p for cancellation when the token is
// next invalidated. A promise that resolves first simply ignores the
// request.
func (t *InvalidationToken) RequestCancelOnInvalidate(p interface{ Cancellable() *Cancellable }) {
	t.subscribe(p.Cancellable().box)
}

func (t *InvalidationToken) subscribe(c canceller) {
	node := &listNode[canceller]{value: c}
	if !t.subscriptions.push(node) {
		panic(Namespace + ": token subscription list unexpectedly sealed")
	}
}

// snapshot reads the current generation.
func (t *InvalidationToken) snapshot() uint64 {
	return t.generation.Load()
}

// isValid reports whether a callback registered at generation gen may run.
func (t *InvalidationToken) isValid(gen uint64) bool {
	return t.generation.Load() == gen
}

// Cancellable exposes only the ability to request cancellation of a promise,
// suitable for handing to code that must not observe or alter the result.
// It is a strong reference: holding it keeps the promise's state reachable.
type Cancellable struct {
	box canceller
}

// RequestCancel forwards a cancel request to the underlying promise.
func (c *Cancellable) RequestCancel() {
	c.box.requestCancel()
}
