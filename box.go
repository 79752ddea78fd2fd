package tomorrowland

import (
	"sync/atomic"

	uatomic "go.uber.org/atomic"
)

// Box states. The only valid transitions are:
//
//	delayed    -> empty
//	empty      -> resolving | cancelling | cancelled
//	resolving  -> resolved
//	cancelling -> resolving | cancelled
//
// resolved and cancelled are terminal. Transitioning to the current state is
// a failure.
const (
	stateDelayed int32 = iota
	stateEmpty
	stateResolving
	stateResolved
	stateCancelling
	stateCancelled
)

// observerFlags packs a 62-bit count of propagating observers with two flags.
const (
	observerSealFlag        uint64 = 1 << 63
	observerPropagatingFlag uint64 = 1 << 62
	observerCountMask              = observerPropagatingFlag - 1
)

// listNode is a link in a sealable LIFO list. value is immutable after push;
// next is written only by the pushing goroutine before a successful CAS.
type listNode[T any] struct {
	next  *listNode[T]
	value T
}

// sealableList is a lock-free LIFO stack with a one-way seal. The sealed
// sentinel is the list's own embedded node, so it is unique per list and is
// never dereferenced as a real element.
type sealableList[T any] struct {
	head   atomic.Pointer[listNode[T]]
	sealed listNode[T]
}

// push links node onto the head. Returns false without pushing if the list
// has been sealed; the caller is then responsible for running the node inline.
// The link step may retry under contention, which is safe because node is not
// yet visible to any other goroutine.
func (l *sealableList[T]) push(node *listNode[T]) bool {
	for {
		head := l.head.Load()
		if head == &l.sealed {
			return false
		}
		node.next = head
		if l.head.CompareAndSwap(head, node) {
			return true
		}
	}
}

// sealAndTake atomically replaces the head with the sealed sentinel and
// returns the previous chain in LIFO order (nil if empty). Calling it on an
// already-sealed list returns nil.
func (l *sealableList[T]) sealAndTake() *listNode[T] {
	for {
		head := l.head.Load()
		if head == &l.sealed {
			return nil
		}
		if l.head.CompareAndSwap(head, &l.sealed) {
			return head
		}
	}
}

// take atomically empties the list without sealing it, returning the prior
// chain in LIFO order. Used by reusable lists (token subscriptions) where
// producers must keep working after a drain.
func (l *sealableList[T]) take() *listNode[T] {
	for {
		head := l.head.Load()
		if head == nil || head == &l.sealed {
			return nil
		}
		if l.head.CompareAndSwap(head, nil) {
			return head
		}
	}
}

func (l *sealableList[T]) isSealed() bool {
	return l.head.Load() == &l.sealed
}

// reverseList flips a drained chain into push order, so callbacks fire in
// registration order.
func reverseList[T any](node *listNode[T]) *listNode[T] {
	var prev *listNode[T]
	for node != nil {
		next := node.next
		node.next = prev
		prev = node
		node = next
	}
	return prev
}

// resultKind discriminates the terminal outcome stored in a box.
type resultKind int32

const (
	resultNone resultKind = iota
	resultValue
	resultError
	resultCancelled
)

// callbackEntry is a pending observer. fn receives the terminal outcome:
// (value, nil) fulfilled, (nil, err) rejected, (nil, nil) cancelled.
type callbackEntry[V, E any] struct {
	ctx *Context
	fn  func(value *V, err *E)
}

// cancelEntry is a pending cancel-request handler.
type cancelEntry struct {
	ctx *Context
	fn  func()
}

// box is the shared atomic state behind a Promise/Resolver pair. It is
// lock-free: the state word is CAS'd through the transition table, the two
// lists are sealable LIFO stacks, and the observer accounting is a single
// 64-bit word. No lock is ever held across a user callback.
type box[V, E any] struct {
	state         uatomic.Int32
	observerFlags uatomic.Uint64

	callbacks      sealableList[callbackEntry[V, E]]
	cancelRequests sealableList[cancelEntry]

	// Terminal outcome. Written while state is resolving, published by the
	// release store of the terminal state. A cancelled box gets kind set just
	// after its direct ->cancelled transition; result() never reads the
	// fields for a cancelled box.
	kind  resultKind
	value V
	err   E

	// cancelRequested latches the first requestCancel so late-registered
	// cancel handlers can distinguish "sealed by request" from "sealed by
	// resolution".
	cancelRequested uatomic.Bool

	// ignoresCancel makes external requestCancel inert (IgnoringCancel).
	ignoresCancel bool
}

func newBox[V, E any](initial int32) *box[V, E] {
	b := &box[V, E]{}
	b.state.Store(initial)
	recordPromiseCreated()
	return b
}

// transitionTo attempts to CAS the state to the target, honoring the
// transition table. Returns false on any illegal source state.
func (b *box[V, E]) transitionTo(to int32) bool {
	for {
		cur := b.state.Load()
		if !validTransition(cur, to) {
			return false
		}
		if b.state.CompareAndSwap(cur, to) {
			return true
		}
	}
}

func validTransition(from, to int32) bool {
	switch to {
	case stateEmpty:
		return from == stateDelayed
	case stateResolving:
		return from == stateEmpty || from == stateCancelling
	case stateCancelling:
		return from == stateEmpty
	case stateResolved:
		return from == stateResolving
	case stateCancelled:
		return from == stateEmpty || from == stateCancelling
	default:
		return false
	}
}

// isTerminal reports whether the box has a stable outcome.
func (b *box[V, E]) isTerminal() bool {
	s := b.state.Load()
	return s == stateResolved || s == stateCancelled
}

// result reads the terminal outcome. Valid only after isTerminal returned
// true (the state load carries the acquire fence).
func (b *box[V, E]) result() (value *V, err *E, resolved bool) {
	switch b.state.Load() {
	case stateResolved:
		switch b.kind {
		case resultValue:
			v := b.value
			return &v, nil, true
		case resultError:
			e := b.err
			return nil, &e, true
		}
		return nil, nil, true
	case stateCancelled:
		return nil, nil, true
	default:
		return nil, nil, false
	}
}

// resolve moves the box to its terminal state and drains both lists.
// Returns false if the box was already resolving or terminal.
//
// The write of kind/value/err is unsynchronized on purpose: the resolving
// state excludes every other writer and every reader of the result field.
func (b *box[V, E]) resolve(kind resultKind, value V, err E) bool {
	if kind == resultCancelled {
		return b.resolveCancelled()
	}
	for {
		s := b.state.Load()
		switch s {
		case stateEmpty, stateCancelling:
			if b.state.CompareAndSwap(s, stateResolving) {
				b.kind = kind
				b.value = value
				b.err = err
				if !b.transitionTo(stateResolved) {
					panic(Namespace + ": resolving box failed to transition to resolved")
				}
				b.drain()
				return true
			}
		default:
			return false
		}
	}
}

// resolveCancelled takes the direct empty/cancelling -> cancelled edge; the
// cancelled outcome carries no data so no resolving window is needed.
func (b *box[V, E]) resolveCancelled() bool {
	for {
		s := b.state.Load()
		switch s {
		case stateEmpty, stateCancelling:
			if b.state.CompareAndSwap(s, stateCancelled) {
				b.kind = resultCancelled
				b.drain()
				return true
			}
		default:
			return false
		}
	}
}

// drain seals both lists, discards the cancel-request handlers, and invokes
// the callbacks in registration order on their contexts.
func (b *box[V, E]) drain() {
	recordPromiseResolved(b.kind)
	b.cancelRequests.sealAndTake()
	node := reverseList(b.callbacks.sealAndTake())
	value, err, _ := b.result()
	for node != nil {
		entry := node.value
		node = node.next
		b.dispatch(entry, value, err)
	}
}

func (b *box[V, E]) dispatch(entry callbackEntry[V, E], value *V, err *E) {
	recordCallbackDispatched()
	entry.ctx.run(func() { entry.fn(value, err) })
}

// pushCallback registers an observer callback. If the list is already sealed
// the box has resolved and the callback fires immediately instead, letting a
// now-or context collapse to synchronous execution.
func (b *box[V, E]) pushCallback(ctx *Context, fn func(value *V, err *E)) (pushed bool) {
	if ctx == nil {
		panic(Namespace + ": nil context")
	}
	resolvedCtx := ctx.collapseForAttach(false)
	node := &listNode[callbackEntry[V, E]]{value: callbackEntry[V, E]{ctx: resolvedCtx, fn: fn}}
	if b.callbacks.push(node) {
		return true
	}
	// Lost the race with resolution (or attached late): fire immediately,
	// honoring now-or synchrony since the promise is known resolved.
	value, err, _ := b.result()
	recordCallbackDispatched()
	ctx.runResolved(func() { fn(value, err) })
	return false
}

// pushCancelHandler registers a cancel-request handler. If the list was
// sealed by an earlier cancel request, the handler fires immediately on its
// context; if it was sealed by resolution, the handler is discarded.
func (b *box[V, E]) pushCancelHandler(ctx *Context, fn func()) {
	if ctx == nil {
		panic(Namespace + ": nil context")
	}
	resolvedCtx := ctx.collapseForAttach(false)
	node := &listNode[cancelEntry]{value: cancelEntry{ctx: resolvedCtx, fn: fn}}
	if b.cancelRequests.push(node) {
		// A request may have arrived between the seal check inside push and
		// now only if push succeeded before the seal; the drain in
		// requestCancel will pick this node up. Nothing more to do.
		return
	}
	if b.cancelRequested.Load() {
		resolvedCtx.run(fn)
	}
}

// requestCancel asks the box to cancel. The request is advisory: registered
// cancel handlers run and may still fulfill the promise. With no handlers
// registered the box is cancelled outright.
func (b *box[V, E]) requestCancel() {
	if b.ignoresCancel {
		return
	}
	for {
		switch s := b.state.Load(); s {
		case stateDelayed:
			// A never-demanded body has no work to interrupt.
			if b.state.CompareAndSwap(s, stateEmpty) {
				continue
			}
		case stateEmpty:
			if !b.cancelRequested.CompareAndSwap(false, true) {
				return
			}
			recordCancelRequested()
			handlers := reverseList(b.cancelRequests.sealAndTake())
			if handlers == nil {
				// Handler-less fast path.
				b.resolveCancelled()
				return
			}
			if !b.transitionTo(stateCancelling) {
				// Resolution won the race; the drain discarded nothing we
				// still hold, so run nothing.
				return
			}
			for handlers != nil {
				entry := handlers.value
				handlers = handlers.next
				entry.ctx.run(entry.fn)
			}
			return
		default:
			// Resolving, terminal, or already cancelling: the request either
			// lost to resolution or was already latched.
			return
		}
	}
}

// seenCancelRequest reports whether requestCancel has been invoked, even if
// the promise later resolved normally.
func (b *box[V, E]) seenCancelRequest() bool {
	return b.cancelRequested.Load()
}

// incrementObserverCount records a new propagating observer.
func (b *box[V, E]) incrementObserverCount() {
	b.observerFlags.Add(1)
}

// markHasPropagating sets the aggressive-propagation flag (one-way).
func (b *box[V, E]) markHasPropagating() {
	for {
		cur := b.observerFlags.Load()
		if cur&observerPropagatingFlag != 0 {
			return
		}
		if b.observerFlags.CompareAndSwap(cur, cur|observerPropagatingFlag) {
			return
		}
	}
}

// decrementObserverCount drops one propagating observer. Returns true iff
// the count reached zero and either the seal or the has-propagating flag is
// set, i.e. the caller must forward a cancel request to this box.
func (b *box[V, E]) decrementObserverCount() bool {
	for {
		cur := b.observerFlags.Load()
		if cur&observerCountMask == 0 {
			panic(Namespace + ": observer count underflow")
		}
		next := cur - 1
		if b.observerFlags.CompareAndSwap(cur, next) {
			return next&observerCountMask == 0 && next&(observerSealFlag|observerPropagatingFlag) != 0
		}
	}
}

// sealObserverCount closes the count to direct attachment. Returns true iff
// the count is already zero, meaning cancellation should propagate now. The
// seal is one-shot; repeated seals return false.
func (b *box[V, E]) sealObserverCount() bool {
	for {
		cur := b.observerFlags.Load()
		if cur&observerSealFlag != 0 {
			return false
		}
		next := cur | observerSealFlag
		if b.observerFlags.CompareAndSwap(cur, next) {
			return next&observerCountMask == 0
		}
	}
}
