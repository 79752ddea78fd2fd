package tomorrowland

import (
	"github.com/lilyball/tomorrowland/dispatch"
)

// Context describes where a promise body or callback executes. The set of
// variants is closed, so Context is a tagged value rather than an interface.
type Context struct {
	kind    contextKind
	qos     dispatch.QoS
	queue   dispatch.Queue
	opQueue dispatch.OperationQueue
	inner   *Context
}

type contextKind int

const (
	ctxImmediate contextKind = iota
	ctxMain
	ctxQoS
	ctxQueue
	ctxOperationQueue
	ctxNowOr
	ctxAutomatic
)

var (
	immediateContext  = &Context{kind: ctxImmediate}
	mainContext       = &Context{kind: ctxMain}
	automaticContext  = &Context{kind: ctxAutomatic}
	qosContexts       [5]*Context
	qosContextClasses = [5]dispatch.QoS{
		dispatch.Background, dispatch.Utility, dispatch.Default,
		dispatch.UserInitiated, dispatch.UserInteractive,
	}
)

func init() {
	for i, qos := range qosContextClasses {
		qosContexts[i] = &Context{kind: ctxQoS, qos: qos}
	}
}

// Immediate executes callbacks synchronously on the thread that resolved the
// promise (or, for late attachments, the attaching thread). This is rarely
// what you want and great care should be taken when using it.
func Immediate() *Context { return immediateContext }

// Main executes callbacks on the library's serial main run loop. Chained
// main-context callbacks with no intervening asynchronous gap all execute
// within the same run-loop pass.
func Main() *Context { return mainContext }

// Background executes callbacks on the global background-QoS queue.
func Background() *Context { return qosContexts[dispatch.Background] }

// Utility executes callbacks on the global utility-QoS queue.
func Utility() *Context { return qosContexts[dispatch.Utility] }

// DefaultQoS executes callbacks on the global default-QoS queue.
func DefaultQoS() *Context { return qosContexts[dispatch.Default] }

// UserInitiated executes callbacks on the global user-initiated-QoS queue.
func UserInitiated() *Context { return qosContexts[dispatch.UserInitiated] }

// UserInteractive executes callbacks on the global user-interactive-QoS queue.
func UserInteractive() *Context { return qosContexts[dispatch.UserInteractive] }

// ForQoS returns the context for the given QoS class.
func ForQoS(qos dispatch.QoS) *Context {
	if qos < dispatch.Background || qos > dispatch.UserInteractive {
		qos = dispatch.Default
	}
	return qosContexts[qos]
}

// QueueContext executes callbacks on the given dispatch queue.
func QueueContext(q dispatch.Queue) *Context {
	if q == nil {
		panic(Namespace + ": nil queue")
	}
	return &Context{kind: ctxQueue, queue: q}
}

// OperationQueueContext wraps callbacks in operations on the given queue.
func OperationQueueContext(oq dispatch.OperationQueue) *Context {
	if oq == nil {
		panic(Namespace + ": nil operation queue")
	}
	return &Context{kind: ctxOperationQueue, opQueue: oq}
}

// NowOr executes the callback synchronously if the promise is already
// resolved when the callback is attached, and otherwise behaves as inner.
// Passed to a promise constructor it acts like Immediate; passed to a
// delayed promise it acts like inner.
func NowOr(inner *Context) *Context {
	if inner == nil {
		panic(Namespace + ": nil inner context")
	}
	return &Context{kind: ctxNowOr, inner: inner}
}

// Automatic resolves to Main when used from the main run-loop goroutine and
// to DefaultQoS otherwise. The choice happens at execution time.
func Automatic() *Context { return automaticContext }

// collapseForAttach resolves attach-time context variants. A now-or context
// attached to an unresolved promise degrades to its inner context; attached
// to a resolved one the caller uses runResolved instead.
func (c *Context) collapseForAttach(resolved bool) *Context {
	for c.kind == ctxNowOr && !resolved {
		c = c.inner
	}
	return c
}

// run executes fn per the variant.
func (c *Context) run(fn func()) {
	switch c.kind {
	case ctxImmediate:
		fn()
	case ctxMain:
		if mainLoop.isCurrent() && enqueueMainLocal(fn) {
			return
		}
		mainLoop.enqueue(fn)
	case ctxQoS:
		dispatch.Global(c.qos).Async(fn)
	case ctxQueue:
		c.queue.Async(fn)
	case ctxOperationQueue:
		c.opQueue.AddOperation(fn)
	case ctxNowOr:
		c.inner.run(fn)
	case ctxAutomatic:
		if mainLoop.isCurrent() {
			mainContext.run(fn)
		} else {
			dispatch.Global(dispatch.Default).Async(fn)
		}
	}
}

// runResolved executes fn for a promise known to be resolved at attachment
// time. Now-or contexts run fn synchronously with the executing-now flag
// raised; everything else defers to run.
func (c *Context) runResolved(fn func()) {
	if c.kind == ctxNowOr {
		withNowFlag(fn)
		return
	}
	c.run(fn)
}

// runBody schedules a promise producer body. Now-or acts like Immediate here
// so the body can observe IsExecutingNow from its surrounding scope.
func (c *Context) runBody(fn func()) {
	if c.kind == ctxNowOr {
		fn()
		return
	}
	c.run(fn)
}

// destination reports the queue pair a callback on this context ultimately
// lands on, letting cancel-request dispatch coalesce onto the same
// destination as the callback it is paired with.
func (c *Context) destination() (dispatch.Queue, dispatch.OperationQueue) {
	switch c.kind {
	case ctxQoS:
		return dispatch.Global(c.qos), nil
	case ctxQueue:
		return c.queue, nil
	case ctxOperationQueue:
		return nil, c.opQueue
	case ctxNowOr:
		return c.inner.destination()
	default:
		return nil, nil
	}
}
