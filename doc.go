// Package tomorrowland provides cancellable, composable promises whose
// bodies and callbacks are dispatched onto explicit execution contexts.
//
// Constructors
//   - New(ctx, body): runs the producer body on ctx with the write handle.
//   - NewFulfilled / NewRejected / NewCancelled: already-resolved promises.
//   - WithResolver(): an unresolved promise plus its Resolver.
//   - NewDelayed(ctx, body): defers the body until the promise is demanded.
//
// Outcomes
// A promise resolves exactly once to a value, an error, or cancellation.
// TryGetResult reports the outcome as a (value, err, resolved) triple where
// both pointers nil with resolved true means cancelled. Resolution is
// terminal; later resolver calls are ignored.
//
// Observation
// Operators attach callbacks and return a child promise: Then, Catch,
// Recover, Inspect, Tap, WhenCancelled on the promise itself, and Map,
// FlatMap, RecoverWith, Always as package-level functions (all but
// RecoverWith change the child's type). Callbacks registered before
// resolution fire in registration order on their contexts; callbacks
// registered after resolution fire
// immediately.
//
// Cancellation
// RequestCancel is advisory: the producer's OnCancelRequested handlers run
// and may still fulfill the promise. Cancellation also propagates upward on
// its own: once every propagating child of a promise has requested
// cancellation and the promise's own handle has been dropped, the promise
// receives a single cancel request. Tap and WhenCancelled observers never
// take part in that accounting, IgnoringCancel shields a promise from
// external requests, and PropagatingCancellation propagates without waiting
// for the handle to drop.
//
// Contexts
// Immediate runs callbacks inline. Main is a library-owned serial run loop;
// chained Main callbacks execute within the same run-loop pass. The five
// QoS contexts dispatch onto global concurrent pools. QueueContext and
// OperationQueueContext target user-supplied queues. NowOr(inner) runs the
// callback synchronously iff the promise is already resolved at attachment,
// observable via IsExecutingNow. Automatic picks Main on the run-loop
// goroutine and DefaultQoS elsewhere.
//
// Tokens
// An InvalidationToken gates callbacks registered with WithToken (an
// invalidated token guarantees the handler will not run, cancelling the
// child instead, except for Tap and WhenCancelled children, which still
// mirror the source) and cancels promises subscribed with
// RequestCancelOnInvalidate.
//
// Utilities
// Delay and Timeout bound resolution in time; When joins promises into an
// input-order vector; Race resolves with the first non-cancelled input.
package tomorrowland
