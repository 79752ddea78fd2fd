package tomorrowland

import "sync/atomic"

// WhenOption configures When.
type WhenOption func(*whenConfig)

type whenConfig struct {
	cancelOnFailure bool
}

// WithCancelOnFailure cancels all remaining inputs as soon as one input
// rejects or cancels.
func WithCancelOnFailure() WhenOption {
	return func(c *whenConfig) { c.cancelOnFailure = true }
}

// RaceOption configures Race.
type RaceOption func(*raceConfig)

type raceConfig struct {
	cancelRemaining bool
}

// WithCancelRemaining cancels all remaining inputs as soon as one input
// resolves the race.
func WithCancelRemaining() RaceOption {
	return func(c *raceConfig) { c.cancelRemaining = true }
}

// When joins the inputs into a single promise that fulfills with every
// input's value, in input order, iff every input fulfills. The first
// rejection or cancellation decides the outcome and later results are
// discarded. An empty input fulfills with an empty slice.
//
// Requesting cancellation of the returned promise requests cancellation of
// every input. When the returned promise resolves, its observer stake in the
// remaining inputs is released so their own cancellation can propagate.
func When[V, E any](onCtx *Context, promises []*Promise[V, E], opts ...WhenOption) *Promise[[]V, E] {
	var cfg whenConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(promises) == 0 {
		return NewFulfilled[[]V, E]([]V{})
	}

	inputs := make([]*box[V, E], len(promises))
	for i, p := range promises {
		inputs[i] = p.b
	}
	releases := newInputReleases(inputs)

	child := newBox[[]V, E](stateEmpty)
	child.pushCancelHandler(immediateContext, func() { cancelInputs(inputs, releases) })
	child.pushCallback(immediateContext, func(_ *[]V, _ *E) { invokeAll(releases) })

	results := make([]V, len(promises))
	var remaining atomic.Int32
	remaining.Store(int32(len(promises)))

	for i, p := range promises {
		i := i
		p.b.pushCallback(onCtx, func(value *V, err *E) {
			switch {
			case value != nil:
				results[i] = *value
				if remaining.Add(-1) == 0 {
					var zeroE E
					child.resolve(resultValue, results, zeroE)
				}
			case err != nil:
				child.resolve(resultError, nil, *err)
				if cfg.cancelOnFailure {
					cancelInputs(inputs, releases)
				}
			default:
				child.resolveCancelled()
				if cfg.cancelOnFailure {
					cancelInputs(inputs, releases)
				}
			}
		})
	}
	return newPromiseWrapper(child)
}

// Race resolves with the first input to fulfill or reject; cancelled inputs
// are skipped. If every input cancels, the result is cancelled. An empty
// input is immediately cancelled.
//
// Requesting cancellation of the returned promise requests cancellation of
// every input.
func Race[V, E any](onCtx *Context, promises []*Promise[V, E], opts ...RaceOption) *Promise[V, E] {
	var cfg raceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(promises) == 0 {
		return NewCancelled[V, E]()
	}

	inputs := make([]*box[V, E], len(promises))
	for i, p := range promises {
		inputs[i] = p.b
	}
	releases := newInputReleases(inputs)

	child := newBox[V, E](stateEmpty)
	child.pushCancelHandler(immediateContext, func() { cancelInputs(inputs, releases) })
	child.pushCallback(immediateContext, func(_ *V, _ *E) { invokeAll(releases) })

	var cancelled atomic.Int32
	total := int32(len(promises))

	for _, p := range promises {
		p.b.pushCallback(onCtx, func(value *V, err *E) {
			switch {
			case value != nil:
				var zeroE E
				if child.resolve(resultValue, *value, zeroE) && cfg.cancelRemaining {
					cancelInputs(inputs, releases)
				}
			case err != nil:
				var zeroV V
				if child.resolve(resultError, zeroV, *err) && cfg.cancelRemaining {
					cancelInputs(inputs, releases)
				}
			default:
				if cancelled.Add(1) == total {
					child.resolveCancelled()
				}
			}
		})
	}
	return newPromiseWrapper(child)
}

// newInputReleases takes an observer stake in every input and returns the
// per-input release hooks. Each release drops the stake once and forwards a
// cancel request when it was the input's last outstanding observer.
func newInputReleases[V, E any](inputs []*box[V, E]) []*oneshot {
	releases := make([]*oneshot, len(inputs))
	for i, b := range inputs {
		b := b
		b.incrementObserverCount()
		releases[i] = newOneshot(func() {
			if b.decrementObserverCount() {
				b.requestCancel()
			}
		})
	}
	return releases
}

func invokeAll(releases []*oneshot) {
	for _, r := range releases {
		r.invoke()
	}
}

func cancelInputs[V, E any](inputs []*box[V, E], releases []*oneshot) {
	for i, b := range inputs {
		releases[i].invoke()
		b.requestCancel()
	}
}
