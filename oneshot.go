package tomorrowland

import uatomic "go.uber.org/atomic"

// oneshot wraps a thunk so it runs at most once no matter how many paths
// race to invoke it. The thunk reference is dropped after the first call.
type oneshot struct {
	invoked uatomic.Bool
	fn      func()
}

func newOneshot(fn func()) *oneshot {
	return &oneshot{fn: fn}
}

func (o *oneshot) invoke() {
	if o.invoked.CompareAndSwap(false, true) {
		fn := o.fn
		o.fn = nil
		fn()
	}
}
