package dispatch

import "sync"

// runnerPool is a pool of callback runners backing ConcurrentQueue.
type runnerPool interface {
	// Get returns a runner from the pool.
	Get() *runner

	// Put returns a runner back to the pool.
	Put(*runner)
}

// runner executes a single submission with panic containment.
type runner struct {
	onPanic func(recovered any)
}

func (r *runner) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onPanic(rec)
		}
	}()
	fn()
}

// dynamicPool grows and shrinks as needed. It is a wrapper around sync.Pool.
type dynamicPool struct {
	inner sync.Pool
}

func newDynamicPool(newFn func() *runner) runnerPool {
	return &dynamicPool{inner: sync.Pool{New: func() any { return newFn() }}}
}

func (p *dynamicPool) Get() *runner  { return p.inner.Get().(*runner) }
func (p *dynamicPool) Put(r *runner) { p.inner.Put(r) }

// fixedPool caps the number of runners in circulation. Get blocks once the
// cap is reached until a runner is returned, which is what bounds the
// queue's concurrency.
type fixedPool struct {
	slots chan *runner
	newFn func() *runner
	mu    sync.Mutex
	made  uint
	cap   uint
}

func newFixedPool(capacity uint, newFn func() *runner) runnerPool {
	return &fixedPool{
		slots: make(chan *runner, capacity),
		newFn: newFn,
		cap:   capacity,
	}
}

func (p *fixedPool) Get() *runner {
	select {
	case r := <-p.slots:
		return r
	default:
	}
	p.mu.Lock()
	if p.made < p.cap {
		p.made++
		p.mu.Unlock()
		return p.newFn()
	}
	p.mu.Unlock()
	return <-p.slots
}

func (p *fixedPool) Put(r *runner) {
	select {
	case p.slots <- r:
	default:
	}
}
