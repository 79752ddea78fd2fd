package dispatch

// ConcurrentQueue executes submissions concurrently. Each submission runs on
// its own goroutine after acquiring a runner from the pool; a fixed pool
// therefore bounds concurrency while a dynamic pool does not.
type ConcurrentQueue struct {
	cfg  config
	pool runnerPool
}

var _ Queue = (*ConcurrentQueue)(nil)

// NewConcurrent creates a concurrent queue. With WithWorkers the queue uses
// a fixed-capacity runner pool; otherwise a dynamic pool.
func NewConcurrent(opts ...Option) *ConcurrentQueue {
	cfg := buildConfig(opts)
	newFn := func() *runner { return &runner{onPanic: cfg.PanicHandler} }
	var p runnerPool
	if cfg.Workers > 0 {
		p = newFixedPool(cfg.Workers, newFn)
	} else {
		p = newDynamicPool(newFn)
	}
	return &ConcurrentQueue{cfg: cfg, pool: p}
}

// Async enqueues fn for concurrent execution.
func (q *ConcurrentQueue) Async(fn func()) {
	go func() {
		r := q.pool.Get()
		r.invoke(fn)
		q.pool.Put(r)
	}()
}
