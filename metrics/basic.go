package metrics

import (
	"sort"
	"sync"

	uatomic "go.uber.org/atomic"
)

// BasicProvider is a simple in-memory implementation of Provider.
// Instruments are created on demand by name and reused for the same name.
// It is concurrency-safe and intended for tests and examples.
type BasicProvider struct {
	mu         sync.RWMutex
	counters   map[string]*BasicCounter
	updowns    map[string]*BasicUpDownCounter
	histograms map[string]*BasicHistogram
}

// NewBasicProvider constructs a new BasicProvider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{
		counters:   make(map[string]*BasicCounter),
		updowns:    make(map[string]*BasicUpDownCounter),
		histograms: make(map[string]*BasicHistogram),
	}
}

// Counter returns the monotonic counter for name, creating it once.
func (p *BasicProvider) Counter(name string, _ ...InstrumentOption) Counter {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if ok {
		return c
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.counters[name]; ok {
		return c
	}
	c = &BasicCounter{}
	p.counters[name] = c
	return c
}

// UpDownCounter returns the up/down counter for name, creating it once.
func (p *BasicProvider) UpDownCounter(name string, _ ...InstrumentOption) UpDownCounter {
	p.mu.RLock()
	u, ok := p.updowns[name]
	p.mu.RUnlock()
	if ok {
		return u
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok = p.updowns[name]; ok {
		return u
	}
	u = &BasicUpDownCounter{}
	p.updowns[name] = u
	return u
}

// Histogram returns the histogram for name, creating it once.
func (p *BasicProvider) Histogram(name string, _ ...InstrumentOption) Histogram {
	p.mu.RLock()
	h, ok := p.histograms[name]
	p.mu.RUnlock()
	if ok {
		return h
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.histograms[name]; ok {
		return h
	}
	h = &BasicHistogram{}
	p.histograms[name] = h
	return h
}

// CounterValue returns the current value of the named counter, or zero if it
// was never created.
func (p *BasicProvider) CounterValue(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.counters[name]; ok {
		return c.Value()
	}
	return 0
}

// BasicCounter is a lock-free monotonic counter.
type BasicCounter struct {
	v uatomic.Int64
}

func (c *BasicCounter) Add(n int64) { c.v.Add(n) }

// Value returns the current count.
func (c *BasicCounter) Value() int64 { return c.v.Load() }

// BasicUpDownCounter is a lock-free signed counter.
type BasicUpDownCounter struct {
	v uatomic.Int64
}

func (c *BasicUpDownCounter) Add(n int64) { c.v.Add(n) }

// Value returns the current value.
func (c *BasicUpDownCounter) Value() int64 { return c.v.Load() }

// BasicHistogram stores every recorded measurement.
type BasicHistogram struct {
	mu      sync.Mutex
	samples []float64
}

func (h *BasicHistogram) Record(v float64) {
	h.mu.Lock()
	h.samples = append(h.samples, v)
	h.mu.Unlock()
}

// Samples returns a sorted copy of the recorded measurements.
func (h *BasicHistogram) Samples() []float64 {
	h.mu.Lock()
	out := append([]float64(nil), h.samples...)
	h.mu.Unlock()
	sort.Float64s(out)
	return out
}
