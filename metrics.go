package tomorrowland

import (
	"sync"

	"github.com/lilyball/tomorrowland/metrics"
)

// Instrument names recorded through the configured metrics provider.
const (
	MetricPromisesCreated    = "tomorrowland.promises.created"
	MetricPromisesFulfilled  = "tomorrowland.promises.fulfilled"
	MetricPromisesRejected   = "tomorrowland.promises.rejected"
	MetricPromisesCancelled  = "tomorrowland.promises.cancelled"
	MetricCancelRequests     = "tomorrowland.cancel.requests"
	MetricCallbackDispatches = "tomorrowland.callbacks.dispatched"
)

// Package-level provider. Observability is a cross-cutting concern shared by
// every promise, so a single swap point at startup beats per-promise wiring.
var instruments struct {
	sync.RWMutex
	created, fulfilled, rejected, cancelled metrics.Counter
	cancelRequests, dispatches              metrics.Counter
}

func init() {
	setProviderLocked(metrics.NewNoopProvider())
}

// SetMetricsProvider installs the provider used for all promise accounting.
// Intended to be called once at startup; safe, but not cheap, to call later.
func SetMetricsProvider(p metrics.Provider) {
	if p == nil {
		p = metrics.NewNoopProvider()
	}
	instruments.Lock()
	defer instruments.Unlock()
	setProviderLocked(p)
}

func setProviderLocked(p metrics.Provider) {
	instruments.created = p.Counter(MetricPromisesCreated, metrics.WithUnit("1"))
	instruments.fulfilled = p.Counter(MetricPromisesFulfilled, metrics.WithUnit("1"))
	instruments.rejected = p.Counter(MetricPromisesRejected, metrics.WithUnit("1"))
	instruments.cancelled = p.Counter(MetricPromisesCancelled, metrics.WithUnit("1"))
	instruments.cancelRequests = p.Counter(MetricCancelRequests, metrics.WithUnit("1"))
	instruments.dispatches = p.Counter(MetricCallbackDispatches, metrics.WithUnit("1"))
}

func recordPromiseCreated() {
	instruments.RLock()
	c := instruments.created
	instruments.RUnlock()
	c.Add(1)
}

func recordPromiseResolved(kind resultKind) {
	instruments.RLock()
	var c metrics.Counter
	switch kind {
	case resultValue:
		c = instruments.fulfilled
	case resultError:
		c = instruments.rejected
	default:
		c = instruments.cancelled
	}
	instruments.RUnlock()
	c.Add(1)
}

func recordCancelRequested() {
	instruments.RLock()
	c := instruments.cancelRequests
	instruments.RUnlock()
	c.Add(1)
}

func recordCallbackDispatched() {
	instruments.RLock()
	c := instruments.dispatches
	instruments.RUnlock()
	c.Add(1)
}
