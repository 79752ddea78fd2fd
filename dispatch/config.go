package dispatch

import "log"

// config holds queue construction settings.
type config struct {
	// Workers caps the number of concurrently executing runners.
	// Zero (default) means the pool grows and shrinks dynamically.
	Workers uint

	// Buffer is the size of the intake channel for serial queues.
	// Default: 1024.
	Buffer uint

	// PanicHandler receives values recovered from panicking submissions.
	// Default: log the recovered value.
	PanicHandler func(recovered any)
}

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		Workers:      0, // dynamic pool
		Buffer:       1024,
		PanicHandler: defaultPanicHandler,
	}
}

func defaultPanicHandler(recovered any) {
	log.Printf("dispatch: submitted function panicked: %v", recovered)
}

// Option configures a queue at construction time.
type Option func(*config)

// WithWorkers caps the number of concurrently executing runners for a
// concurrent queue (must be > 0).
func WithWorkers(n uint) Option {
	return func(c *config) {
		if n == 0 {
			panic("dispatch: WithWorkers requires n > 0")
		}
		c.Workers = n
	}
}

// WithBuffer sets the intake buffer size for a serial queue.
func WithBuffer(size uint) Option {
	return func(c *config) { c.Buffer = size }
}

// WithPanicHandler replaces the handler invoked with values recovered from
// panicking submissions.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(c *config) {
		if fn == nil {
			panic("dispatch: nil panic handler")
		}
		c.PanicHandler = fn
	}
}

func buildConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("dispatch: nil option")
		}
		opt(&cfg)
	}
	return cfg
}
