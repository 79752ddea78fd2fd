package tomorrowland

import (
	"sync"

	"github.com/petermattis/goid"
	uatomic "go.uber.org/atomic"
)

// mainLoop is the library-owned serial event loop backing the Main context.
// It is a single goroutine draining a FIFO intake channel, started lazily on
// first use and never stopped. Callbacks scheduled onto Main from inside a
// Main callback join the goroutine-local coalescing queue and execute within
// the same pass.
type runLoop struct {
	once   sync.Once
	tasks  chan func()
	loopID uatomic.Int64
}

var mainLoop runLoop

const mainLoopBuffer = 1024

func (l *runLoop) start() {
	l.once.Do(func() {
		l.tasks = make(chan func(), mainLoopBuffer)
		ready := make(chan struct{})
		go func() {
			l.loopID.Store(goid.Get())
			close(ready)
			for fn := range l.tasks {
				fn()
			}
		}()
		<-ready
	})
}

// isCurrent reports whether the calling goroutine is the run-loop goroutine.
func (l *runLoop) isCurrent() bool {
	id := l.loopID.Load()
	return id != 0 && id == goid.Get()
}

// enqueue schedules fn for a fresh run-loop pass. Each pass runs with the
// coalescing flag raised so chained main-context callbacks collapse into it.
func (l *runLoop) enqueue(fn func()) {
	l.start()
	l.tasks <- func() {
		withMainDraining(fn)
	}
}
