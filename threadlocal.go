package tomorrowland

import (
	"sync"

	"github.com/petermattis/goid"
)

// Per-goroutine dispatch frames. Go has no native thread-local storage, so
// the frames are keyed by goroutine id. A frame exists only while one of its
// fields is in use; exiting the outermost scope removes it again, so parked
// goroutines never pin stale entries.
//
// Frames are only ever mutated from their own goroutine; the map itself is
// the sole shared structure.
var threadFrames sync.Map // int64 -> *threadFrame

type threadFrame struct {
	// mainDraining is set while the main run loop is executing a callback
	// chain; fresh main-context callbacks enqueued from inside it join
	// mainQueue instead of a new run-loop pass.
	mainDraining bool
	mainQueue    []func()

	// nowDepth counts nested now-or synchronous dispatches.
	nowDepth int
}

func currentFrame() (*threadFrame, int64) {
	id := goid.Get()
	if f, ok := threadFrames.Load(id); ok {
		return f.(*threadFrame), id
	}
	return nil, id
}

func ensureFrame() (*threadFrame, int64) {
	id := goid.Get()
	if f, ok := threadFrames.Load(id); ok {
		return f.(*threadFrame), id
	}
	f := &threadFrame{}
	threadFrames.Store(id, f)
	return f, id
}

func (f *threadFrame) releaseIfIdle(id int64) {
	if !f.mainDraining && f.nowDepth == 0 && len(f.mainQueue) == 0 {
		threadFrames.Delete(id)
	}
}

// enqueueMainLocal appends fn to the current goroutine's main-coalescing
// FIFO. Valid only while mainDraining is set.
func enqueueMainLocal(fn func()) bool {
	f, _ := currentFrame()
	if f == nil || !f.mainDraining {
		return false
	}
	f.mainQueue = append(f.mainQueue, fn)
	return true
}

// withMainDraining runs fn with the coalescing flag set, then drains every
// callback the chain enqueued, all within the same run-loop pass.
func withMainDraining(fn func()) {
	f, id := ensureFrame()
	f.mainDraining = true
	defer func() {
		f.mainDraining = false
		f.releaseIfIdle(id)
	}()
	fn()
	for len(f.mainQueue) > 0 {
		next := f.mainQueue[0]
		f.mainQueue = f.mainQueue[0:copy(f.mainQueue, f.mainQueue[1:])]
		next()
	}
}

// withNowFlag runs fn with the now-or synchronous flag raised.
func withNowFlag(fn func()) {
	f, id := ensureFrame()
	f.nowDepth++
	defer func() {
		f.nowDepth--
		f.releaseIfIdle(id)
	}()
	fn()
}

// IsExecutingNow reports whether the calling goroutine is inside a now-or
// context that is executing synchronously. Immediate-context callbacks
// nested within such a dispatch inherit the flag.
func IsExecutingNow() bool {
	f, _ := currentFrame()
	return f != nil && f.nowDepth > 0
}
