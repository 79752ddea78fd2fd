package tomorrowland

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lilyball/tomorrowland/dispatch"
)

func TestImmediate_RunsInline(t *testing.T) {
	ran := false
	Immediate().run(func() { ran = true })
	assert.True(t, ran)
}

func TestMain_RunsOnSingleGoroutine(t *testing.T) {
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		i := i
		Main().run(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 9 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("main loop never drained")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v, "main loop must preserve FIFO order")
	}
}

func TestMain_CoalescesChainedCallbacks(t *testing.T) {
	p, r := WithResolver[int, error]()

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	done := make(chan struct{})
	c := p.Then(Main(), func(int) {
		record("first")
		// Anything enqueued externally now must wait for the pass to end.
		mainLoop.enqueue(func() {
			record("external")
			close(done)
		})
	})
	c.Then(Main(), func(int) {
		record("chained")
	})

	r.Fulfill(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callbacks never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "chained", "external"}, order,
		"the chained callback must run in the same run-loop pass, ahead of externally enqueued work")
}

func TestNowOr_SynchronousWhenResolved(t *testing.T) {
	p := NewFulfilled[int, error](1)

	ran := false
	sawFlag := false
	p.Then(NowOr(DefaultQoS()), func(int) {
		ran = true
		sawFlag = IsExecutingNow()
	})

	assert.True(t, ran, "callback must run before the attach returns")
	assert.True(t, sawFlag, "IsExecutingNow must read true inside the synchronous dispatch")
	assert.False(t, IsExecutingNow(), "the flag must clear after the dispatch")
}

func TestNowOr_AsynchronousWhenPending(t *testing.T) {
	p, r := WithResolver[int, error]()

	done := make(chan bool, 1)
	p.Then(NowOr(DefaultQoS()), func(int) {
		done <- IsExecutingNow()
	})

	select {
	case <-done:
		t.Fatal("callback ran before resolution")
	case <-time.After(20 * time.Millisecond):
	}

	r.Fulfill(1)
	select {
	case sawFlag := <-done:
		assert.False(t, sawFlag, "a deferred now-or callback runs on the inner context without the flag")
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestNowOr_ImmediateInheritsFlag(t *testing.T) {
	p := NewFulfilled[int, error](1)

	var nested bool
	p.Then(NowOr(DefaultQoS()), func(int) {
		NewFulfilled[int, error](2).Then(Immediate(), func(int) {
			nested = IsExecutingNow()
		})
	})
	assert.True(t, nested, "immediate callbacks nested in a synchronous now-or dispatch see the flag")
}

func TestQueueContext_UsesSuppliedQueue(t *testing.T) {
	q := dispatch.NewSerial()
	defer q.Close()

	p, r := WithResolver[int, error]()
	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		p.Then(QueueContext(q), func(int) {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	r.Fulfill(0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serial queue never drained")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order,
		"callbacks on one serial context fire in registration order")
}

func TestOperationQueueContext(t *testing.T) {
	oq := &recordingOperationQueue{}
	p := NewFulfilled[int, error](3)

	done := make(chan int, 1)
	p.Then(OperationQueueContext(oq), func(v int) { done <- v })

	select {
	case v := <-done:
		assert.Equal(t, 3, v)
	case <-time.After(time.Second):
		t.Fatal("operation never ran")
	}
	assert.EqualValues(t, 1, oq.added.Load())
}

type recordingOperationQueue struct {
	added atomicInt64
}

func (q *recordingOperationQueue) AddOperation(fn func()) {
	q.added.Add(1)
	go fn()
}

// atomicInt64 avoids importing sync/atomic solely for the helper type.
type atomicInt64 struct {
	mu sync.Mutex
	v  int64
}

func (a *atomicInt64) Add(n int64) {
	a.mu.Lock()
	a.v += n
	a.mu.Unlock()
}

func (a *atomicInt64) Load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func TestAutomatic_OffMainLoop(t *testing.T) {
	// Off the run loop, Automatic dispatches onto the default QoS pool.
	p := NewFulfilled[int, error](1)
	done := make(chan bool, 1)
	p.Then(Automatic(), func(int) {
		done <- mainLoop.isCurrent()
	})
	select {
	case onMain := <-done:
		assert.False(t, onMain)
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestAutomatic_OnMainLoop(t *testing.T) {
	done := make(chan bool, 1)
	Main().run(func() {
		p := NewFulfilled[int, error](1)
		p.Then(Automatic(), func(int) {
			done <- mainLoop.isCurrent()
		})
	})
	select {
	case onMain := <-done:
		assert.True(t, onMain, "Automatic from the run loop must resolve to Main")
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestForQoS(t *testing.T) {
	assert.Same(t, Background(), ForQoS(dispatch.Background))
	assert.Same(t, UserInteractive(), ForQoS(dispatch.UserInteractive))
	assert.Same(t, DefaultQoS(), ForQoS(dispatch.QoS(99)))
}

func TestContext_Destination(t *testing.T) {
	q := dispatch.NewSerial()
	defer q.Close()
	oq := &recordingOperationQueue{}

	gotQ, gotOQ := QueueContext(q).destination()
	assert.NotNil(t, gotQ)
	assert.Nil(t, gotOQ)

	gotQ, gotOQ = OperationQueueContext(oq).destination()
	assert.Nil(t, gotQ)
	assert.NotNil(t, gotOQ)

	gotQ, gotOQ = NowOr(QueueContext(q)).destination()
	assert.NotNil(t, gotQ, "now-or must report its inner destination")
	assert.Nil(t, gotOQ)

	gotQ, gotOQ = Immediate().destination()
	assert.Nil(t, gotQ)
	assert.Nil(t, gotOQ)
}
