package dispatch

import (
	"sync"
	"testing"
)

func TestDynamicPool_ReusesRunners(t *testing.T) {
	made := 0
	p := newDynamicPool(func() *runner {
		made++
		return &runner{onPanic: func(any) {}}
	})

	r := p.Get()
	p.Put(r)
	p.Get()

	if made == 0 {
		t.Fatal("pool never constructed a runner")
	}
}

func TestFixedPool_NeverExceedsCapacity(t *testing.T) {
	var mu sync.Mutex
	made := 0
	p := newFixedPool(2, func() *runner {
		mu.Lock()
		made++
		mu.Unlock()
		return &runner{onPanic: func(any) {}}
	})

	r1 := p.Get()
	r2 := p.Get()

	// Third Get must block until a runner is returned.
	acquired := make(chan *runner, 1)
	go func() { acquired <- p.Get() }()

	select {
	case <-acquired:
		t.Fatal("Get exceeded the fixed capacity")
	default:
	}

	p.Put(r1)
	r3 := <-acquired
	if r3 == nil {
		t.Fatal("blocked Get never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	if made != 2 {
		t.Fatalf("constructed %d runners, want 2", made)
	}
	_ = r2
}

func TestRunner_RecoversPanic(t *testing.T) {
	var got any
	r := &runner{onPanic: func(rec any) { got = rec }}
	r.invoke(func() { panic("kaboom") })
	if got != "kaboom" {
		t.Fatalf("recovered = %v, want kaboom", got)
	}
}
