package util

import "sync"

// A Gate limits concurrency. Every gate has a maximum number of goroutines
// to allow through at a time. Goroutines enter the gate by calling Enter(),
// and signal that they are done by calling Leave().
//
// The batch archiver uses a Gate to bound how many configurations are being
// resolved and written at once, and stops it to give up early.
type Gate struct {
	slots chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewGate returns a Gate which accepts at most n entries at a time. A
// non-positive n is treated as 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{
		slots: make(chan struct{}, n),
		done:  make(chan struct{}),
	}
}

// Enter is called at the beginning of the section to be protected by
// the gate, and will block the calling goroutine until there are less than
// n goroutines inside. It returns false if the gate was stopped while
// waiting, in which case the caller must not call Leave.
// It is safe to call this from multiple goroutines.
func (g *Gate) Enter() bool {
	select {
	case <-g.done:
		return false
	default:
	}
	select {
	case g.slots <- struct{}{}:
	case <-g.done:
		return false
	}
	// both cases may have been ready; Stop takes precedence
	select {
	case <-g.done:
		<-g.slots
		return false
	default:
		return true
	}
}

// Leave marks a goroutine outside the critical section. It is important to
// balance each successful call to Enter with a call to Leave. Enter and
// Leave do not need to be called from the same goroutine, necessarily.
func (g *Gate) Leave() {
	<-g.slots
}

// Stop makes every pending and future Enter return false. Goroutines
// already inside are not affected and still call Leave. Stop may be called
// more than once, and from inside the gate.
func (g *Gate) Stop() {
	g.once.Do(func() { close(g.done) })
}
