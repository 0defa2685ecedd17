// Package gate implements admission control for in-flight requests with a
// limit that can be resized mid-run (spec.md §4.E, invariants I3/B1),
// translated from the teacher's mutex-guarded counter idiom into
// sync.Mutex+sync.Cond, Go's direct analogue of Python's
// threading.Condition.
package gate

import (
	"context"
	"sync"
)

// ResizableGate bounds the number of concurrently in-flight requests. Unlike
// a fixed-size semaphore, its ceiling can grow or shrink while requests are
// in flight; shrinking never revokes permits already held, it only narrows
// how many future Acquire calls can succeed until the count drains below
// the new maximum.
type ResizableGate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	max      int
	inFlight int
	closed   bool
}

// New creates a gate that admits up to max concurrent holders.
func New(max int) *ResizableGate {
	g := &ResizableGate{max: max}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire blocks until a permit is available, ctx is canceled, or the gate
// is closed. Resize calls waiting acquirers whenever max grows.
func (g *ResizableGate) Acquire(ctx context.Context) error {
	g.mu.Lock()

	// A goroutine parked in cond.Wait cannot observe ctx.Done directly, so a
	// watcher goroutine translates cancellation into a broadcast.
	done := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				g.cond.Broadcast()
			case <-done:
			}
		}()
		defer close(done)
	}

	for !g.closed && g.inFlight >= g.max {
		if err := ctx.Err(); err != nil {
			g.mu.Unlock()
			return err
		}
		g.cond.Wait()
	}

	if g.closed {
		g.mu.Unlock()
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		g.mu.Unlock()
		return err
	}

	g.inFlight++
	g.mu.Unlock()
	return nil
}

// Release returns a permit to the gate.
func (g *ResizableGate) Release() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Resize changes the admission ceiling. Shrinking does not evict holders
// already admitted; it only narrows future Acquire calls until inFlight
// drains below the new max, mirroring resizable_semaphore's "never forcibly
// drain in-flight work" behavior.
func (g *ResizableGate) Resize(newMax int) {
	g.mu.Lock()
	g.max = newMax
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Close wakes every blocked Acquire so they return context.Canceled. Used
// during shutdown so no goroutine waits forever on a gate nobody will
// release into again.
func (g *ResizableGate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

// InFlight reports the current number of held permits.
func (g *ResizableGate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Max reports the current admission ceiling.
func (g *ResizableGate) Max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}

// Available reports how many more permits can currently be acquired without
// blocking (never negative).
func (g *ResizableGate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.max <= g.inFlight {
		return 0
	}
	return g.max - g.inFlight
}
