package fetcher

import (
	"context"
	"sync"
)

// gate is a counting permit pool whose capacity can be raised at any time.
// Unlike golang.org/x/sync/semaphore.Weighted (whose capacity is fixed at
// construction), a gate's capacity is just a threshold compared against the
// number of permits currently checked out — which is exactly what lets it
// grow by raising the threshold and shrink passively by lowering it without
// reclaiming anything already checked out. This is the "counting gate whose
// capacity can be raised atomically" construct called for when a language's
// built-in semaphore doesn't support resize.
type gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int64
	inFlight int64
}

func newGate(initial int64) *gate {
	if initial <= 0 {
		initial = 1
	}
	g := &gate{capacity: initial}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// acquire blocks until a permit is available or ctx is done.
func (g *gate) acquire(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	for g.inFlight >= g.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.inFlight++
	return nil
}

// release returns a permit to the pool.
func (g *gate) release() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	g.cond.Broadcast()
}

// resize changes the target capacity. Growth wakes any blocked acquirers
// immediately; shrink only lowers the threshold — permits already checked
// out are never reclaimed, so no in-flight fetch is ever cancelled by a
// shrink.
func (g *gate) resize(newCapacity int64) {
	if newCapacity <= 0 {
		newCapacity = 1
	}
	g.mu.Lock()
	g.capacity = newCapacity
	g.mu.Unlock()
	g.cond.Broadcast()
}
