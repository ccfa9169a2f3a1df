// Package gate bounds how many automation executions run at once.
package gate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the global concurrent-execution bound when the
// application config leaves it unset
const DefaultCapacity = 5

// Gate is a counting semaphore guarding the per-automation workspace loop.
// Acquire blocks until a permit is free; the returned release function must
// be called exactly once, typically via defer so the error path releases too.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int

	mu       sync.Mutex
	inFlight int
}

// New creates a gate with the given capacity; non-positive capacities fall
// back to DefaultCapacity
func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire claims a permit, blocking until one is available or ctx is done
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.inFlight++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight--
			g.mu.Unlock()
			g.sem.Release(1)
		})
	}, nil
}

// TryAcquire claims a permit without blocking. Returns nil if none are free.
func (g *Gate) TryAcquire() (release func()) {
	if !g.sem.TryAcquire(1) {
		return nil
	}
	g.mu.Lock()
	g.inFlight++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight--
			g.mu.Unlock()
			g.sem.Release(1)
		})
	}
}

// InFlight returns the number of currently held permits
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Capacity returns the permit count the gate was created with
func (g *Gate) Capacity() int {
	return g.capacity
}
