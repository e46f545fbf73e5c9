package task

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the gate capacity used when none is configured.
const DefaultConcurrency = 5

// Gate is a counting semaphore. Waiters are admitted in FIFO order.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
}

// NewGate creates a gate with the given number of permits. Values below one
// select DefaultConcurrency.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = DefaultConcurrency
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a permit taken by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Capacity returns the number of permits.
func (g *Gate) Capacity() int {
	return g.capacity
}
