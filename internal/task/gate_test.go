package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateCapacity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, NewGate(3).Capacity())
	assert.Equal(t, DefaultConcurrency, NewGate(0).Capacity())
	assert.Equal(t, DefaultConcurrency, NewGate(-1).Capacity())
}

func TestGateBoundsHolders(t *testing.T) {
	t.Parallel()

	const capacity = 4
	gate := NewGate(capacity)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, gate.Acquire(context.Background())) {
				return
			}
			defer gate.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(capacity))
	assert.Zero(t, current.Load())
}

func TestGateAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	gate := NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Acquire(ctx), context.DeadlineExceeded)

	gate.Release()
	require.NoError(t, gate.Acquire(context.Background()))
	gate.Release()
}
