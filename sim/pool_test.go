package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_NeverExceedsCapacity(t *testing.T) {
	// GIVEN a pool with 3 slots
	pool := NewWorkerPool(3)

	// WHEN 20 tasks are scheduled at once
	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()

	// THEN at most 3 ran concurrently
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, int64(3), peak.Load(), "pool should reach its capacity")
	require.NoError(t, pool.Drain(time.Second))
	status := pool.Status()
	assert.Equal(t, 20, status.Submitted)
	assert.Equal(t, 20, status.Completed)
	assert.Equal(t, 0, status.InFlight)
}

func TestWorkerPool_Go_DoesNotBlockCaller(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { <-release }))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.True(t, eventually(time.Second, func() bool { return pool.Status().Queued == 4 }))
}

func TestWorkerPool_QueuedTaskAbandonedOnCancel(t *testing.T) {
	// GIVEN a pool whose only slot is held
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { <-release }))

	// WHEN a queued task's context ends
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	abandoned := make(chan error, 1)
	require.NoError(t, pool.GoOrAbandon(ctx,
		func(ctx context.Context) { ran.Store(true) },
		func(err error) { abandoned <- err }))
	cancel()

	// THEN the abandon hook fires instead of the task
	select {
	case err := <-abandoned:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("abandon hook never ran")
	}
	close(release)
	require.NoError(t, pool.Drain(time.Second))
	assert.False(t, ran.Load(), "abandoned task must not run")
	assert.Equal(t, 1, pool.Status().Abandoned)
}

func TestWorkerPool_AbandonedTasksNeverExceedCapacity(t *testing.T) {
	// GIVEN a single-slot pool held by a task that ignores its context
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	var running, peak atomic.Int64
	hold := func(ctx context.Context) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	}
	require.NoError(t, pool.Go(context.Background(), hold))

	// WHEN more ctx-ignoring tasks queue up and their context ends
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Go(ctx, hold))
	}
	cancel()
	require.True(t, eventually(time.Second, func() bool { return pool.Status().Abandoned == 5 }))
	close(release)
	require.NoError(t, pool.Drain(time.Second))

	// THEN only the slot holder ever ran
	assert.Equal(t, int64(1), peak.Load())
	assert.Equal(t, 6, pool.Status().Completed)
}

func TestWorkerPool_DrainRejectsNewWork(t *testing.T) {
	pool := NewWorkerPool(2)
	require.NoError(t, pool.Drain(time.Second))
	assert.ErrorIs(t, pool.Go(context.Background(), func(ctx context.Context) {}), ErrPoolClosed)
	assert.Equal(t, PoolStateStopped, pool.Status().StateCode)
}

func TestWorkerPool_DrainTimeout(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { <-release }))

	err := pool.Drain(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrDrainTimeout)
	assert.Equal(t, "1: Draining", pool.Status().State)
}

func TestNewWorkerPool_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultPoolCapacity, NewWorkerPool(0).Capacity())
	assert.Equal(t, 4, NewWorkerPool(4).Capacity())
}
