package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool lifecycle states, reported by PoolStatus.StateCode.
const (
	// PoolStateActive accepts and runs tasks.
	PoolStateActive = uint8(0)
	// PoolStateDraining rejects new tasks while scheduled ones finish.
	PoolStateDraining = uint8(1)
	// PoolStateStopped has no tasks left and rejects new ones.
	PoolStateStopped = uint8(2)
)

// ErrDrainTimeout is returned by Drain when in-flight tasks outlive the timeout.
var ErrDrainTimeout = errors.New("timeout waiting for worker pool to drain")

// Task is a unit of work scheduled on a WorkerPool slot.
type Task func(ctx context.Context)

// AbandonFunc is called instead of a Task whose context ended before a slot
// freed up. It runs without a slot and must return promptly.
type AbandonFunc func(err error)

// WorkerPool runs tasks on a fixed number of concurrent slots. It is shared by
// every backend call of a process and must be created before the first search
// and drained after the last one.
//
// The deadline timer never runs on this pool; see TimerService.
type WorkerPool struct {
	capacity int
	sem      *semaphore.Weighted

	// mu guards state transitions and orders wg.Add before Drain's wg.Wait
	mu    sync.RWMutex
	state uint8
	wg    sync.WaitGroup

	queued    atomic.Int64
	inFlight  atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	abandoned atomic.Int64
}

// PoolStatus is a point-in-time view of a WorkerPool.
type PoolStatus struct {
	State     string
	StateCode uint8
	Capacity  int
	Queued    int
	InFlight  int
	Submitted int
	Completed int
	Abandoned int
}

// NewWorkerPool creates an active pool. capacity <= 0 selects DefaultPoolCapacity.
func NewWorkerPool(capacity int) *WorkerPool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &WorkerPool{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
		state:    PoolStateActive,
	}
}

// Capacity returns the number of concurrent slots.
func (p *WorkerPool) Capacity() int {
	return p.capacity
}

// Go schedules task and returns immediately. The task waits for a free slot
// and is dropped if ctx ends first. Returns ErrPoolClosed once Drain has been
// called.
func (p *WorkerPool) Go(ctx context.Context, task Task) error {
	return p.GoOrAbandon(ctx, task, nil)
}

// GoOrAbandon is Go with a hook for dropped tasks: exactly one of task and
// onAbandon runs. A task only ever runs while holding a slot, so capacity
// holds even for tasks that ignore ctx.
func (p *WorkerPool) GoOrAbandon(ctx context.Context, task Task, onAbandon AbandonFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != PoolStateActive {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	p.submitted.Add(1)
	p.queued.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.completed.Add(1)

		err := p.sem.Acquire(ctx, 1)
		p.queued.Add(-1)
		if err != nil {
			p.abandoned.Add(1)
			if onAbandon != nil {
				onAbandon(err)
			}
			return
		}
		defer p.sem.Release(1)

		p.inFlight.Add(1)
		defer p.inFlight.Add(-1)
		task(ctx)
	}()
	return nil
}

// Drain stops accepting tasks and waits for every scheduled task to finish.
// A successful Drain transitions Active -> Draining -> Stopped.
func (p *WorkerPool) Drain(timeout time.Duration) error {
	p.setState(PoolStateDraining)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return fmt.Errorf("%w: %d tasks in flight, %d queued", ErrDrainTimeout, p.inFlight.Load(), p.queued.Load())
	}

	p.setState(PoolStateStopped)
	return nil
}

// Status reports the pool's counters.
func (p *WorkerPool) Status() PoolStatus {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()
	return PoolStatus{
		State:     poolStateDescription(state),
		StateCode: state,
		Capacity:  p.capacity,
		Queued:    int(p.queued.Load()),
		InFlight:  int(p.inFlight.Load()),
		Submitted: int(p.submitted.Load()),
		Completed: int(p.completed.Load()),
		Abandoned: int(p.abandoned.Load()),
	}
}

func (p *WorkerPool) setState(state uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func poolStateDescription(state uint8) string {
	switch state {
	case PoolStateActive:
		return fmt.Sprintf("%d: Active", PoolStateActive)
	case PoolStateDraining:
		return fmt.Sprintf("%d: Draining", PoolStateDraining)
	case PoolStateStopped:
		return fmt.Sprintf("%d: Stopped", PoolStateStopped)
	}
	panic("unknown pool state")
}
