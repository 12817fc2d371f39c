package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// RaceHandle is one in-flight replica race: K interchangeable calls for the
// same service, resolved exactly once by the first successful completion.
// Completions after resolution are counted and discarded.
type RaceHandle struct {
	service  string
	replicas int
	done     chan struct{}
	cancel   context.CancelFunc
	discard  func(Result)
	returned sync.WaitGroup

	mu        sync.Mutex
	pending   int
	resolved  bool
	winner    Result
	err       error
	failures  []error
	discarded int
}

// RaceOptions tunes a replica race.
type RaceOptions struct {
	// CancelLosers cancels the replicas still running once the race resolves
	// or the caller's context ends. Otherwise every replica runs to completion.
	CancelLosers bool
	// OnDiscard receives every successful result that lost the race.
	OnDiscard func(Result)
}

// StartRace launches every replica on pool concurrently and returns at once.
// Returns ErrNoReplicas for an empty replica set.
func StartRace(ctx context.Context, pool *WorkerPool, service, query string, replicas []Caller, opts RaceOptions) (*RaceHandle, error) {
	if len(replicas) == 0 {
		return nil, fmt.Errorf("service %s: %w", service, ErrNoReplicas)
	}

	parent := ctx
	if !opts.CancelLosers {
		// losers outlive the caller's context and land in the discard sink
		parent = context.WithoutCancel(ctx)
	}
	raceCtx, cancel := context.WithCancel(parent)
	h := &RaceHandle{
		service:  service,
		replicas: len(replicas),
		done:     make(chan struct{}),
		pending:  len(replicas),
		discard:  opts.OnDiscard,
	}
	h.returned.Add(len(replicas))
	if opts.CancelLosers {
		h.cancel = cancel
	} else {
		// release the context only once every replica is back
		h.cancel = func() {}
		go func() {
			h.returned.Wait()
			cancel()
		}()
	}

	for _, replica := range replicas {
		err := pool.GoOrAbandon(raceCtx, func(ctx context.Context) {
			r, err := replica.Call(ctx, query)
			h.complete(r, err)
		}, func(err error) {
			h.complete(Result{}, fmt.Errorf("service %s: %w: %v", service, ErrInterruptedWait, err))
		})
		if err != nil {
			h.complete(Result{}, err)
		}
	}
	return h, nil
}

// complete records one replica completion. Only the first success resolves
// the race; failures resolve it only when no replica is left pending.
func (h *RaceHandle) complete(r Result, err error) {
	defer h.returned.Done()
	r.Service = h.service
	if h.record(r, err) && err == nil && h.discard != nil {
		h.discard(r)
	}
}

// record applies one completion under the lock and reports whether it
// arrived after resolution.
func (h *RaceHandle) record(r Result, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending--
	if h.resolved {
		h.discarded++
		return true
	}
	if err != nil {
		h.failures = append(h.failures, err)
		if h.pending == 0 {
			h.resolveLocked(Result{}, fmt.Errorf("service %s: %w: %w", h.service, ErrAllReplicasFailed, errors.Join(h.failures...)))
		}
		return false
	}
	h.resolveLocked(r, nil)
	return false
}

func (h *RaceHandle) resolveLocked(r Result, err error) {
	h.resolved = true
	h.winner = r
	h.err = err
	close(h.done)
	h.cancel()
}

// Wait blocks until the race resolves or ctx ends. The error wraps
// ErrAllReplicasFailed or ErrInterruptedWait.
func (h *RaceHandle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.winner, h.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("service %s: %w: %v", h.service, ErrInterruptedWait, ctx.Err())
	}
}

// Done is closed when the race resolves.
func (h *RaceHandle) Done() <-chan struct{} {
	return h.done
}

// Service returns the logical service this race answers for.
func (h *RaceHandle) Service() string {
	return h.service
}

// Replicas returns the number of replicas started.
func (h *RaceHandle) Replicas() int {
	return h.replicas
}

// Failures returns how many replicas failed before the race resolved.
func (h *RaceHandle) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.failures)
}

// Discarded returns how many replicas completed after resolution.
func (h *RaceHandle) Discarded() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.discarded
}

// Pending returns how many replicas are still running.
func (h *RaceHandle) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}
