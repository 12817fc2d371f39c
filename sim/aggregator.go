package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/search-sim/sim/trace"
)

// Service is one logical backend and its interchangeable replicas.
type Service struct {
	Name     string
	Replicas []Caller
}

// AggregatorOptions tunes failure and cancellation behavior.
type AggregatorOptions struct {
	// CancelAbandoned cancels replicas that lost their race.
	CancelAbandoned bool
	// RetryOnAllReplicasFailed restarts a service's race once when every
	// replica failed. Disabled by default.
	RetryOnAllReplicasFailed bool
	// Trace, when enabled, receives one RaceRecord per service per search.
	Trace *trace.SearchTrace
}

// Aggregator fans a query out to every service concurrently and collects one
// result per service into a ResultCollection.
type Aggregator struct {
	pool     *WorkerPool
	services []Service
	opts     AggregatorOptions
}

// NewAggregator validates the topology before any work starts.
func NewAggregator(pool *WorkerPool, services []Service, opts AggregatorOptions) (*Aggregator, error) {
	if pool == nil {
		return nil, fmt.Errorf("aggregator requires a worker pool")
	}
	if len(services) == 0 {
		return nil, ErrNoServices
	}
	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if seen[svc.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateService, svc.Name)
		}
		seen[svc.Name] = true
		if len(svc.Replicas) == 0 {
			return nil, fmt.Errorf("service %q: %w", svc.Name, ErrNoReplicas)
		}
	}
	return &Aggregator{pool: pool, services: services, opts: opts}, nil
}

// ServiceNames returns the service names in topology order.
func (a *Aggregator) ServiceNames() []string {
	names := make([]string, len(a.services))
	for i, svc := range a.services {
		names[i] = svc.Name
	}
	return names
}

// Aggregate runs every service and offers each resolved result to coll. It
// returns once every service resolved or ctx ended. A failing service never
// affects its siblings; it simply leaves its cell empty.
func (a *Aggregator) Aggregate(ctx context.Context, searchID, query string, coll *ResultCollection) {
	var wg sync.WaitGroup
	for _, svc := range a.services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := a.runService(ctx, searchID, query, svc, coll)
			if err != nil {
				logrus.WithFields(logrus.Fields{"search": searchID, "service": svc.Name}).
					Warnf("service produced no result: %v", err)
				return
			}
			if !coll.Offer(r) {
				logrus.WithFields(logrus.Fields{"search": searchID, "service": svc.Name}).
					Debugf("result %q discarded after hand-off", r.Value)
			}
		}()
	}
	wg.Wait()
}

func (a *Aggregator) runService(ctx context.Context, searchID, query string, svc Service, coll *ResultCollection) (Result, error) {
	r, failures, err := a.attempt(ctx, query, svc, coll)
	retried := false
	if err != nil && a.opts.RetryOnAllReplicasFailed && errors.Is(err, ErrAllReplicasFailed) && ctx.Err() == nil {
		logrus.WithFields(logrus.Fields{"search": searchID, "service": svc.Name}).
			Infof("all replicas failed, retrying once")
		retried = true
		var more int
		r, more, err = a.attempt(ctx, query, svc, coll)
		failures += more
	}

	record := trace.RaceRecord{
		SearchID: searchID,
		Service:  svc.Name,
		Replicas: len(svc.Replicas),
		Failures: failures,
		Retried:  retried,
	}
	if err != nil {
		record.Err = err.Error()
	} else {
		record.Winner = r.Replica
		record.Value = r.Value
		record.Latency = r.Latency
	}
	a.opts.Trace.RecordRace(record)
	return r, err
}

// attempt resolves one service: a bare call for a single replica, a race
// otherwise. Race losers go to coll's discard sink. Returns the number of replica failures observed.
func (a *Aggregator) attempt(ctx context.Context, query string, svc Service, coll *ResultCollection) (Result, int, error) {
	if len(svc.Replicas) == 1 {
		r, err := a.call(ctx, query, svc.Name, svc.Replicas[0])
		if err != nil && !errors.Is(err, ErrInterruptedWait) {
			return Result{}, 1, fmt.Errorf("service %s: %w: %w", svc.Name, ErrAllReplicasFailed, err)
		}
		return r, 0, err
	}

	h, err := StartRace(ctx, a.pool, svc.Name, query, svc.Replicas, RaceOptions{
		CancelLosers: a.opts.CancelAbandoned,
		OnDiscard:    func(r Result) { coll.Discard(r, DiscardRaceLoser) },
	})
	if err != nil {
		return Result{}, 0, err
	}
	r, err := h.Wait(ctx)
	return r, h.Failures(), err
}

// call runs a single replica on the pool and waits for it. Unless
// CancelAbandoned is set the replica keeps running after ctx ends.
func (a *Aggregator) call(ctx context.Context, query, service string, replica Caller) (Result, error) {
	type outcome struct {
		r   Result
		err error
	}
	callCtx := ctx
	if !a.opts.CancelAbandoned {
		callCtx = context.WithoutCancel(ctx)
	}
	ch := make(chan outcome, 1)
	if err := a.pool.GoOrAbandon(callCtx, func(ctx context.Context) {
		r, err := replica.Call(ctx, query)
		ch <- outcome{r, err}
	}, func(err error) {
		ch <- outcome{err: fmt.Errorf("service %s: %w: %v", service, ErrInterruptedWait, err)}
	}); err != nil {
		return Result{}, err
	}

	select {
	case o := <-ch:
		if o.err != nil {
			return Result{}, o.err
		}
		o.r.Service = service
		return o.r, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("service %s: %w: %v", service, ErrInterruptedWait, ctx.Err())
	}
}
