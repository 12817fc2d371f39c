package sim

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/search-sim/sim/trace"
)

// SearchResult is the (possibly partial) answer to one query. Services listed
// in Missing gave no answer in time; that is not an error.
type SearchResult struct {
	ID          uuid.UUID
	Query       string
	Results     []Result
	Missing     []string
	TimedOut    bool
	Interrupted bool
	Elapsed     time.Duration

	collection *ResultCollection
}

// Values returns the result values in service order.
func (r *SearchResult) Values() []string {
	values := make([]string, len(r.Results))
	for i, res := range r.Results {
		values[i] = res.Value
	}
	return values
}

// Discards returns the results dropped so far for this search: duplicates
// from race losers and late arrivals after the deadline. The list can keep
// growing while abandoned calls finish in the background.
func (r *SearchResult) Discards() []DiscardedResult {
	if r.collection == nil {
		return nil
	}
	return r.collection.Discarded()
}

// Print writes the result line, preceded by "timed out" when the deadline fired.
func (r *SearchResult) Print(w io.Writer) {
	if r.TimedOut {
		fmt.Fprintln(w, "timed out")
	}
	fmt.Fprintf(w, "[%s]\n", strings.Join(r.Values(), ", "))
}

// Searcher wires the aggregator, the deadline governor, the worker pool and
// the timer facility together. The pool and timers are owned by the caller;
// a Searcher holds no per-search state and is safe for concurrent use.
type Searcher struct {
	pool       *WorkerPool
	timers     TimerService
	aggregator *Aggregator
	timeout    time.Duration
	cancel     bool
	trace      *trace.SearchTrace
}

// NewSearcher validates services and returns a ready Searcher. timers may be
// nil to use RuntimeTimers; st may be nil to disable tracing.
func NewSearcher(cfg Config, services []Service, pool *WorkerPool, timers TimerService, st *trace.SearchTrace) (*Searcher, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", cfg.Timeout)
	}
	if cfg.TimeUnit <= 0 {
		cfg.TimeUnit = DefaultTimeUnit
	}
	agg, err := NewAggregator(pool, services, AggregatorOptions{
		CancelAbandoned:          cfg.CancelAbandoned,
		RetryOnAllReplicasFailed: cfg.RetryOnAllReplicasFailed,
		Trace:                    st,
	})
	if err != nil {
		return nil, err
	}
	if timers == nil {
		timers = RuntimeTimers{}
	}
	return &Searcher{
		pool:       pool,
		timers:     timers,
		aggregator: agg,
		timeout:    cfg.TimeoutDuration(),
		cancel:     cfg.CancelAbandoned,
		trace:      st,
	}, nil
}

// Search fans query out to every service and returns once all answered or
// the deadline fired, whichever comes first.
func (s *Searcher) Search(ctx context.Context, query string) *SearchResult {
	id := uuid.New()
	start := time.Now()
	coll := NewResultCollection(s.aggregator.ServiceNames())

	outcome := WithDeadline(ctx, s.timers, s.timeout, coll, func(ctx context.Context) {
		s.aggregator.Aggregate(ctx, id.String(), query, coll)
	}, GovernorOptions{CancelOnTimeout: s.cancel})
	elapsed := time.Since(start)

	logrus.WithFields(logrus.Fields{"search": id.String(), "results": len(outcome.Results)}).
		Debugf("search %q done in %v (timed out: %v)", query, elapsed, outcome.TimedOut)
	s.trace.RecordDeadline(trace.DeadlineRecord{
		SearchID: id.String(),
		Timeout:  s.timeout,
		Elapsed:  elapsed,
		TimedOut: outcome.TimedOut,
		Results:  len(outcome.Results),
		Missing:  outcome.Missing,
	})

	return &SearchResult{
		ID:          id,
		Query:       query,
		Results:     outcome.Results,
		Missing:     outcome.Missing,
		TimedOut:    outcome.TimedOut,
		Interrupted: outcome.Interrupted,
		Elapsed:     elapsed,
		collection:  coll,
	}
}

// Services returns the service names in result order.
func (s *Searcher) Services() []string {
	return s.aggregator.ServiceNames()
}
