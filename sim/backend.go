package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is the value produced by exactly one backend call invocation.
// Service is filled in by the aggregator; Replica and Value by the backend.
type Result struct {
	Service string
	Replica string
	Value   string
	Latency time.Duration
}

// Caller is one backend replica as seen by the orchestration core.
// Call blocks for the backend's latency and must honor ctx cancellation.
type Caller interface {
	Call(ctx context.Context, query string) (Result, error)
}

// CallerFunc adapts a plain function to the Caller interface.
type CallerFunc func(ctx context.Context, query string) (Result, error)

func (f CallerFunc) Call(ctx context.Context, query string) (Result, error) {
	return f(ctx, query)
}

// BackendSpec describes one simulated replica.
type BackendSpec struct {
	Name        string         // replica identity, e.g. "web_1"
	Label       string         // fixed value returned by every call
	Latency     LatencySampler // service time in time units
	FailureRate float64        // probability in [0, 1] that a call fails after its latency
}

// Backend is a simulated network call: it sleeps for a sampled latency and
// returns a fixed label. The label is pure given the backend identity; only
// latency (and the optional injected failure) varies between calls.
type Backend struct {
	spec BackendSpec
	unit time.Duration

	mu  sync.Mutex
	rng *rand.Rand // owned exclusively by this backend
}

// NewBackend creates a Backend drawing from rng. The caller must not use rng
// afterwards. unit scales sampled latencies to wall-clock time.
func NewBackend(spec BackendSpec, rng *rand.Rand, unit time.Duration) *Backend {
	if spec.Latency == nil {
		spec.Latency = UniformLatency{Min: DefaultLatencyMin, Max: DefaultLatencyMax}
	}
	if unit <= 0 {
		unit = DefaultTimeUnit
	}
	return &Backend{spec: spec, unit: unit, rng: rng}
}

// Name returns the replica identity.
func (b *Backend) Name() string {
	return b.spec.Name
}

// Label returns the value every successful call produces.
func (b *Backend) Label() string {
	return b.spec.Label
}

// draw samples latency and the failure coin under the backend's lock.
func (b *Backend) draw() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	latency := ToDuration(b.spec.Latency.Sample(b.rng), b.unit)
	failed := b.spec.FailureRate > 0 && b.rng.Float64() < b.spec.FailureRate
	return latency, failed
}

// Call blocks for a sampled latency and returns the backend's label.
// Returns an error wrapping ErrInterruptedWait if ctx ends first, or
// ErrBackendFailed when the injected failure fires.
func (b *Backend) Call(ctx context.Context, query string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%s: %w: %v", b.spec.Name, ErrInterruptedWait, err)
	}
	latency, failed := b.draw()
	logrus.Debugf("backend %s: query=%q latency=%v", b.spec.Name, query, latency)

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%s: %w: %v", b.spec.Name, ErrInterruptedWait, ctx.Err())
	case <-timer.C:
	}

	if failed {
		return Result{}, fmt.Errorf("%s: %w", b.spec.Name, ErrBackendFailed)
	}
	return Result{Replica: b.spec.Name, Value: b.spec.Label, Latency: latency}, nil
}
