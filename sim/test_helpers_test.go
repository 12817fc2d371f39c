package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// testUnit stretches time units so scheduling jitter stays well below the
// gaps between scenario latencies.
const testUnit = 4 * time.Millisecond

// fixedBackend returns a backend that always takes latency units.
func fixedBackend(name, label string, latency int64) *Backend {
	return NewBackend(BackendSpec{
		Name:    name,
		Label:   label,
		Latency: FixedLatency(latency),
	}, rand.New(rand.NewSource(1)), testUnit)
}

// fixedService builds a service whose replicas have the given fixed latencies.
// Replica i answers with ReplicaLabel(name, i).
func fixedService(name string, latencies ...int64) Service {
	replicas := make([]Caller, len(latencies))
	for i, l := range latencies {
		replicas[i] = fixedBackend(ReplicaName(name, i), ReplicaLabel(name, i), l)
	}
	return Service{Name: name, Replicas: replicas}
}

// failingCaller fails after d, counting its invocations.
func failingCaller(name string, d time.Duration, calls *atomic.Int64) Caller {
	return CallerFunc(func(ctx context.Context, query string) (Result, error) {
		if calls != nil {
			calls.Add(1)
		}
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%s: %w", name, ErrInterruptedWait)
		case <-time.After(d):
		}
		return Result{}, fmt.Errorf("%s: %w", name, ErrBackendFailed)
	})
}

// blockingCaller holds its pool slot until release is closed.
func blockingCaller(release <-chan struct{}) Caller {
	return CallerFunc(func(ctx context.Context, query string) (Result, error) {
		<-release
		return Result{Replica: "blocker", Value: "blocked"}, nil
	})
}

func values(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

// eventually polls cond until it holds or d elapses.
func eventually(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
