package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRace_FastestReplicaWins(t *testing.T) {
	// GIVEN one service with replicas at 30 and 200 units
	pool := NewWorkerPool(4)
	svc := fixedService("web", 30, 200)

	// WHEN the race runs
	h, err := StartRace(context.Background(), pool, svc.Name, DefaultQuery, svc.Replicas, RaceOptions{})
	require.NoError(t, err)
	r, err := h.Wait(context.Background())

	// THEN the 30-unit replica's value is the winner
	require.NoError(t, err)
	assert.Equal(t, "web", r.Service)
	assert.Equal(t, "some-web", r.Value)
	assert.Equal(t, 1, h.Pending(), "the slow replica keeps running")

	// AND after the loser finishes it is counted as discarded, not as a second winner
	require.NoError(t, pool.Drain(5*time.Second))
	assert.Equal(t, 1, h.Discarded())
	again, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

func TestStartRace_LoserGoesToDiscardSink(t *testing.T) {
	pool := NewWorkerPool(4)
	svc := fixedService("web", 5, 15)
	var mu sync.Mutex
	var dropped []Result

	h, err := StartRace(context.Background(), pool, svc.Name, "q", svc.Replicas, RaceOptions{
		OnDiscard: func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			dropped = append(dropped, r)
		},
	})
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Drain(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dropped, 1)
	assert.Equal(t, "replica: some-web", dropped[0].Value)
	assert.Equal(t, "web", dropped[0].Service)
}

func TestStartRace_FailureDoesNotResolve(t *testing.T) {
	// GIVEN a fast failing replica and a slower healthy one
	pool := NewWorkerPool(4)
	replicas := []Caller{
		failingCaller("web_0", time.Millisecond, nil),
		fixedBackend("web_1", "replica: some-web", 5),
	}

	// WHEN the race runs
	h, err := StartRace(context.Background(), pool, "web", "q", replicas, RaceOptions{})
	require.NoError(t, err)
	r, err := h.Wait(context.Background())

	// THEN the healthy replica wins and the failure is recorded
	require.NoError(t, err)
	assert.Equal(t, "replica: some-web", r.Value)
	assert.Equal(t, 1, h.Failures())
}

func TestStartRace_AllReplicasFailed(t *testing.T) {
	pool := NewWorkerPool(4)
	replicas := []Caller{
		failingCaller("web_0", time.Millisecond, nil),
		failingCaller("web_1", 2*time.Millisecond, nil),
	}

	h, err := StartRace(context.Background(), pool, "web", "q", replicas, RaceOptions{})
	require.NoError(t, err)
	_, err = h.Wait(context.Background())

	assert.ErrorIs(t, err, ErrAllReplicasFailed)
	assert.ErrorIs(t, err, ErrBackendFailed)
	assert.Equal(t, 2, h.Failures())
}

func TestStartRace_NoReplicas(t *testing.T) {
	_, err := StartRace(context.Background(), NewWorkerPool(1), "web", "q", nil, RaceOptions{})
	assert.ErrorIs(t, err, ErrNoReplicas)
}

func TestStartRace_ClosedPool_FailsRace(t *testing.T) {
	pool := NewWorkerPool(1)
	require.NoError(t, pool.Drain(time.Second))
	svc := fixedService("web", 1, 1)

	h, err := StartRace(context.Background(), pool, svc.Name, "q", svc.Replicas, RaceOptions{})
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrAllReplicasFailed)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestRaceHandle_Wait_Interrupted(t *testing.T) {
	pool := NewWorkerPool(2)
	svc := fixedService("web", 500, 500)
	h, err := StartRace(context.Background(), pool, svc.Name, "q", svc.Replicas, RaceOptions{CancelLosers: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, ErrInterruptedWait)
}

func TestStartRace_CancelLosers_StopsSlowReplica(t *testing.T) {
	// GIVEN a race with a fast replica and a very slow one, losers cancelled
	pool := NewWorkerPool(4)
	svc := fixedService("web", 2, 10000)

	h, err := StartRace(context.Background(), pool, svc.Name, "q", svc.Replicas, RaceOptions{CancelLosers: true})
	require.NoError(t, err)
	r, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "some-web", r.Value)

	// THEN the slow replica returns well before its 40s latency
	require.NoError(t, pool.Drain(2*time.Second))
	assert.Equal(t, 0, h.Pending())
	assert.Equal(t, 1, h.Discarded())
}

// TestStartRace_Stress_ExactlyOneWinner races 2..5 replicas with tiny random
// latencies hundreds of times and checks that only one result escapes each race.
func TestStartRace_Stress_ExactlyOneWinner(t *testing.T) {
	pool := NewWorkerPool(DefaultPoolCapacity)
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 400; trial++ {
		k := 2 + trial%4
		replicas := make([]Caller, k)
		for i := range replicas {
			replicas[i] = NewBackend(BackendSpec{
				Name:    ReplicaName("web", i),
				Label:   ReplicaLabel("web", i),
				Latency: UniformLatency{Min: 0, Max: 2},
			}, rand.New(rand.NewSource(rng.Int63())), 100*time.Microsecond)
		}
		coll := NewResultCollection([]string{"web"})
		var losers atomic.Int64

		h, err := StartRace(context.Background(), pool, "web", "q", replicas, RaceOptions{
			OnDiscard: func(r Result) {
				losers.Add(1)
				coll.Discard(r, DiscardRaceLoser)
			},
		})
		require.NoError(t, err)
		r, err := h.Wait(context.Background())
		require.NoError(t, err)
		coll.Offer(r)

		require.True(t, eventually(time.Second, func() bool { return losers.Load() == int64(k-1) }),
			"trial %d: K=%d, losers=%d", trial, k, losers.Load())
		require.Equal(t, 1, coll.Len(), "trial %d: K=%d", trial, k)
		require.Equal(t, 0, h.Pending(), "trial %d", trial)
		require.Equal(t, k-1, h.Discarded(), "trial %d", trial)
	}
	require.NoError(t, pool.Drain(5*time.Second))
}

func TestStartRace_Tie_SingleWinner(t *testing.T) {
	// GIVEN K replicas completing at the same instant
	pool := NewWorkerPool(8)
	start := make(chan struct{})
	var answered atomic.Int64
	replicas := make([]Caller, 8)
	for i := range replicas {
		replicas[i] = CallerFunc(func(ctx context.Context, query string) (Result, error) {
			<-start
			answered.Add(1)
			return Result{Replica: fmt.Sprintf("r%d", i), Value: "v"}, nil
		})
	}

	h, err := StartRace(context.Background(), pool, "web", "q", replicas, RaceOptions{})
	require.NoError(t, err)
	close(start)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	// THEN exactly one is the winner and all others are discarded
	require.NoError(t, pool.Drain(time.Second))
	assert.Equal(t, int64(8), answered.Load())
	assert.Equal(t, 7, h.Discarded())
	assert.False(t, errors.Is(err, ErrAllReplicasFailed))
}

func TestStartRace_ParentCancelled_LoserStillCompletes(t *testing.T) {
	// GIVEN a resolved race whose parent context is cancelled right after
	pool := NewWorkerPool(4)
	svc := fixedService("web", 5, 40)
	var losers atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	h, err := StartRace(ctx, pool, svc.Name, "q", svc.Replicas, RaceOptions{
		OnDiscard: func(Result) { losers.Add(1) },
	})
	require.NoError(t, err)
	_, err = h.Wait(ctx)
	require.NoError(t, err)

	// WHEN the caller's context ends while the loser is still running
	cancel()
	require.NoError(t, pool.Drain(5*time.Second))

	// THEN the loser ran to completion and reached the discard sink
	assert.Equal(t, int64(1), losers.Load())
	assert.Equal(t, 1, h.Discarded())
	assert.Equal(t, 0, h.Failures())
}

func TestStartRace_AbandonedReplicas_ResolveAsFailed(t *testing.T) {
	// GIVEN a full pool and a cancellable race whose context is already done
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { <-release }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN both replicas are abandoned before getting a slot
	svc := fixedService("web", 1, 1)
	h, err := StartRace(ctx, pool, svc.Name, "q", svc.Replicas, RaceOptions{CancelLosers: true})
	require.NoError(t, err)
	_, err = h.Wait(context.Background())

	// THEN the race resolves with every replica reported as interrupted
	assert.ErrorIs(t, err, ErrAllReplicasFailed)
	assert.ErrorIs(t, err, ErrInterruptedWait)
	assert.Equal(t, 2, h.Failures())
	close(release)
	require.NoError(t, pool.Drain(time.Second))
	assert.Equal(t, 2, pool.Status().Abandoned)
}
