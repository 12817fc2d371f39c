package sim

import (
	"fmt"
	"time"
)

const (
	// DefaultPoolCapacity is the number of concurrent backend-call slots.
	DefaultPoolCapacity = 16
	// DefaultLatencyMin and DefaultLatencyMax bound simulated call latency (time units).
	DefaultLatencyMin = 1
	DefaultLatencyMax = 200
	// DefaultTimeout is the search deadline in time units.
	DefaultTimeout = 150
	// DefaultReplicas is the replica count per service.
	DefaultReplicas = 2
	// DefaultTimeUnit is the wall-clock length of one time unit.
	DefaultTimeUnit = time.Millisecond
	// DefaultQuery is the query issued by the CLI when none is given.
	DefaultQuery = "some query"
)

// DefaultServices lists the logical services of the default topology.
var DefaultServices = []string{"web", "image", "video"}

// Config groups the parameters of one searcher. Every field has a default;
// see DefaultConfig.
type Config struct {
	Seed         int64          // run seed for latency and failure draws
	Services     []string       // logical services, in result order
	Replicas     int            // replicas per service (1 = bare call, no race)
	Latency      UniformLatency // per-call latency range in time units
	Timeout      int64          // search deadline in time units (0 = no deadline)
	TimeUnit     time.Duration  // wall-clock length of one time unit
	PoolCapacity int            // worker pool slots
	FailureRate  float64        // per-call injected failure probability

	CancelAbandoned          bool // cancel race losers and post-deadline calls
	RetryOnAllReplicasFailed bool // restart a fully failed race once
}

// DefaultConfig returns the replicated-search configuration: three services,
// two replicas each, 1..200 unit latencies, 150 unit deadline, 16 slots.
func DefaultConfig() Config {
	return Config{
		Seed:         42,
		Services:     append([]string(nil), DefaultServices...),
		Replicas:     DefaultReplicas,
		Latency:      UniformLatency{Min: DefaultLatencyMin, Max: DefaultLatencyMax},
		Timeout:      DefaultTimeout,
		TimeUnit:     DefaultTimeUnit,
		PoolCapacity: DefaultPoolCapacity,
	}
}

// Validate checks parameter ranges. A bad configuration is fatal and must be
// reported before any concurrent work starts.
func (c Config) Validate() error {
	if len(c.Services) == 0 {
		return ErrNoServices
	}
	seen := make(map[string]bool, len(c.Services))
	for _, s := range c.Services {
		if s == "" {
			return fmt.Errorf("service name must not be empty")
		}
		if seen[s] {
			return fmt.Errorf("%w: %q", ErrDuplicateService, s)
		}
		seen[s] = true
	}
	if c.Replicas < 1 {
		return fmt.Errorf("%w: replicas must be >= 1, got %d", ErrNoReplicas, c.Replicas)
	}
	if err := c.Latency.Validate(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %d", c.Timeout)
	}
	if c.TimeUnit <= 0 {
		return fmt.Errorf("time unit must be positive, got %v", c.TimeUnit)
	}
	if c.PoolCapacity < 1 {
		return fmt.Errorf("pool capacity must be >= 1, got %d", c.PoolCapacity)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("failure rate must be in [0, 1], got %f", c.FailureRate)
	}
	return nil
}

// TimeoutDuration converts Timeout to wall-clock time. Zero means no deadline.
func (c Config) TimeoutDuration() time.Duration {
	return ToDuration(c.Timeout, c.TimeUnit)
}
