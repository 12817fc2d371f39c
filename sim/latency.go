package sim

import (
	"fmt"
	"math/rand"
	"time"
)

// LatencySampler draws the simulated service time of one backend call,
// expressed in time units. Implementations must be pure given the rng.
type LatencySampler interface {
	// Sample returns a latency >= 0 in time units.
	Sample(rng *rand.Rand) int64
}

// UniformLatency draws uniformly from the closed range [Min, Max].
type UniformLatency struct {
	Min, Max int64
}

func (u UniformLatency) Sample(rng *rand.Rand) int64 {
	if u.Max <= u.Min {
		return u.Min
	}
	return u.Min + rng.Int63n(u.Max-u.Min+1)
}

// Validate rejects negative or inverted ranges.
func (u UniformLatency) Validate() error {
	if u.Min < 0 {
		return fmt.Errorf("latency min must be non-negative, got %d", u.Min)
	}
	if u.Max < u.Min {
		return fmt.Errorf("latency max %d is below min %d", u.Max, u.Min)
	}
	return nil
}

// FixedLatency always returns the same latency. Used by tests and by
// topology files that pin a replica's service time.
type FixedLatency int64

func (f FixedLatency) Sample(_ *rand.Rand) int64 {
	return int64(f)
}

// ToDuration converts a latency in time units to wall-clock time.
func ToDuration(units int64, unit time.Duration) time.Duration {
	return time.Duration(units) * unit
}
