package sim

import "errors"

var (
	// ErrInterruptedWait is returned when a blocked wait (backend latency,
	// race resolution, pool slot) is abandoned because its context ended.
	// The affected service contributes no result.
	ErrInterruptedWait = errors.New("interrupted wait")

	// ErrAllReplicasFailed is returned by a race in which every replica failed.
	ErrAllReplicasFailed = errors.New("all replicas failed")

	// ErrDeadlineExceeded marks a search whose deadline fired before every
	// service answered. It is reported through Outcome.TimedOut, never returned
	// from Search.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrBackendFailed is the injected failure of a simulated backend call.
	ErrBackendFailed = errors.New("backend call failed")

	// ErrPoolClosed is returned when work is submitted to a drained pool.
	ErrPoolClosed = errors.New("worker pool is not accepting work")

	// Configuration errors, raised before any concurrent work starts.
	ErrNoServices       = errors.New("no services configured")
	ErrNoReplicas       = errors.New("service has no replicas")
	ErrDuplicateService = errors.New("duplicate service name")
)
