// Package trace provides decision-trace recording for replica races and
// deadline outcomes. This package has no dependencies on sim/; it stores pure data types.
package trace

import "time"

// RaceRecord captures how one service resolved during a search.
type RaceRecord struct {
	SearchID string
	Service  string
	Replicas int           // replicas started (1 = bare call)
	Winner   string        // replica that answered; empty if none did
	Value    string        // winning value
	Latency  time.Duration // winner's service time
	Failures int           // replicas that failed before resolution
	Retried  bool          // the race was restarted after all replicas failed
	Err      string        // resolution error, empty on success
}

// DeadlineRecord captures the deadline governor's decision for one search.
type DeadlineRecord struct {
	SearchID string
	Timeout  time.Duration // 0 = no deadline
	Elapsed  time.Duration
	TimedOut bool
	Results  int
	Missing  []string
}
