// Package sim provides the fan-out/fan-in search core of search-sim.
//
// # Reading Guide
//
// Start with these files to understand one search end to end:
//   - backend.go: a simulated backend call (fixed label, sampled latency)
//   - race.go: first-of-K replica racing with a single winner
//   - aggregator.go: one race (or bare call) per service, joined into a ResultCollection
//   - deadline.go: the governor racing the aggregation against a timer
//   - searcher.go: the orchestrator wiring the above for one query
//
// # Invariants
//
// A ResultCollection holds one set-once cell per service, so a search never
// reports more than one result per service however many replicas raced.
// Race losers and results arriving after the deadline are written to the
// collection's discard sink instead.
//
// Backend calls run on a WorkerPool with fixed capacity. Deadline timers run
// on a separate TimerService so that an exhausted pool can never delay them.
//
// Nothing is cancelled by default: losing replicas and post-deadline calls
// run to completion and are ignored. Config.CancelAbandoned stops them early;
// the discard contract holds either way.
package sim
