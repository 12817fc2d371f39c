// Tracks run-wide statistics over repeated searches such as:
// timeouts, partial answers, race losers and late arrivals.

package sim

import (
	"fmt"
	"io"
	"time"
)

// RunMetrics aggregates statistics about a run of searches for final
// reporting. Not safe for concurrent use; record from one goroutine.
type RunMetrics struct {
	Searches     int           // searches recorded
	Complete     int           // searches with every service answered
	TimedOut     int           // searches whose deadline fired
	Interrupted  int           // searches abandoned by the caller
	TotalResults int           // results handed to callers
	ElapsedSum   time.Duration // sum of search wall times
	MaxElapsed   time.Duration // slowest search

	MissingByService map[string]int // service → searches it missed

	results []*SearchResult
}

// NewRunMetrics creates empty RunMetrics.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{MissingByService: make(map[string]int)}
}

// Record adds one search.
func (m *RunMetrics) Record(r *SearchResult) {
	m.Searches++
	m.TotalResults += len(r.Results)
	m.ElapsedSum += r.Elapsed
	if r.Elapsed > m.MaxElapsed {
		m.MaxElapsed = r.Elapsed
	}
	switch {
	case r.Interrupted:
		m.Interrupted++
	case r.TimedOut:
		m.TimedOut++
	}
	if len(r.Missing) == 0 {
		m.Complete++
	}
	for _, s := range r.Missing {
		m.MissingByService[s]++
	}
	m.results = append(m.results, r)
}

// Discards counts discarded results per reason across all recorded
// searches. Call after draining the pool for final numbers.
func (m *RunMetrics) Discards() map[DiscardReason]int {
	out := make(map[DiscardReason]int)
	for _, r := range m.results {
		for _, d := range r.Discards() {
			out[d.Reason]++
		}
	}
	return out
}

// Print displays aggregated metrics at the end of the run.
func (m *RunMetrics) Print(w io.Writer, services []string) {
	fmt.Fprintln(w, "=== Search Metrics ===")
	fmt.Fprintf(w, "Searches             : %d\n", m.Searches)
	fmt.Fprintf(w, "Complete             : %d\n", m.Complete)
	fmt.Fprintf(w, "Timed Out            : %d\n", m.TimedOut)
	if m.Interrupted > 0 {
		fmt.Fprintf(w, "Interrupted          : %d\n", m.Interrupted)
	}
	if m.Searches == 0 {
		return
	}
	fmt.Fprintf(w, "Average Results      : %.2f\n", float64(m.TotalResults)/float64(m.Searches))
	fmt.Fprintf(w, "Average Latency      : %v\n", m.ElapsedSum/time.Duration(m.Searches))
	fmt.Fprintf(w, "Max Latency          : %v\n", m.MaxElapsed)
	for _, s := range services {
		if n := m.MissingByService[s]; n > 0 {
			fmt.Fprintf(w, "Missing %-13s: %d\n", s, n)
		}
	}
	discards := m.Discards()
	fmt.Fprintf(w, "Race Losers Dropped  : %d\n", discards[DiscardRaceLoser])
	fmt.Fprintf(w, "Late Results Dropped : %d\n", discards[DiscardLate])
}
