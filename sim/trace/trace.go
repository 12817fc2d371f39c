package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every race resolution and deadline outcome.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SearchTrace collects decision records across searches. Races of one search
// resolve concurrently, so recording is safe for concurrent use.
type SearchTrace struct {
	Config TraceConfig

	mu        sync.Mutex
	races     []RaceRecord
	deadlines []DeadlineRecord
}

// NewSearchTrace creates a SearchTrace ready for recording.
func NewSearchTrace(config TraceConfig) *SearchTrace {
	return &SearchTrace{
		Config:    config,
		races:     make([]RaceRecord, 0),
		deadlines: make([]DeadlineRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (st *SearchTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

// RecordRace appends a race resolution record.
func (st *SearchTrace) RecordRace(record RaceRecord) {
	if !st.Enabled() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.races = append(st.races, record)
}

// RecordDeadline appends a deadline outcome record.
func (st *SearchTrace) RecordDeadline(record DeadlineRecord) {
	if !st.Enabled() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.deadlines = append(st.deadlines, record)
}

// Races returns a copy of the race records in recording order.
func (st *SearchTrace) Races() []RaceRecord {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]RaceRecord, len(st.races))
	copy(out, st.races)
	return out
}

// Deadlines returns a copy of the deadline records in recording order.
func (st *SearchTrace) Deadlines() []DeadlineRecord {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]DeadlineRecord, len(st.deadlines))
	copy(out, st.deadlines)
	return out
}
