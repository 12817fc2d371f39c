package trace

// TraceSummary aggregates statistics from a SearchTrace.
type TraceSummary struct {
	TotalRaces         int
	FailedRaces        int
	RetriedRaces       int
	TotalSearches      int
	TimedOutSearches   int
	MeanFailures       float64
	WinnerDistribution map[string]int // replica name → races won
}

// Summarize computes aggregate statistics from a SearchTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SearchTrace) *TraceSummary {
	summary := &TraceSummary{
		WinnerDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	races := st.Races()
	summary.TotalRaces = len(races)
	totalFailures := 0
	for _, r := range races {
		totalFailures += r.Failures
		if r.Retried {
			summary.RetriedRaces++
		}
		if r.Winner == "" {
			summary.FailedRaces++
			continue
		}
		summary.WinnerDistribution[r.Winner]++
	}
	if len(races) > 0 {
		summary.MeanFailures = float64(totalFailures) / float64(len(races))
	}

	deadlines := st.Deadlines()
	summary.TotalSearches = len(deadlines)
	for _, d := range deadlines {
		if d.TimedOut {
			summary.TimedOutSearches++
		}
	}
	return summary
}
