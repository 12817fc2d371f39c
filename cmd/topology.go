package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	sim "github.com/inference-sim/search-sim/sim"
	"github.com/inference-sim/search-sim/sim/trace"
)

// buildTopology returns the services for the run: the YAML topology when a
// path is given, the flag-driven default topology otherwise.
func buildTopology(cfg sim.Config, path string) []sim.Service {
	if path == "" {
		return sim.BuildServices(cfg)
	}
	topology, err := sim.LoadTopology(path)
	if err != nil {
		logrus.Fatalf("Failed to load topology: %v", err)
	}
	if err := topology.Validate(); err != nil {
		logrus.Fatalf("Invalid topology %s: %v", path, err)
	}
	logrus.Infof("Loaded topology %s with services %v", path, topology.ServiceNames())
	return topology.Build(cfg)
}

// printTraceSummary writes the decision-trace summary with replicas sorted by name.
func printTraceSummary(w io.Writer, summary *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Races                : %d\n", summary.TotalRaces)
	fmt.Fprintf(w, "Failed Races         : %d\n", summary.FailedRaces)
	fmt.Fprintf(w, "Retried Races        : %d\n", summary.RetriedRaces)
	fmt.Fprintf(w, "Mean Replica Failures: %.2f\n", summary.MeanFailures)
	fmt.Fprintf(w, "Timed Out Searches   : %d/%d\n", summary.TimedOutSearches, summary.TotalSearches)

	winners := make([]string, 0, len(summary.WinnerDistribution))
	for name := range summary.WinnerDistribution {
		winners = append(winners, name)
	}
	sort.Strings(winners)
	for _, name := range winners {
		fmt.Fprintf(w, "Wins %-16s: %d\n", name, summary.WinnerDistribution[name])
	}
}
