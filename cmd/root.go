package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/inference-sim/search-sim/sim"
	"github.com/inference-sim/search-sim/sim/trace"
)

var (
	// CLI flags for the search run
	seed         int64         // Seed for backend latency and failure draws
	logLevel     string        // Log verbosity level
	numQueries   int           // Number of sequential searches to run
	query        string        // Query string passed to every backend
	services     []string      // Logical services of the default topology
	replicas     int           // Replicas per service
	latencyMin   int64         // Min backend latency (time units)
	latencyMax   int64         // Max backend latency (time units)
	timeout      int64         // Search deadline (time units, 0 = none)
	timeUnit     time.Duration // Wall-clock length of one time unit
	poolCapacity int           // Worker pool slots shared by all backend calls
	failureRate  float64       // Injected backend failure probability
	drainTimeout time.Duration // Max wait for abandoned calls at shutdown

	// CLI flags for behavior switches
	cancelAbandoned bool   // Cancel race losers and post-deadline calls
	retryAllFailed  bool   // Retry a race once when every replica failed
	topologyPath    string // Optional YAML topology file
	traceLevel      string // Decision trace level
	summarizeTrace  bool   // Print trace summary at the end
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "search-sim",
	Short: "Fan-out search simulator with replica racing and deadlines",
}

// runCmd executes repeated searches using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run searches against simulated backends",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (valid: none, decisions)", traceLevel)
		}
		if numQueries < 1 {
			logrus.Fatalf("--queries must be >= 1, got %d", numQueries)
		}

		cfg := sim.Config{
			Seed:                     seed,
			Services:                 services,
			Replicas:                 replicas,
			Latency:                  sim.UniformLatency{Min: latencyMin, Max: latencyMax},
			Timeout:                  timeout,
			TimeUnit:                 timeUnit,
			PoolCapacity:             poolCapacity,
			FailureRate:              failureRate,
			CancelAbandoned:          cancelAbandoned,
			RetryOnAllReplicasFailed: retryAllFailed,
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		topology := buildTopology(cfg, topologyPath)

		logrus.Infof("Starting %d searches: services=%v, replicas=%d, latency=%d..%d, timeout=%d, unit=%v, pool=%d",
			numQueries, serviceNames(topology), cfg.Replicas, cfg.Latency.Min, cfg.Latency.Max, cfg.Timeout, cfg.TimeUnit, cfg.PoolCapacity)

		pool := sim.NewWorkerPool(cfg.PoolCapacity)
		st := trace.NewSearchTrace(trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
		searcher, err := sim.NewSearcher(cfg, topology, pool, sim.RuntimeTimers{}, st)
		if err != nil {
			logrus.Fatalf("Invalid topology: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		metrics := sim.NewRunMetrics()
		for i := 0; i < numQueries && ctx.Err() == nil; i++ {
			result := searcher.Search(ctx, query)
			result.Print(os.Stdout)
			metrics.Record(result)
		}

		// Abandoned calls keep running after their search returned; wait for
		// them so the discard counts are final.
		if err := pool.Drain(drainTimeout); err != nil {
			logrus.Warnf("Worker pool did not drain: %v", err)
		}
		metrics.Print(os.Stdout, searcher.Services())

		if summarizeTrace && st.Enabled() {
			printTraceSummary(os.Stdout, trace.Summarize(st))
		}
		logrus.Info("Run complete.")
	},
}

func serviceNames(topology []sim.Service) string {
	names := make([]string, len(topology))
	for i, s := range topology {
		names[i] = s.Name
	}
	return strings.Join(names, ",")
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for backend latency and failure draws")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().IntVar(&numQueries, "queries", 20, "Number of sequential searches")
	runCmd.Flags().StringVar(&query, "query", sim.DefaultQuery, "Query passed to every backend")

	// Topology
	runCmd.Flags().StringSliceVar(&services, "services", sim.DefaultServices, "Comma-separated logical services")
	runCmd.Flags().IntVar(&replicas, "replicas", sim.DefaultReplicas, "Replicas per service (1 = no racing)")
	runCmd.Flags().Int64Var(&latencyMin, "latency-min", sim.DefaultLatencyMin, "Min backend latency (time units)")
	runCmd.Flags().Int64Var(&latencyMax, "latency-max", sim.DefaultLatencyMax, "Max backend latency (time units)")
	runCmd.Flags().Float64Var(&failureRate, "failure-rate", 0, "Probability that a backend call fails")
	runCmd.Flags().StringVar(&topologyPath, "topology", "", "Path to YAML topology file (overrides --services/--replicas)")

	// Deadline and scheduling
	runCmd.Flags().Int64Var(&timeout, "timeout", sim.DefaultTimeout, "Search deadline (time units, 0 = wait for every service)")
	runCmd.Flags().DurationVar(&timeUnit, "time-unit", sim.DefaultTimeUnit, "Wall-clock length of one time unit")
	runCmd.Flags().IntVar(&poolCapacity, "pool-size", sim.DefaultPoolCapacity, "Concurrent backend-call slots")
	runCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 10*time.Second, "Max wait for abandoned calls at shutdown")
	runCmd.Flags().BoolVar(&cancelAbandoned, "cancel-abandoned", false, "Cancel race losers and calls outliving the deadline")
	runCmd.Flags().BoolVar(&retryAllFailed, "retry-all-failed", false, "Retry a service once when all its replicas failed")

	// Decision trace
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Trace verbosity (none, decisions)")
	runCmd.Flags().BoolVar(&summarizeTrace, "summarize-trace", false, "Print trace summary after the run")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
