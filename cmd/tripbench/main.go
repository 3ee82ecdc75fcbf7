// Package main provides the CLI entry point for tripbench, a timing
// harness for the trip-routing solver.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/weiihann/tripbench/config"
	"github.com/weiihann/tripbench/harness"
	"github.com/weiihann/tripbench/report"
	"github.com/weiihann/tripbench/stats"
	"github.com/weiihann/tripbench/sweep"
	"github.com/weiihann/tripbench/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(logger, level)
	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.Error("tripbench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "tripbench",
		Short: "Timing harness for the trip-routing solver",
		Long: `Tripbench generates random trip-request workloads, runs the routing
solver repeatedly across a sweep of core counts and reports per-run wall-clock
latency as CSV tables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}

			return setLevel(level, logLevel)
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(logger, level))
	root.AddCommand(newGenerateCmd(logger, level))

	return root
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

func setLevel(level *slog.LevelVar, s string) error {
	l, err := parseLevel(s)
	if err != nil {
		return err
	}

	level.Set(l)

	return nil
}

// runFlags holds flag values that override the run file.
type runFlags struct {
	configPath   string
	solver       string
	buildDir     string
	buildTarget  string
	links        string
	nodes        string
	nfa          string
	threads      int
	timeout      time.Duration
	tripFile     string
	requests     []int
	maxNode      int
	capacity     int
	flag         int
	firstID      int
	fixedPair    bool
	seed         int64
	cores        []int
	trials       int
	onFailure    string
	reportDir    string
	reportPrefix string
	delimiter    string
	outputJSON   bool
}

func addWorkloadFlags(flags *pflag.FlagSet, f *runFlags) {
	flags.StringVar(&f.configPath, "config", "",
		"Path to a YAML run file")
	flags.StringVar(&f.tripFile, "trip-file", "",
		"Trip request file to generate (default test-trip-file.txt)")
	flags.IntVar(&f.maxNode, "max-node", workload.DefaultMaxNode,
		"Highest node id; ids are drawn from [1, max-node]")
	flags.IntVar(&f.capacity, "capacity", workload.DefaultCapacity,
		"Capacity field written for every request")
	flags.IntVar(&f.flag, "flag", workload.DefaultFlag,
		"Flag field written for every request")
	flags.IntVar(&f.firstID, "first-id", 0,
		"Id of the first request")
	flags.BoolVar(&f.fixedPair, "fixed-pair", false,
		"Repeat one origin/destination pair on every line")
	flags.Int64Var(&f.seed, "seed", 0,
		"Random seed (0 = use current time)")
}

func newRunCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the core-count sweep against the solver",
		Long: `Generate a trip file for each requested workload size, invoke the
solver a fixed number of times for every core count and write one CSV report
per workload size.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), &f)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("requests") {
				cfg.Workload.Requests = f.requests
			}

			if err := validate(cfg); err != nil {
				return err
			}

			if !cmd.Flags().Changed("log-level") {
				if err := setLevel(level, cfg.LogLevel); err != nil {
					return err
				}
			}

			return runBenchmark(cmd.Context(), logger, cmd.OutOrStdout(),
				cfg, f.outputJSON)
		},
	}

	flags := cmd.Flags()
	addWorkloadFlags(flags, &f)
	flags.StringVar(&f.solver, "solver", "",
		"Solver binary (default ../src/new_main)")
	flags.StringVar(&f.buildDir, "build-dir", "",
		"Run make in this directory before benchmarking")
	flags.StringVar(&f.buildTarget, "build-target", "",
		"Make target for --build-dir")
	flags.StringVar(&f.links, "links", "",
		"Network links file passed as -g")
	flags.StringVar(&f.nodes, "nodes", "",
		"Network nodes file passed as -c")
	flags.StringVar(&f.nfa, "nfa", "",
		"Automaton file passed as -N")
	flags.IntVar(&f.threads, "threads", 12,
		"Thread parameter passed as -t")
	flags.DurationVar(&f.timeout, "timeout", 0,
		"Per-invocation timeout (0 = none)")
	flags.IntSliceVar(&f.requests, "requests", nil,
		"Workload sizes; each runs as its own suite (default 1000)")
	flags.IntSliceVar(&f.cores, "cores", nil,
		"Core counts to sweep, in order (default 1,2,4,8)")
	flags.IntVar(&f.trials, "trials", 100,
		"Trials per core count")
	flags.StringVar(&f.onFailure, "on-failure", string(sweep.PolicySkip),
		"Failed trial policy: abort, skip, retry")
	flags.StringVar(&f.reportDir, "report-dir", "",
		"Directory for CSV reports (default .)")
	flags.StringVar(&f.reportPrefix, "report-prefix", "",
		"Report file prefix (default test_data)")
	flags.StringVar(&f.delimiter, "delimiter", "",
		"Report column delimiter: ',', ';', 'tab'")
	flags.BoolVar(&f.outputJSON, "json", false,
		"Also print each suite summary as JSON")

	return cmd
}

func newGenerateCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var (
		f        runFlags
		requests int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a trip request file without running the solver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), &f)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("requests") {
				cfg.Workload.Requests = []int{requests}
			}

			if err := validate(cfg); err != nil {
				return err
			}

			if !cmd.Flags().Changed("log-level") {
				if err := setLevel(level, cfg.LogLevel); err != nil {
					return err
				}
			}

			_, err = generateWorkload(cmd.Context(), logger, cfg.Workload,
				cfg.Workload.Requests[0], resolveSeed(cfg.Workload.Seed))

			return err
		},
	}

	addWorkloadFlags(cmd.Flags(), &f)
	cmd.Flags().IntVar(&requests, "requests", 1000,
		"Number of trip requests")

	return cmd
}

// loadConfig builds the run configuration from the optional run file and
// the flags the user set explicitly. The result is not validated.
func loadConfig(flags *pflag.FlagSet, f *runFlags) (*config.File, error) {
	cfg := config.Defaults()

	if f.configPath != "" {
		var err error

		cfg, err = config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
	}

	set := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}

	set("solver", func() { cfg.Solver.Binary = f.solver })
	set("build-dir", func() { cfg.Solver.BuildDir = f.buildDir })
	set("build-target", func() { cfg.Solver.BuildTarget = f.buildTarget })
	set("links", func() { cfg.Solver.Links = f.links })
	set("nodes", func() { cfg.Solver.Nodes = f.nodes })
	set("nfa", func() { cfg.Solver.NFA = f.nfa })
	set("threads", func() { cfg.Solver.Threads = f.threads })
	set("timeout", func() { cfg.Solver.Timeout = f.timeout.String() })
	set("trip-file", func() { cfg.Workload.Path = f.tripFile })
	set("max-node", func() { cfg.Workload.MaxNode = f.maxNode })
	set("capacity", func() { cfg.Workload.Capacity = f.capacity })
	set("flag", func() { cfg.Workload.Flag = f.flag })
	set("first-id", func() { cfg.Workload.FirstID = f.firstID })
	set("fixed-pair", func() { cfg.Workload.FixedPair = f.fixedPair })
	set("seed", func() { cfg.Workload.Seed = f.seed })
	set("cores", func() { cfg.Sweep.Cores = f.cores })
	set("trials", func() { cfg.Sweep.Trials = f.trials })
	set("on-failure", func() { cfg.Sweep.OnFailure = f.onFailure })
	set("report-dir", func() { cfg.Report.Dir = f.reportDir })
	set("report-prefix", func() { cfg.Report.Prefix = f.reportPrefix })
	set("delimiter", func() { cfg.Report.Delimiter = f.delimiter })

	return cfg, nil
}

func validate(cfg *config.File) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func resolveSeed(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}

	return seed
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	cfg *config.File,
	outputJSON bool,
) error {
	timeout, err := cfg.Solver.GetTimeout()
	if err != nil {
		return err
	}

	policy, err := sweep.ParsePolicy(cfg.Sweep.OnFailure)
	if err != nil {
		return err
	}

	delim, err := cfg.Report.DelimiterRune()
	if err != nil {
		return err
	}

	seed := resolveSeed(cfg.Workload.Seed)

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("solver", cfg.Solver.Binary),
		slog.Any("requests", cfg.Workload.Requests),
		slog.Any("cores", cfg.Sweep.Cores),
		slog.Int("trials", cfg.Sweep.Trials),
		slog.String("on_failure", string(policy)),
		slog.Duration("timeout", timeout),
		slog.Int64("seed", seed),
	)

	// Step 1: Build the solver (only when a source dir is configured).
	binary := cfg.Solver.Binary
	if cfg.Solver.BuildDir != "" {
		binary, err = harness.Build(ctx, logger, harness.BuildConfig{
			Dir:    cfg.Solver.BuildDir,
			Target: cfg.Solver.BuildTarget,
			Binary: cfg.Solver.Binary,
		})
		if err != nil {
			return fmt.Errorf("build solver: %w", err)
		}
	}

	runner := harness.NewRunner(harness.Invocation{
		Binary:    binary,
		LinksFile: cfg.Solver.Links,
		NodesFile: cfg.Solver.Nodes,
		NFAFile:   cfg.Solver.NFA,
		Threads:   cfg.Solver.Threads,
		TripFile:  cfg.Workload.Path,
	}, logger)

	// Step 2: One suite per workload size, each with a fresh trip file.
	for i, requests := range cfg.Workload.Requests {
		suite := i + 1

		if err := runSuite(ctx, logger, stdout, cfg, runner, suiteConfig{
			number:   suite,
			requests: requests,
			seed:     seed + int64(i),
			timeout:  timeout,
			policy:   policy,
			delim:    delim,
			json:     outputJSON,
		}); err != nil {
			return fmt.Errorf("suite %d: %w", suite, err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

type suiteConfig struct {
	number   int
	requests int
	seed     int64
	timeout  time.Duration
	policy   sweep.Policy
	delim    rune
	json     bool
}

func runSuite(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	cfg *config.File,
	runner *harness.Runner,
	sc suiteConfig,
) error {
	logger.InfoContext(ctx, "timing test",
		slog.Int("suite", sc.number),
		slog.Int("trials", cfg.Sweep.Trials),
		slog.Int("trip_requests", sc.requests),
	)

	if _, err := generateWorkload(ctx, logger, cfg.Workload, sc.requests, sc.seed); err != nil {
		return err
	}

	sched, err := sweep.New(sweep.Config{
		Cores:   cfg.Sweep.Cores,
		Trials:  cfg.Sweep.Trials,
		Timeout: sc.timeout,
		Policy:  sc.policy,
	}, runner, logger)
	if err != nil {
		return fmt.Errorf("configure sweep: %w", err)
	}

	sched.OnColumn = func(m *sweep.Matrix, col int) {
		report.PrintProgress(stdout, stats.Column(m, col))
	}

	matrix, err := sched.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	summary, err := stats.Aggregate(matrix)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	path := cfg.Report.Path(sc.number)
	title := config.Title(sc.number)

	if err := report.WriteFile(path, matrix, summary, report.Options{
		Title:     title,
		Delimiter: sc.delim,
	}); err != nil {
		return err
	}

	logger.InfoContext(ctx, "report written",
		slog.String("path", path),
		slog.Int("missing_trials", matrix.MissingCount()),
	)

	if sc.json {
		if err := report.WriteJSON(stdout, title, matrix.Trials, summary); err != nil {
			return fmt.Errorf("generate JSON summary: %w", err)
		}
	}

	report.PrintSummary(stdout, summary)

	return nil
}

func generateWorkload(
	ctx context.Context,
	logger *slog.Logger,
	wl config.Workload,
	requests int,
	seed int64,
) (workload.Summary, error) {
	gen := workload.NewGenerator(workload.Config{
		NumRequests: requests,
		MaxNode:     wl.MaxNode,
		Capacity:    wl.Capacity,
		Flag:        wl.Flag,
		FirstID:     wl.FirstID,
		Seed:        seed,
		FixedPair:   wl.FixedPair,
	})

	summary, err := gen.WriteFile(wl.Path)
	if err != nil {
		return summary, fmt.Errorf("generate workload: %w", err)
	}

	logger.InfoContext(ctx, "workload generated",
		slog.String("path", wl.Path),
		slog.Int("requests", summary.Requests),
		slog.Int("max_node", summary.MaxNode),
		slog.Int64("seed", seed),
	)

	return summary, nil
}
