// Command mqttbench measures MQTT broker throughput by running concurrent
// publisher and subscriber connections for a fixed duration.
//
// Usage:
//
//	mqttbench -s tcp://localhost:1883 -t bench -m hello -d 10 [flags]
//	mqttbench --config bench.yaml [flags]
//
// Every flag may also be set through an environment variable named
// MQTTBENCH_<FLAG>, e.g. MQTTBENCH_PUB_THREADS=8. A .env file in the working
// directory is loaded first. Explicit flags override the config file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"mqttbench/internal/collector"
	"mqttbench/internal/config"
	"mqttbench/internal/coordinator"
	"mqttbench/internal/core"
	"mqttbench/internal/metrics"
	"mqttbench/internal/mqtt"
	"mqttbench/internal/progress"
	"mqttbench/internal/worker"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	exitCode := ExitSuccess
	root := newRootCommand(stdout, stderr, &exitCode)
	root.AddCommand(newWorkerCommand(stdin, stdout, stderr))
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	return exitCode
}

func newRootCommand(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "mqttbench",
		Short:         "Benchmark an MQTT broker with concurrent publishers and subscribers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnv(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runBenchmark(cmd, &opts, stdout, stderr)
			*exitCode = code
			return err
		},
	}
	opts.register(cmd)
	return cmd
}

func newWorkerCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:    coordinator.WorkerCommand,
		Short:  "Run one worker unit, reading params on stdin and writing the result on stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd.Flags(), stderr)
			if err != nil {
				return err
			}
			mqtt.SetLogger(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := &worker.Runner{Logger: log}
			return worker.Serve(ctx, stdin, stdout, runner.Run)
		},
	}
}

func runBenchmark(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) (int, error) {
	if opts.output != "text" && opts.output != "json" {
		return ExitError, fmt.Errorf("--output must be 'text' or 'json', got %q", opts.output)
	}

	log, err := newLogger(cmd.Flags(), stderr)
	if err != nil {
		return ExitError, err
	}
	mqtt.SetLogger(log)
	if _, err := maxprocs.Set(maxprocs.Logger(log.Debugf)); err != nil {
		log.WithError(err).Debug("maxprocs")
	}

	cfg, err := opts.load(cmd.Flags())
	if err != nil {
		return ExitError, err
	}
	if err := cfg.Validate(); err != nil {
		return ExitError, fmt.Errorf("invalid configuration: %w", err)
	}
	bench := &cfg.Benchmark

	coll := collector.NewCollector()
	var reporter core.Reporter = coll
	var promReporter *metrics.Reporter
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if promReporter, err = metrics.NewReporter(reg); err != nil {
			return ExitError, err
		}
		srv, err := metrics.Listen(opts.metricsAddr, reg, log)
		if err != nil {
			return ExitError, err
		}
		defer srv.Close(context.Background())
		log.WithField("addr", srv.Addr()).Info("serving metrics")
		reporter = core.MultiReporter{coll, promReporter}
	}

	units := coordinator.Partition(bench)
	prog := progress.NewProgress(coll, bench.RequestedConnections(), len(units), opts.quiet)
	prog.SetOutput(stderr)

	coord := coordinator.NewCoordinator(spawnerFor(bench, reporter, log, cmd.Flags(), stderr), log)
	coord.OnWorkerDone(func(core.WorkerResult) { prog.WorkerDone() })
	if promReporter != nil {
		coord.OnWorkerDone(promReporter.WorkerDone)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prog.Printf("mqttbench starting: %d publishers (%d connections), %d subscribers (%d connections), duration %v, isolation %s",
		bench.PubThreads, bench.PubConnections, bench.SubThreads, bench.SubConnections, bench.Duration, bench.Isolation)
	prog.Start()
	report, err := coord.Run(ctx, bench)
	prog.Stop()
	if err != nil {
		return ExitError, err
	}
	interrupted := ctx.Err() != nil
	if interrupted && !opts.quiet {
		fmt.Fprintln(stderr, "Interrupted, reporting partial results")
	}

	var thresholdResults *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholdResults = cfg.Thresholds.Check(report)
	}

	if opts.output == "json" {
		collector.FormatJSON(stdout, report, thresholdResults)
	} else {
		collector.FormatText(stdout, report, thresholdResults)
	}

	if interrupted {
		return ExitSuccess, nil
	}
	if thresholdResults != nil && !thresholdResults.Passed {
		if opts.output == "text" {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed, nil
	}
	return ExitSuccess, nil
}

func spawnerFor(bench *config.BenchmarkConfig, reporter core.Reporter, log *logrus.Logger, fs *pflag.FlagSet, stderr io.Writer) coordinator.Spawner {
	if bench.Isolation == config.IsolationProcess {
		return coordinator.Subprocess{
			Args:   workerArgs(fs),
			Stderr: stderr,
		}
	}
	runner := &worker.Runner{Reporter: reporter, Logger: log}
	return coordinator.InProcess{Run: runner.Run}
}
