package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/matheuscscp/link-sim/config"
	"github.com/matheuscscp/link-sim/simulator"
	"github.com/matheuscscp/link-sim/topology"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	simEnd        time.Duration
	raw           bool
	rawBytes      string
	metricsListen string
	metricsLinger bool
}

var (
	runOpts runOptions

	runCmd = &cobra.Command{
		Use:   "run <yaml-scenario-file>",
		Short: "Run a scenario and print the report",
		Long: `Run builds the nodes, channels and traffic described by the scenario
file, runs the simulation until its end time and prints how many
packets each application sent and received and how many packets each
node dropped.`,
		Example: `  # run the example scenario injecting the default raw frame
  link-sim run scenarios/two-lans.yaml --raw

  # expose the device counters while the simulation runs
  link-sim run scenarios/two-lans.yaml --metrics-listen 127.0.0.1:9090 --metrics-linger`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOpts
			opts.raw = opts.raw || cmd.Flags().Changed("raw-bytes")
			return runScenario(cmd.OutOrStdout(), args[0], opts)
		},
	}
)

func init() {
	runCmd.Flags().DurationVar(&runOpts.simEnd, "sim-end", 0, "virtual time to stop the simulation at (overrides the scenario)")
	runCmd.Flags().BoolVar(&runOpts.raw, "raw", false, "inject the raw frame instead of running the flows")
	runCmd.Flags().StringVar(&runOpts.rawBytes, "raw-bytes", "", "whitespace separated hex bytes of the raw frame (implies --raw)")
	runCmd.Flags().StringVar(&runOpts.metricsListen, "metrics-listen", "", "address to serve prometheus metrics on")
	runCmd.Flags().BoolVar(&runOpts.metricsLinger, "metrics-linger", false, "keep serving metrics after the run until interrupted")
	rootCmd.AddCommand(runCmd)
}

func runScenario(out io.Writer, file string, opts runOptions) error {
	l := logrus.
		WithField("run_id", xid.New().String()).
		WithField("scenario", file)

	// read config
	var conf topology.Config
	if err := config.ReadYAML(file, &conf); err != nil {
		return fmt.Errorf("error reading yaml scenario file: %w", err)
	}
	if opts.simEnd > 0 {
		conf.SimEnd = opts.simEnd
	}
	if opts.raw {
		conf.Raw.Enabled = true
	}
	if opts.rawBytes != "" {
		conf.Raw.Bytes = opts.rawBytes
	}

	// stamp log entries with the virtual time
	sim := simulator.New()
	hooks := logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	defer logrus.StandardLogger().ReplaceHooks(hooks)
	logrus.AddHook(sim.LogHook())

	if opts.metricsListen != "" {
		metrics, err := startMetricsServer(opts.metricsListen, l)
		if err != nil {
			return err
		}
		defer func() {
			if opts.metricsLinger {
				ctx, cancel := contextWithCancelOnInterrupt(context.Background())
				defer cancel()
				l.Info("simulation finished, serving metrics until interrupted")
				<-ctx.Done()
			}
			if err := metrics.Close(); err != nil {
				l.
					WithError(err).
					Error("error closing metrics server")
			}
		}()
	}

	topo, err := topology.New(sim, conf)
	if err != nil {
		return err
	}
	start := time.Now()
	report, err := topo.Run()
	if err != nil {
		return fmt.Errorf("error running scenario: %w", err)
	}
	l.
		WithField("wall_time", time.Since(start).String()).
		Info("simulation finished")

	return report.Write(out)
}
