// hivesync manages the lifecycle of Hive table replicas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hivesync/hivesync/internal/config"
	"github.com/hivesync/hivesync/internal/logging/loki"
	"github.com/hivesync/hivesync/internal/metrics"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile         string
	logLevel        string
	timeout         time.Duration
	metricsTextfile string

	sourceLocation string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hivesync",
		Short: "hivesync - Hive table replica lifecycle",
		Long: `hivesync manages replica tables created by Hive table replication.

It drops replica tables from the replica catalog, optionally deleting the
replica data on S3, GCS or HDFS first, and applies the configured table
parameters to replica tables.

  # Drop every configured replica table and its data:
  hivesync teardown --config hivesync.yaml

  # Drop one replica table, keeping its data:
  hivesync drop-table rep_db events --config hivesync.yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall command timeout (0 = none)")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(newDropTableCmd())
	rootCmd.AddCommand(newDropTableAndDataCmd())
	rootCmd.AddCommand(newTeardownCmd())
	rootCmd.AddCommand(newApplyParametersCmd())
	rootCmd.AddCommand(newBucketRegionCmd())
	rootCmd.AddCommand(newSchemesCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newDropTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-table <database> <table>",
		Short: "Drop a replica table, keeping its data",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return runDropTable(ctx, a, cmd.OutOrStdout(), args[0], args[1])
		}),
	}
}

func newDropTableAndDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop-table-and-data <database> <table>",
		Short: "Delete a replica table's data, then drop the table",
		Long: `Delete the data of a replica table and all its partitions, then drop the
table from the replica catalog.

The data client is chosen from the scheme of the source location (taken from
the matching table replication, or --source-location) and the scheme of each
replica path.`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return runDropTableAndData(ctx, a, cmd.OutOrStdout(), args[0], args[1], sourceLocation)
		}),
	}
	cmd.Flags().StringVar(&sourceLocation, "source-location", "", "source table location (overrides the configured replication)")
	return cmd
}

func newTeardownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Drop every configured replica table and its data",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			return runTeardown(ctx, a, cmd.OutOrStdout())
		}),
	}
}

func newApplyParametersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply-parameters",
		Short: "Apply the configured table parameters to every replica table",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			return runApplyParameters(ctx, a, cmd.OutOrStdout())
		}),
	}
}

func newBucketRegionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bucket-region <s3-uri>",
		Short: "Show the region an S3 bucket lives in",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return runBucketRegion(ctx, a, cmd.OutOrStdout(), args[0])
		}),
	}
}

func newSchemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemes [source-location replica-location]",
		Short: "List data client factories, or show which one serves a pair of locations",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: withApp(func(_ context.Context, a *app, cmd *cobra.Command, args []string) error {
			var src, rep string
			if len(args) == 2 {
				src, rep = args[0], args[1]
			}
			return runSchemes(a, cmd.OutOrStdout(), src, rep)
		}),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hivesync %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Build Time: %s\n", BuildTime)
		},
	}
}

type commandFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp loads the configuration, wires the app and runs fn under a context
// cancelled on SIGINT/SIGTERM or --timeout.
func withApp(fn commandFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		setupLogging()

		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		config.ApplyLogLevel(cfg.LogLevel)

		if cfg.Logging.LokiURL != "" {
			lw := startLoki(cfg, cmd.Name())
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				lw.Stop(ctx)
			}()
		}

		a, err := newApp(cfg, log.Logger, metrics.Registry)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close audit log")
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		runErr := fn(ctx, a, cmd, args)
		if runErr != nil {
			log.Error().Err(runErr).Str("command", cmd.Name()).Msg("Command failed")
		}
		if err := writeMetrics(metricsTextfile, metrics.Registry); err != nil {
			log.Warn().Err(err).Str("path", metricsTextfile).Msg("Failed to write metrics")
		}
		return runErr
	}
}

// startLoki tees the global logger into a Loki writer.
func startLoki(cfg *config.Config, command string) *loki.Writer {
	labels := map[string]string{"command": command}
	for k, v := range cfg.Logging.LokiLabels {
		labels[k] = v
	}
	lw := loki.NewWriter(loki.Config{
		URL:    cfg.Logging.LokiURL,
		Labels: labels,
		OnError: func(err error) {
			_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		},
	})
	lw.Start()

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, lw)).With().Timestamp().Logger()
	return lw
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, g)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
