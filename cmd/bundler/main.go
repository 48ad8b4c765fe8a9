// Bundler - groups friend tour events into at most four notifications per
// user and day, minimizing the total notification delay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/logflow/bundler/pkg/config"
	"github.com/logflow/bundler/pkg/logging"
	"github.com/logflow/bundler/pkg/source"
	"github.com/logflow/bundler/pkg/telemetry"
	"github.com/logflow/bundler/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	quiet      bool
)

// Loaded in PersistentPreRunE
var (
	appConfig         *config.Config
	telemetryShutdown telemetry.Shutdown
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if telemetryShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := telemetryShutdown(shutdownCtx); serr != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", serr)
		}
		cancel()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bundler",
	Short: "Bundler - batch friend tour notifications",
	Long: `Bundler reads friend tour events (timestamp, user_id, friend_id, friend_name),
groups them by receiving user and day, and sends at most four notifications per
group at the moments that minimize the summed delay.

Configuration is read from /etc/bundler/config.yaml, ~/.bundler/config.yaml,
./.bundler.yaml, --config and BUNDLER_* environment variables, in that order.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bundler %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress status output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(delayCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if err := m.Load(configFile); err != nil {
		return err
	}
	appConfig = m.Get()

	logger := logging.NewLogger(verbose)
	logger.Debugw("configuration loaded", "files", m.GetPaths())
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return nil
}

// startTelemetry installs the trace exporter once per process.
func startTelemetry(ctx context.Context, cfg *config.Config) error {
	if telemetryShutdown != nil {
		return nil
	}
	shutdown, err := telemetry.Init(ctx, cfg.TelemetryOptions(version))
	if err != nil {
		return err
	}
	telemetryShutdown = shutdown
	return nil
}

func newJob(cmd *cobra.Command, cfg *config.Config) *job {
	opener := source.NewOpener(cfg.S3Client())
	opener.Stdin = cmd.InOrStdin()
	opener.Stdout = cmd.OutOrStdout()
	return &job{
		cfg:     cfg,
		opener:  opener,
		console: tui.NewConsole(cmd.ErrOrStderr(), quiet),
	}
}
