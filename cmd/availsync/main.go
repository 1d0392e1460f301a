// Availsync keeps a local availability calendar consistent with a channel
// manager and serves it over a local control API.
//
// Usage:
//
//	availsync setup                       # interactive first-run wizard
//	availsync daemon   [--config <path>]  # run the coordinator and control API
//	availsync calendar [--from YYYY-MM-DD] [--days N]
//	availsync pending                     # show the pending-sync backlog
//	availsync sync     [--async]          # trigger a manual sync
//	availsync status                      # show config, cache and daemon state
//	availsync uninstall [--purge]         # stop the service and remove files
//	availsync version                     # print version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/availsync/internal/config"
	"github.com/njoerd114/availsync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	cfgPath string
	verbose bool
	logger  *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	defaultCfg, _ := config.DefaultPath()

	root := &cobra.Command{
		Use:           "availsync",
		Short:         "Keep a local availability calendar in sync with the channel manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.initLogger()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultCfg, "path to config.yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSetupCommand(a),
		newDaemonCommand(a),
		newCalendarCommand(a),
		newPendingCommand(a),
		newSyncCommand(a),
		newStatusCommand(a),
		newUninstallCommand(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "availsync", version)
			},
		},
	)
	return root
}

// --- Shared setup ------------------------------------------------------------

// initLogger installs a text logger on stderr. Records also flow to the
// global OTel logger provider once telemetry is set up.
func (a *app) initLogger() {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	a.logger = slog.New(telemetry.NewLogHandler(text, nil))
	slog.SetDefault(a.logger)
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", a.cfgPath, err)
	}
	a.logger.Debug("config loaded",
		"api_url", cfg.APIURL,
		"property_id", cfg.PropertyID,
		"window_days", cfg.Calendar.WindowDays,
	)
	return cfg, nil
}

// startTelemetry sets up OTel export when configured. The returned function
// flushes and shuts it down and is always safe to call.
func (a *app) startTelemetry(cfg *config.Config) func() {
	if cfg.Telemetry == nil {
		return func() {}
	}
	telCfg := telemetry.Config{
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		Headers:        cfg.Telemetry.Headers,
		MetricInterval: cfg.Telemetry.MetricInterval,
	}
	shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
	if err != nil {
		a.logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		return func() {}
	}
	a.logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTel(flushCtx); err != nil {
			a.logger.Error("telemetry shutdown error", "error", err)
		}
	}
}

// humanSize formats a byte count as a human-readable string.
func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
