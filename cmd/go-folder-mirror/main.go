// Package main provides the go-folder-mirror CLI entry point.
//
// go-folder-mirror mirrors configured source folders to their backup
// destinations by driving the platform's mirror tool: robocopy on
// Windows, rsync elsewhere. The sibling mirror-launcher binary invokes
// it with --run-backup; run interactively it shows a live dashboard.
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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/term"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
	"github.com/randomizedcoder/go-folder-mirror/internal/engine"
	"github.com/randomizedcoder/go-folder-mirror/internal/exitcode"
	"github.com/randomizedcoder/go-folder-mirror/internal/logging"
	"github.com/randomizedcoder/go-folder-mirror/internal/metrics"
	"github.com/randomizedcoder/go-folder-mirror/internal/mirror"
	"github.com/randomizedcoder/go-folder-mirror/internal/preflight"
	"github.com/randomizedcoder/go-folder-mirror/internal/runner"
	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
	"github.com/randomizedcoder/go-folder-mirror/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-folder-mirror
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-folder-mirror %s\n", version)
			return exitcode.Success
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return exitcode.ConfigError
	}

	// Load the config file, found relative to the working directory
	// (which the launcher pins to its own location)
	if err := config.Load(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitcode.ConfigError
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitcode.ConfigError
	}

	// The dashboard needs a terminal and an interactive invocation
	useTUI := !cfg.RunBackup && !cfg.Check && !cfg.PrintCmd && cfg.TUIEnabled
	ttyMissing := useTUI && !term.IsTerminal(int(os.Stdout.Fd()))
	if ttyMissing {
		useTUI = false
	}

	// Initialize logger
	// While the TUI owns the terminal the console mirror is disabled so
	// log lines cannot corrupt the alternate screen; the file sink is
	// always written.
	logger, logCloser := newLogger(cfg, useTUI)
	defer logCloser.Close()
	logging.SetDefault(logger)

	if ttyMissing {
		logger.Info("no terminal detected, running unattended (pass --run-backup to silence this hint)")
	}

	// Resolve the mirror tool and its command builder
	tool := mirror.Detect(cfg.Tool)
	builder, err := mirror.NewBuilder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitcode.ConfigError
	}

	tasks := cfg.SelectedTasks()

	// Handle --check mode
	if cfg.Check {
		result := preflight.RunAll(tasks, tool)
		preflight.PrintResults(result)
		if !result.Passed {
			return exitcode.Failure
		}
		return exitcode.Success
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		return printMirrorCommands(builder, tasks)
	}

	// Interrupt/termination cancels the run between and during tasks
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBackup(ctx, cfg, builder, tool, tasks, logger, useTUI)
}

// runBackup executes the configured tasks with stats, metrics and the
// dashboard wired around the engine. Returns the process exit code.
func runBackup(ctx context.Context, cfg *config.Config, builder mirror.Builder, tool string, tasks []config.Task, logger *slog.Logger, useTUI bool) int {
	agg := stats.NewStatsAggregator(cfg.StatsDropThreshold)

	// Metrics are collected when either sink is configured
	var collector *metrics.Collector
	if cfg.MetricsAddr != "" || cfg.TextfilePath != "" {
		collector = metrics.NewCollector(metrics.CollectorConfig{
			Tool:      tool,
			Version:   version,
			TaskCount: len(tasks),
		})
	}

	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		server = metrics.NewServer(cfg.MetricsAddr, nil, logger)
		if err := server.Start(); err != nil {
			logger.Error("metrics_server_failed", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng := engine.New(engine.Config{
		Tasks:              tasks,
		Builder:            builder,
		Logger:             logger,
		Aggregator:         agg,
		StatsBufferSize:    cfg.StatsBufferSize,
		StatsDropThreshold: cfg.StatsDropThreshold,
		RetryCount:         cfg.Robocopy.RetryCount,
		WaitTime:           time.Duration(cfg.Robocopy.WaitTime) * time.Second,
		Verbose:            cfg.Verbose,
		Callbacks:          metricsCallbacks(collector),
	})

	// Feed the prometheus collector while the run is in flight
	if collector != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					collector.RecordStats(agg.Aggregate())
				}
			}
		}()
	}

	var summary *engine.Summary
	if useTUI {
		summary = runWithDashboard(runCtx, cancel, cfg, eng, agg, tool, len(tasks))
	} else {
		logger.Info("starting",
			"version", version,
			"tool", tool,
			"tasks", len(tasks),
			"config", cfg.ConfigFile,
			"metrics_addr", cfg.MetricsAddr,
		)
		printBanner(cfg, tool, len(tasks))

		// Tell systemd the run loop is up
		if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logger.Warn("sd_notify_failed", "error", err)
		} else if sent {
			logger.Debug("sd_notify_ready")
		}

		summary = eng.Run(runCtx)
	}

	finalizeMetrics(cfg, collector, agg, server, summary, logger)

	// The alternate screen (if any) is gone by now; the summary lands
	// on the scrollback, or on the captured log when run unattended
	printExitSummary(cfg, collector, agg, summary)

	return summary.ExitCode()
}

// runWithDashboard runs the engine under the bubbletea program. The
// returned summary is always non-nil; quitting the dashboard cancels
// the run and waits for the engine to wind down.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, eng *engine.Engine, agg *stats.StatsAggregator, tool string, taskCount int) *engine.Summary {
	model := tui.New(tui.Config{
		Tool:        tool,
		TaskCount:   taskCount,
		MetricsAddr: cfg.MetricsAddr,
		StatsSource: agg,
		RateSource:  eng.Tracker(),
		OnQuit:      cancel,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())

	summaryCh := make(chan *engine.Summary, 1)
	go func() {
		summary := eng.Run(ctx)
		summaryCh <- summary
		tui.SendDone(program, summary.Failed)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
		cancel()
	}

	return <-summaryCh
}

// newLogger builds the rotating file logger from the logging config.
func newLogger(cfg *config.Config, useTUI bool) (*slog.Logger, io.Closer) {
	return logging.NewRotatingLogger(logging.RotateOptions{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console && !useTUI,
		Format:     cfg.EffectiveLogFormat(),
		Level:      cfg.EffectiveLogLevel(),
		Verbose:    cfg.Verbose,
	})
}

// metricsCallbacks routes task completions into the collector. A nil
// collector yields empty callbacks.
func metricsCallbacks(collector *metrics.Collector) engine.Callbacks {
	if collector == nil {
		return engine.Callbacks{}
	}
	return engine.Callbacks{
		OnTaskDone: func(task config.Task, res *runner.Result) {
			collector.RecordTaskExit(res.ExitCode, res.Success, res.Duration())
		},
	}
}

// finalizeMetrics records the run outcome, writes the textfile export
// and stops the scrape endpoint.
func finalizeMetrics(cfg *config.Config, collector *metrics.Collector, agg *stats.StatsAggregator, server *metrics.Server, summary *engine.Summary, logger *slog.Logger) {
	if collector != nil {
		collector.RecordStats(agg.Aggregate())
		collector.RecordRunResult(summary.ExitCode() == exitcode.Success, summary.Duration)
	}

	if collector != nil && cfg.TextfilePath != "" {
		if err := metrics.WriteTextfile(cfg.TextfilePath, nil); err != nil {
			logger.Error("textfile_write_failed", "path", cfg.TextfilePath, "error", err)
		} else {
			logger.Info("textfile_written", "path", cfg.TextfilePath)
		}
	}

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics_server_shutdown_failed", "error", err)
		}
	}
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config, tool string, taskCount int) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        go-folder-mirror                           ║")
	fmt.Println("║       Config-Driven Folder Mirroring with Robocopy/Rsync          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Config:      %s\n", cfg.ConfigFile)
	fmt.Printf("  Tool:        %s\n", tool)
	fmt.Printf("  Tasks:       %d\n", taskCount)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.DryRun {
		fmt.Println("  Mode:        DRY RUN (list only, nothing copied)")
	}
	fmt.Println()
}

// printExitSummary prints the statistics table followed by the
// outcome line and per-task failure details.
func printExitSummary(cfg *config.Config, collector *metrics.Collector, agg *stats.StatsAggregator, summary *engine.Summary) {
	sc := stats.SummaryConfig{
		TargetTasks:      summary.Total,
		Duration:         summary.Duration,
		MetricsAddr:      cfg.MetricsAddr,
		ShowPerTaskStats: true,
	}
	if collector != nil {
		rs := collector.GenerateSummary()
		sc.ExitCodes = rs.ExitCodes
		sc.DurationP50 = rs.DurationP50
		sc.DurationP95 = rs.DurationP95
		sc.DurationP99 = rs.DurationP99
	}
	fmt.Print(stats.FormatExitSummary(agg.Aggregate(), sc))

	printOutcome(summary)
}

// printOutcome prints the run outcome and any failure details.
func printOutcome(summary *engine.Summary) {
	fmt.Println()
	switch {
	case summary.Failed == 0 && len(summary.Results) == summary.Total:
		fmt.Printf("✓ All %d backup task(s) completed successfully in %s\n",
			summary.Total, summary.Duration.Round(time.Second))
	case len(summary.Results) < summary.Total:
		fmt.Printf("✗ Run cancelled: %d of %d task(s) completed (%s)\n",
			len(summary.Results), summary.Total, summary.Duration.Round(time.Second))
	default:
		fmt.Printf("✗ %d of %d backup task(s) failed (%s)\n",
			summary.Failed, summary.Total, summary.Duration.Round(time.Second))
	}

	for _, res := range summary.Results {
		if res.Success {
			continue
		}
		if res.Err != nil {
			fmt.Printf("  %s: %v\n", res.Task, res.Err)
		} else {
			fmt.Printf("  %s: exit code %d\n", res.Task, res.ExitCode)
		}
	}
}

// printMirrorCommands prints the mirror command per task.
func printMirrorCommands(builder mirror.Builder, tasks []config.Task) int {
	type argvPrinter interface {
		CommandString(config.Task) string
	}

	fmt.Printf("# %s command per task:\n\n", builder.Name())
	for _, task := range tasks {
		fmt.Printf("# %s\n", task.Name)
		if p, ok := builder.(argvPrinter); ok {
			fmt.Println(p.CommandString(task))
		} else {
			cmd, err := builder.BuildCommand(context.Background(), task)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building command for %s: %v\n", task.Name, err)
				return exitcode.Failure
			}
			fmt.Println(strings.Join(cmd.Args, " "))
		}
		fmt.Println()
	}
	return exitcode.Success
}
