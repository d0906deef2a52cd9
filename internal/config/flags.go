package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// taskList is a custom flag type for repeatable -task flags.
type taskList []string

func (t *taskList) String() string {
	return strings.Join(*t, ", ")
}

func (t *taskList) Set(value string) error {
	*t = append(*t, value)
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
// File-backed fields are filled later by Load.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()
	var tasks taskList

	// Flag-level tool default is empty so Load can tell an explicit
	// -tool apart from a config-file value.
	cfg.Tool = ""

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-folder-mirror - config-driven folder mirroring with robocopy/rsync

Usage:
  go-folder-mirror [flags]

Modes:
`)
		printFlagCategory([]string{"run-backup", "check", "print-cmd", "dry-run"})

		fmt.Fprintf(os.Stderr, "\nSelection:\n")
		printFlagCategory([]string{"config", "task", "tool"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "textfile", "v", "log-level", "log-format"})

		fmt.Fprintf(os.Stderr, "\nDashboard:\n")
		printFlagCategory([]string{"tui"})

		fmt.Fprintf(os.Stderr, `
Flag Convention:
  Single-dash flags (-config, -task) are normal options.
  Double-dash flags (--run-backup, --check) are run modes.

Examples:
  # Unattended run of every configured task (what the launcher invokes)
  go-folder-mirror --run-backup

  # Preview the commands a run would execute
  go-folder-mirror --print-cmd

  # Dry-run a single task with verbose logs
  go-folder-mirror --run-backup --dry-run -task Documents -v

`)
	}

	// Modes
	flag.BoolVar(&cfg.RunBackup, "run-backup", cfg.RunBackup, "Run all configured backup tasks unattended (CLI mode)")
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Run preflight checks and exit")
	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the mirror command per task and exit")
	flag.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "List-only pass: robocopy /L, rsync -n")

	// Selection
	flag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to config file (default: config.json, then config.yaml)")
	flag.Var(&tasks, "task", "Run only the named task (can repeat)")
	flag.StringVar(&cfg.Tool, "tool", cfg.Tool, `Mirror tool: "auto", "robocopy", "rsync"`)

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (e.g. 0.0.0.0:17091; empty = disabled)")
	flag.StringVar(&cfg.TextfilePath, "textfile", cfg.TextfilePath, "Write run metrics to this node_exporter textfile-collector path")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Override configured log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Override configured log format: "json" or "text"`)

	// TUI (Terminal User Interface)
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (default: true, use -tui=false to disable)")

	// Note: stats-drop-threshold is intentionally not documented (hidden advanced flag)
	flag.IntVar(&cfg.StatsBufferSize, "stats-buffer", cfg.StatsBufferSize, "Output lines to buffer per task (increase if seeing drops)")
	flag.Float64Var(&cfg.StatsDropThreshold, "stats-drop-threshold", cfg.StatsDropThreshold, "")

	// Parse
	flag.Parse()

	// Copy task filter
	cfg.TaskFilter = tasks

	if args := flag.Args(); len(args) > 0 {
		return nil, fmt.Errorf("unexpected argument: %q (tasks are configured in the config file)", args[0])
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
