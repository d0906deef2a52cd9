// Package stats provides per-task and run-level statistics for folder
// mirroring.
//
// This file implements the exit summary formatter which displays
// comprehensive statistics at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// TargetTasks is the number of tasks that were selected to run
	TargetTasks int

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ShowPerTaskStats enables the per-task result table
	ShowPerTaskStats bool

	// ExitCodes is a map of tool exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int

	// DurationP50, DurationP95, DurationP99 are task duration percentiles
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration
}

// FormatExitSummary formats aggregated stats for display at program exit.
//
// The summary includes:
// - Metrics degradation warning (if applicable)
// - Run information
// - Transfer statistics with rates
// - Transfer-rate percentiles
// - Per-task results
// - Error statistics
// - Footnotes with diagnostic information
func FormatExitSummary(stats *AggregatedStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                         go-folder-mirror Run Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Metrics degradation warning (lossy-by-design feature)
	if stats.MetricsDegraded {
		b.WriteString("⚠️  METRICS DEGRADED: Parsing could not keep up with tool output\n")
		fmt.Fprintf(&b, "    Lines dropped: %s across %d tasks\n",
			FormatNumber(stats.TotalLinesDropped),
			stats.TasksWithDrops,
		)
		b.WriteString("    Consider: --stats-buffer 2000 for accurate metrics\n\n")
	}

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Tasks:                  %d configured, %d succeeded, %d failed\n\n",
		cfg.TargetTasks, stats.SucceededTasks, stats.FailedTasks)

	// Transfer statistics
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                             Transfer Statistics\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Bytes Copied:         %s  (%s/s average)\n",
		FormatBytes(stats.TotalBytes),
		FormatBytes(int64(stats.ThroughputBytesPerSec)),
	)
	fmt.Fprintf(&b, "  Files Transferred:    %s\n", FormatNumber(stats.TotalFilesTransferred))
	if stats.TotalFilesFound > 0 {
		fmt.Fprintf(&b, "  Files Considered:     %s\n", FormatNumber(stats.TotalFilesFound))
	}

	// Transfer-rate percentiles
	if stats.RateP50 > 0 {
		b.WriteString("\n  Transfer Rate Percentiles:\n")
		fmt.Fprintf(&b, "    P50 (median):       %s/s\n", FormatBytes(int64(stats.RateP50)))
		fmt.Fprintf(&b, "    P95:                %s/s\n", FormatBytes(int64(stats.RateP95)))
		fmt.Fprintf(&b, "    P99:                %s/s\n", FormatBytes(int64(stats.RateP99)))
		fmt.Fprintf(&b, "    Max:                %s/s\n", FormatBytes(int64(stats.RateMax)))
	}
	b.WriteString("\n")

	// Per-task results
	if cfg.ShowPerTaskStats && len(stats.PerTaskSummaries) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Task Results\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-20s %-10s %12s %10s %9s %10s\n",
			"Task", "Result", "Bytes", "Files", "Attempts", "Duration")
		b.WriteString("  " + strings.Repeat("─", 75) + "\n")

		for _, ts := range stats.PerTaskSummaries {
			fmt.Fprintf(&b, "  %-20s %-10s %12s %10s %9d %10s\n",
				truncateName(ts.Task, 20),
				ts.State.String(),
				FormatBytes(ts.TotalBytes),
				FormatNumber(ts.FilesTransferred),
				ts.Attempts,
				FormatDuration(ts.Elapsed),
			)
		}
		b.WriteString("\n")
	}

	// Task duration distribution (from metrics.Collector)
	if cfg.DurationP50 > 0 || cfg.DurationP95 > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                           Task Duration Distribution\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatDuration(cfg.DurationP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatDuration(cfg.DurationP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatDuration(cfg.DurationP99))
		b.WriteString("\n")
	}

	// Errors
	hasErrors := stats.TotalToolErrors > 0 || stats.TotalRetries > 0 || stats.StalledTasks > 0
	if hasErrors {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Errors\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		if stats.TotalToolErrors > 0 {
			fmt.Fprintf(&b, "  Tool Error Lines:     %d\n", stats.TotalToolErrors)
		}
		if stats.TotalRetries > 0 {
			fmt.Fprintf(&b, "  Retries:              %d\n", stats.TotalRetries)
		}
		if stats.StalledTasks > 0 {
			fmt.Fprintf(&b, "  Stalled Tasks:        %d\n", stats.StalledTasks)
		}
		b.WriteString("\n")
	}

	// Tool exit codes (from metrics.Collector)
	if len(cfg.ExitCodes) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                               Tool Exit Codes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			count := cfg.ExitCodes[code]
			label := exitCodeLabel(code)
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, label, count)
		}
		b.WriteString("\n")
	}

	// Footnotes (diagnostic information)
	footnotes := renderFootnotes(stats)
	if footnotes != "" {
		b.WriteString(footnotes)
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                         go-folder-mirror Run Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Tasks:                  %d\n\n", cfg.TargetTasks)

	b.WriteString("(Stats collection was disabled)\n\n")

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// renderFootnotes adds diagnostic info that doesn't belong in main metrics.
func renderFootnotes(stats *AggregatedStats) string {
	var footnotes []string

	// Include peak drop rate if any drops occurred
	if stats.PeakDropRate > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[1] Peak metrics drop rate: %.1f%%",
			stats.PeakDropRate*100))
	}

	// Tasks still running at exit indicate an interrupted run
	if stats.RunningTasks > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[2] %d task(s) were still running when the summary was taken",
			stats.RunningTasks))
	}

	if len(footnotes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                 Footnotes\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
	for _, fn := range footnotes {
		fmt.Fprintf(&b, "  %s\n", fn)
	}
	b.WriteString("\n")
	return b.String()
}

// exitCodeLabel returns a human-readable label for common tool exit codes.
//
// Robocopy codes below 8 indicate success variants, so only the
// unambiguous ones get labels.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 24:
		return "(vanished)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not found)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// truncateName shortens a task name to fit the summary table.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	if max <= 3 {
		return name[:max]
	}
	return name[:max-3] + "..."
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
