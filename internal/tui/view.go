package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main summary dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Progress section
	sections = append(sections, m.renderProgress())

	// Stats sections (only if we have stats)
	if m.stats != nil {
		sections = append(sections, m.renderTransferStats())
		sections = append(sections, m.renderTaskList())

		// Errors section (only if there are errors)
		if m.hasErrors() {
			sections = append(sections, m.renderErrorStats())
		}
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders per-task details.
func (m Model) renderDetailedView() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Per-task table
	sections = append(sections, m.renderTaskTable())

	// Rate percentiles
	sections = append(sections, m.renderRateStats())

	// Output pipeline health
	sections = append(sections, m.renderPipelineHealth())

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	// Pipeline status indicator
	metricsLabel := GetMetricsLabel(m.DropRate())

	// Build header line
	header := fmt.Sprintf(
		" go-folder-mirror │ %s │ Tasks: %d/%d │ Elapsed: %s ",
		metricsLabel,
		m.FinishedTasks(),
		m.taskCount,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.OverallProgress()

	// Progress bar
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(progress, barWidth)

	// Status text
	var status string
	switch {
	case m.done && m.failed == 0:
		status = statusOK.Render("✓ All tasks complete")
	case m.done:
		status = statusError.Render(fmt.Sprintf("✗ %d task(s) failed", m.failed))
	default:
		if running := m.runningTaskName(); running != "" {
			status = statusInfo.Render(fmt.Sprintf("Copying %s... %d/%d done", running, m.FinishedTasks(), m.taskCount))
		} else {
			status = statusInfo.Render(fmt.Sprintf("Running... %d/%d done", m.FinishedTasks(), m.taskCount))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Run Progress"),
		progressBar,
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) runningTaskName() string {
	if m.stats == nil {
		return ""
	}
	for _, t := range m.stats.PerTaskSummaries {
		if t.State == stats.StateRunning {
			return t.Task
		}
	}
	return ""
}

// =============================================================================
// Transfer Statistics
// =============================================================================

func (m Model) renderTransferStats() string {
	if m.stats == nil {
		return ""
	}

	s := m.stats

	// Build rows
	rows := []string{
		renderStatRow("Bytes Copied", formatBytes(s.TotalBytes), formatByteRate(s.InstantThroughputRate)),
		renderStatRow("Files Transferred", formatNumber(s.TotalFilesTransferred), fmt.Sprintf("of %s found", formatNumber(s.TotalFilesFound))),
		renderStatRow("Avg Throughput", formatByteRate(s.ThroughputBytesPerSec), "since start"),
	}

	// Rolling windows from the throughput tracker
	windows := fmt.Sprintf("%s (1s)  %s (30s)  %s (5m)",
		formatByteRate(m.rates.Avg1s),
		formatByteRate(m.rates.Avg30s),
		formatByteRate(m.rates.Avg300s),
	)
	rows = append(rows, RenderKeyValueWide("Rolling Rates", windows))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Transfer Statistics")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, rate string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		mutedStyle.Render(" ("),
		valueStyle.Render(rate),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Task List
// =============================================================================

func (m Model) renderTaskList() string {
	if m.stats == nil || len(m.stats.PerTaskSummaries) == 0 {
		return ""
	}

	// Bar width shrinks to leave room for name, state, and byte count
	barWidth := m.width - 56
	if barWidth < 10 {
		barWidth = 10
	}

	var rows []string
	for _, t := range m.stats.PerTaskSummaries {
		name := t.Task
		if len(name) > 18 {
			name = name[:15] + "..."
		}

		state := GetStateStyle(t.State).Render(fmt.Sprintf("%-8s", stateName(t.State)))

		var bar string
		if t.State == stats.StateRunning && t.Scanning {
			bar = dimStyle.Render("building file list...")
		} else {
			bar = RenderProgressBar(float64(t.Percent)/100.0, barWidth)
		}

		right := formatBytes(t.TotalBytes)
		if t.State == stats.StateRunning && t.Rate > 0 {
			right += " @ " + formatByteRate(t.Rate)
		}

		row := lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(name+":"),
			state,
			" ",
			bar,
			"  ",
			valueStyle.Render(right),
		)

		if t.IsStalled {
			row = lipgloss.JoinHorizontal(lipgloss.Left, row, "  ", statusWarning.Render("⚠ stalled"))
		}

		rows = append(rows, row)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Tasks")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func stateName(state stats.TaskState) string {
	switch state {
	case stats.StateSucceeded:
		return "done"
	case stats.StateFailed:
		return "failed"
	case stats.StateRunning:
		return "running"
	default:
		return "pending"
	}
}

// =============================================================================
// Error Statistics
// =============================================================================

func (m Model) hasErrors() bool {
	if m.stats == nil {
		return false
	}
	return m.stats.FailedTasks > 0 ||
		m.stats.TotalToolErrors > 0 ||
		m.stats.TotalRetries > 0
}

func (m Model) renderErrorStats() string {
	if m.stats == nil {
		return ""
	}

	s := m.stats

	var rows []string

	// Failed tasks
	if s.FailedTasks > 0 {
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render("Failed Tasks:"),
				valueBadStyle.Render(fmt.Sprintf("%d", s.FailedTasks)),
			),
		)
	}

	// Per-task tool error counts
	for _, t := range s.PerTaskSummaries {
		if t.ToolErrors > 0 {
			rows = append(rows,
				lipgloss.JoinHorizontal(lipgloss.Left,
					labelStyle.Render(t.Task+":"),
					valueBadStyle.Render(fmt.Sprintf("%d tool errors", t.ToolErrors)),
				),
			)
		}
	}

	// Retries
	if s.TotalRetries > 0 {
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render("Retries:"),
				valueWarnStyle.Render(fmt.Sprintf("%d", s.TotalRetries)),
			),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Errors")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Task Table (Detailed View)
// =============================================================================

func (m Model) renderTaskTable() string {
	if m.stats == nil || len(m.stats.PerTaskSummaries) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No per-task data available. Press 'd' to toggle."),
		)
	}

	// Table header
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-18s %-8s %5s %10s %8s %12s %9s %7s",
			"Task", "State", "%", "Bytes", "Files", "Rate", "Attempts", "Errors"),
	)

	// Table rows (limit to fit screen)
	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, t := range m.stats.PerTaskSummaries {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more tasks", len(m.stats.PerTaskSummaries)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		name := t.Task
		if len(name) > 18 {
			name = name[:15] + "..."
		}

		row := fmt.Sprintf("%-18s %-8s %4d%% %10s %8s %12s %9d %7d",
			name,
			stateName(t.State),
			t.Percent,
			formatBytes(t.TotalBytes),
			formatNumber(t.FilesTransferred),
			formatByteRate(t.Rate),
			t.Attempts,
			t.ToolErrors,
		)
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Per-Task Statistics"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Transfer Rate Percentiles
// =============================================================================

func (m Model) renderRateStats() string {
	if m.stats == nil || m.stats.RateMax == 0 {
		return ""
	}

	s := m.stats

	rows := []string{
		RenderKeyValue("P50 (median)", formatByteRate(s.RateP50)),
		RenderKeyValue("P95", formatByteRate(s.RateP95)),
		RenderKeyValue("P99", formatByteRate(s.RateP99)),
		RenderKeyValue("Max", formatByteRate(s.RateMax)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Transfer Rate Percentiles")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Pipeline Health
// =============================================================================

func (m Model) renderPipelineHealth() string {
	if m.stats == nil {
		return ""
	}

	s := m.stats

	dropRate := m.DropRate()
	dropStyle := GetMetricsStyle(GetMetricsStatus(dropRate))

	rows := []string{
		RenderKeyValue("Lines Read", formatNumber(s.TotalLinesRead)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Lines Dropped:"),
			dropStyle.Render(formatNumber(s.TotalLinesDropped)),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Drop Rate:"),
			dropStyle.Render(formatPercent(dropRate)),
		),
		RenderKeyValue("Peak Drop Rate", formatPercent(s.PeakDropRate)),
	}

	if s.TasksWithDrops > 0 {
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render("Tasks With Drops:"),
				valueWarnStyle.Render(fmt.Sprintf("%d", s.TasksWithDrops)),
			),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Pipeline Health")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	// Keyboard shortcuts
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}

	var rightText string
	switch {
	case m.done && m.failed == 0:
		rightText = "Run complete"
	case m.done:
		rightText = fmt.Sprintf("Run complete: %d failed", m.failed)
	case m.metricsAddr != "":
		rightText = "Tool: " + m.tool + " │ Metrics: " + m.metricsAddr
	default:
		rightText = "Tool: " + m.tool
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render(rightText)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
