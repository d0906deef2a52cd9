package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats *stats.AggregatedStats
}

// DoneMsg signals that the backup run finished. The dashboard stays up
// showing the final numbers until the user quits.
type DoneMsg struct {
	Failed int
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	tool        string
	taskCount   int
	metricsAddr string

	// Current state
	stats        *stats.AggregatedStats
	rates        stats.ThroughputStats
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool
	done         bool
	failed       int

	// Display options
	width  int
	height int

	// Stats source (for fetching updates)
	statsSource StatsSource

	// Rolling throughput source (optional)
	rateSource RateSource

	// Called once when the user quits so the run context can be
	// cancelled.
	onQuit func()

	// Quit flag
	quitting bool
}

// StatsSource provides aggregated statistics. *stats.StatsAggregator
// satisfies it directly.
type StatsSource interface {
	Aggregate() *stats.AggregatedStats
}

// RateSource provides rolling throughput windows. The engine's
// ThroughputTracker satisfies it.
type RateSource interface {
	GetStats() stats.ThroughputStats
}

// Config holds TUI configuration.
type Config struct {
	Tool        string
	TaskCount   int
	MetricsAddr string
	StatsSource StatsSource
	RateSource  RateSource
	OnQuit      func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		tool:        cfg.Tool,
		taskCount:   cfg.TaskCount,
		metricsAddr: cfg.MetricsAddr,
		statsSource: cfg.StatsSource,
		rateSource:  cfg.RateSource,
		onQuit:      cfg.OnQuit,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		// Fetch latest stats
		if m.statsSource != nil {
			m.stats = m.statsSource.Aggregate()
		}
		if m.rateSource != nil {
			m.rates = m.rateSource.GetStats()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.lastUpdate = time.Now()
		return m, nil

	case DoneMsg:
		m.done = true
		m.failed = msg.Failed
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.stats != nil && len(m.stats.PerTaskSummaries) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// FinishedTasks returns the number of tasks in a terminal state.
func (m Model) FinishedTasks() int {
	if m.stats == nil {
		return 0
	}
	return m.stats.SucceededTasks + m.stats.FailedTasks
}

// TaskCount returns the configured task count.
func (m Model) TaskCount() int {
	return m.taskCount
}

/// OverallProgress returns run progress 0.0 to 1.0. Finished tasks
// count in full and the running task contributes its own percentage.
func (m Model) OverallProgress() float64 {
	if m.taskCount == 0 {
		return 0
	}
	progress := float64(m.FinishedTasks())
	if m.stats != nil {
		for _, t := range m.stats.PerTaskSummaries {
			if t.State == stats.StateRunning {
				progress += float64(t.Percent) / 100
			}
		}
	}
	p := progress / float64(m.taskCount)
	if p > 1 {
		p = 1
	}
	return p
}

// DropRate returns the current pipeline drop rate.
func (m Model) DropRate() float64 {
	if m.stats == nil || m.stats.TotalLinesRead == 0 {
		return 0
	}
	return float64(m.stats.TotalLinesDropped) / float64(m.stats.TotalLinesRead)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, stats *stats.AggregatedStats) {
	if p != nil {
		p.Send(StatsMsg{Stats: stats})
	}
}

// SendDone tells the TUI the run finished.
func SendDone(p *tea.Program, failed int) {
	if p != nil {
		p.Send(DoneMsg{Failed: failed})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
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

// formatByteRate formats a bytes-per-second rate.
func formatByteRate(rate float64) string {
	return formatBytes(int64(rate)) + "/s"
}

// formatPercent formats a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
