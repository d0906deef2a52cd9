package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
)

// =============================================================================
// Mock Sources
// =============================================================================

type mockStatsSource struct {
	stats *stats.AggregatedStats
}

func (m *mockStatsSource) Aggregate() *stats.AggregatedStats {
	return m.stats
}

type mockRateSource struct {
	rates stats.ThroughputStats
}

func (m *mockRateSource) GetStats() stats.ThroughputStats {
	return m.rates
}

// testSnapshot returns a realistic two-task snapshot: one succeeded,
// one mid-copy.
func testSnapshot() *stats.AggregatedStats {
	return &stats.AggregatedStats{
		Timestamp:             time.Now(),
		TotalTasks:            2,
		RunningTasks:          1,
		SucceededTasks:        1,
		TotalBytes:            1_500_000_000,
		TotalFilesTransferred: 1200,
		TotalFilesFound:       2000,
		ThroughputBytesPerSec: 5_000_000,
		TotalLinesRead:        10_000,
		TotalLinesDropped:     100,
		PerTaskSummaries: []stats.TaskSummary{
			{Task: "Documents", State: stats.StateSucceeded, Percent: 100, TotalBytes: 500_000_000, FilesTransferred: 800},
			{Task: "Pictures", State: stats.StateRunning, Percent: 40, TotalBytes: 1_000_000_000, FilesTransferred: 400, Rate: 5_000_000},
		},
	}
}

// =============================================================================
// Tests: New
// =============================================================================

func TestNew(t *testing.T) {
	cfg := Config{
		Tool:        "rsync",
		TaskCount:   2,
		MetricsAddr: "localhost:9108",
	}

	model := New(cfg)

	if model.tool != "rsync" {
		t.Errorf("tool = %s, want rsync", model.tool)
	}
	if model.taskCount != 2 {
		t.Errorf("taskCount = %d, want 2", model.taskCount)
	}
	if model.metricsAddr != "localhost:9108" {
		t.Errorf("metricsAddr = %s, want localhost:9108", model.metricsAddr)
	}
	if model.width != 80 {
		t.Errorf("width = %d, want 80", model.width)
	}
	if model.height != 24 {
		t.Errorf("height = %d, want 24", model.height)
	}
}

// =============================================================================
// Tests: Init
// =============================================================================

func TestModel_Init(t *testing.T) {
	model := New(Config{TaskCount: 2})
	cmd := model.Init()

	if cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"d", false},
		{"r", false},
		{"x", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			model := New(Config{TaskCount: 2})
			msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			if tt.key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else if tt.key == "esc" {
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			}

			newModel, cmd := model.Update(msg)
			m := newModel.(Model)

			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}

			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
		})
	}
}

func TestModel_Update_QuitCancelsRun(t *testing.T) {
	cancelled := 0
	model := New(Config{
		TaskCount: 2,
		OnQuit:    func() { cancelled++ },
	})

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)

	if !m.quitting {
		t.Error("quitting should be true")
	}
	if cancelled != 1 {
		t.Errorf("onQuit called %d times, want 1", cancelled)
	}
}

func TestModel_Update_ToggleDetailedView(t *testing.T) {
	model := New(Config{TaskCount: 2})

	// Initially not detailed
	if model.detailedView {
		t.Error("detailedView should be false initially")
	}

	// Press 'd' to toggle
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)

	if !m.detailedView {
		t.Error("detailedView should be true after pressing 'd'")
	}

	// Press 'd' again to toggle back
	newModel, _ = m.Update(msg)
	m = newModel.(Model)

	if m.detailedView {
		t.Error("detailedView should be false after pressing 'd' again")
	}
}

// =============================================================================
// Tests: Update - Window Size
// =============================================================================

func TestModel_Update_WindowSize(t *testing.T) {
	model := New(Config{TaskCount: 2})

	msg := tea.WindowSizeMsg{Width: 120, Height: 40}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)

	if m.width != 120 {
		t.Errorf("width = %d, want 120", m.width)
	}
	if m.height != 40 {
		t.Errorf("height = %d, want 40", m.height)
	}
}

// =============================================================================
// Tests: Update - Tick
// =============================================================================

func TestModel_Update_Tick(t *testing.T) {
	source := &mockStatsSource{stats: testSnapshot()}
	rates := &mockRateSource{rates: stats.ThroughputStats{Avg1s: 2_000_000, Avg30s: 1_500_000}}

	model := New(Config{
		TaskCount:   2,
		StatsSource: source,
		RateSource:  rates,
	})

	msg := TickMsg(time.Now())
	newModel, cmd := model.Update(msg)
	m := newModel.(Model)

	if m.stats == nil {
		t.Fatal("stats should be set after tick")
	}
	if m.stats.SucceededTasks != 1 {
		t.Errorf("SucceededTasks = %d, want 1", m.stats.SucceededTasks)
	}
	if m.rates.Avg1s != 2_000_000 {
		t.Errorf("rates.Avg1s = %v, want 2000000", m.rates.Avg1s)
	}
	if cmd == nil {
		t.Error("expected tick cmd to be returned")
	}
}

// =============================================================================
// Tests: Update - Stats Message
// =============================================================================

func TestModel_Update_StatsMsg(t *testing.T) {
	model := New(Config{TaskCount: 2})

	msg := StatsMsg{Stats: testSnapshot()}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)

	if m.stats == nil {
		t.Fatal("stats should be set")
	}
	if m.stats.TotalBytes != 1_500_000_000 {
		t.Errorf("TotalBytes = %d, want 1500000000", m.stats.TotalBytes)
	}
}

// =============================================================================
// Tests: Update - Done Message
// =============================================================================

func TestModel_Update_DoneMsg(t *testing.T) {
	model := New(Config{TaskCount: 2})
	model.stats = testSnapshot()

	msg := DoneMsg{Failed: 1}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)

	if !m.done {
		t.Error("done should be true")
	}
	if m.failed != 1 {
		t.Errorf("failed = %d, want 1", m.failed)
	}

	// Dashboard stays up after completion
	view := m.View()
	if view == "" {
		t.Error("View() should still render after DoneMsg")
	}
	if !strings.Contains(view, "failed") {
		t.Error("View() should mention the failure")
	}
}

// =============================================================================
// Tests: Update - Quit Message
// =============================================================================

func TestModel_Update_QuitMsg(t *testing.T) {
	model := New(Config{TaskCount: 2})

	msg := QuitMsg{}
	newModel, cmd := model.Update(msg)
	m := newModel.(Model)

	if !m.quitting {
		t.Error("quitting should be true")
	}
	if cmd == nil {
		t.Error("expected tea.Quit cmd")
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View_Quitting(t *testing.T) {
	model := New(Config{TaskCount: 2})
	model.quitting = true

	view := model.View()
	if view != "" {
		t.Errorf("View() when quitting should be empty, got %q", view)
	}
}

func TestModel_View_Summary(t *testing.T) {
	model := New(Config{Tool: "rsync", TaskCount: 2})
	model.stats = testSnapshot()

	view := model.View()

	if len(view) == 0 {
		t.Fatal("View() returned empty string")
	}
	if !strings.Contains(view, "Documents") {
		t.Error("View() should list the Documents task")
	}
	if !strings.Contains(view, "Pictures") {
		t.Error("View() should list the Pictures task")
	}
}

func TestModel_View_Detailed(t *testing.T) {
	model := New(Config{Tool: "rsync", TaskCount: 2})
	model.stats = testSnapshot()
	model.detailedView = true

	view := model.View()

	if !strings.Contains(view, "Per-Task Statistics") {
		t.Error("detailed View() should contain the task table")
	}
	if !strings.Contains(view, "Pipeline Health") {
		t.Error("detailed View() should contain pipeline health")
	}
}

func TestModel_View_DetailedWithoutStats(t *testing.T) {
	model := New(Config{Tool: "rsync", TaskCount: 2})
	model.detailedView = true

	// Falls back to the summary view when there is nothing to tabulate
	view := model.View()
	if view == "" {
		t.Error("View() returned empty string")
	}
}

// =============================================================================
// Tests: Accessors
// =============================================================================

func TestModel_Elapsed(t *testing.T) {
	model := New(Config{TaskCount: 2})
	time.Sleep(10 * time.Millisecond)

	elapsed := model.Elapsed()
	if elapsed < 10*time.Millisecond {
		t.Errorf("Elapsed() = %v, want >= 10ms", elapsed)
	}
}

func TestModel_FinishedTasks(t *testing.T) {
	model := New(Config{TaskCount: 2})

	// Without stats
	if model.FinishedTasks() != 0 {
		t.Errorf("FinishedTasks() without stats = %d, want 0", model.FinishedTasks())
	}

	// With stats
	model.stats = &stats.AggregatedStats{SucceededTasks: 1, FailedTasks: 1}
	if model.FinishedTasks() != 2 {
		t.Errorf("FinishedTasks() = %d, want 2", model.FinishedTasks())
	}
}

func TestModel_OverallProgress(t *testing.T) {
	tests := []struct {
		name      string
		taskCount int
		stats     *stats.AggregatedStats
		want      float64
	}{
		{"zero tasks", 0, nil, 0},
		{"no stats", 2, nil, 0},
		{
			"one of two done",
			2,
			&stats.AggregatedStats{SucceededTasks: 1},
			0.5,
		},
		{
			"running task counts partially",
			2,
			&stats.AggregatedStats{
				SucceededTasks: 1,
				PerTaskSummaries: []stats.TaskSummary{
					{Task: "Pictures", State: stats.StateRunning, Percent: 50},
				},
			},
			0.75,
		},
		{
			"all finished",
			2,
			&stats.AggregatedStats{SucceededTasks: 1, FailedTasks: 1},
			1.0,
		},
		{
			"capped at one",
			1,
			&stats.AggregatedStats{
				SucceededTasks: 1,
				PerTaskSummaries: []stats.TaskSummary{
					{Task: "Pictures", State: stats.StateRunning, Percent: 50},
				},
			},
			1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{TaskCount: tt.taskCount})
			model.stats = tt.stats

			got := model.OverallProgress()
			if got != tt.want {
				t.Errorf("OverallProgress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModel_DropRate(t *testing.T) {
	tests := []struct {
		name    string
		read    int64
		dropped int64
		want    float64
	}{
		{"no data", 0, 0, 0},
		{"no drops", 1000, 0, 0},
		{"some drops", 1000, 10, 0.01},
		{"all dropped", 100, 100, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{TaskCount: 2})
			model.stats = &stats.AggregatedStats{
				TotalLinesRead:    tt.read,
				TotalLinesDropped: tt.dropped,
			}

			got := model.DropRate()
			if got != tt.want {
				t.Errorf("DropRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: Formatting Helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{time.Second, "00:00:01"},
		{time.Minute, "00:01:00"},
		{time.Hour, "01:00:00"},
		{2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatDuration(tt.d); got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{1500, "1.5K"},
		{1000000, "1.0M"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatNumber(tt.n); got != tt.want {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.00 KB"},
		{1000000, "1.00 MB"},
		{1000000000, "1.00 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatBytes(tt.n); got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatByteRate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "0 B/s"},
		{500, "500 B/s"},
		{5_000_000, "5.00 MB/s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatByteRate(tt.rate); got != tt.want {
				t.Errorf("formatByteRate(%v) = %q, want %q", tt.rate, got, tt.want)
			}
		})
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "0.0%"},
		{0.5, "50.0%"},
		{1.0, "100.0%"},
		{0.015, "1.5%"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatPercent(tt.value); got != tt.want {
				t.Errorf("formatPercent(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}
