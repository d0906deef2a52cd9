package stats

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one minute", time.Minute, "00:01:00"},
		{"one hour", time.Hour, "01:00:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"24 hours", 24 * time.Hour, "24:00:00"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
		{"59 seconds", 59 * time.Second, "00:00:59"},
		{"59 minutes", 59 * time.Minute, "00:59:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0"},
		{"small", 123, "123"},
		{"999", 999, "999"},
		{"1K", 1000, "1.0K"},
		{"1.5K", 1500, "1.5K"},
		{"10K", 10000, "10.0K"},
		{"999K", 999000, "999.0K"},
		{"1M", 1000000, "1.0M"},
		{"1.5M", 1500000, "1.5M"},
		{"10M", 10000000, "10.0M"},
		{"negative", -100, "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.n); got != tt.want {
				t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"small", 123, "123 B"},
		{"999 bytes", 999, "999 B"},
		{"1 KB", 1000, "1.00 KB"},
		{"1.5 KB", 1500, "1.50 KB"},
		{"10 KB", 10000, "10.00 KB"},
		{"1 MB", 1000000, "1.00 MB"},
		{"1.5 MB", 1500000, "1.50 MB"},
		{"1 GB", 1000000000, "1.00 GB"},
		{"1.5 GB", 1500000000, "1.50 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBytes(tt.n); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "0 ms"},
		{"1 ms", time.Millisecond, "1 ms"},
		{"100 ms", 100 * time.Millisecond, "100 ms"},
		{"1 second", time.Second, "1000 ms"},
		{"sub-ms", 500 * time.Microsecond, "500 µs"},
		{"1 us", time.Microsecond, "1 µs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMs(tt.duration); got != tt.want {
				t.Errorf("FormatMs(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"zero", 0, "0.00/s"},
		{"small", 0.5, "0.50/s"},
		{"one", 1.0, "1.0/s"},
		{"ten", 10.0, "10.0/s"},
		{"hundred", 100.0, "100.0/s"},
		{"thousand", 1000.0, "1.0K/s"},
		{"1.5K", 1500.0, "1.5K/s"},
		{"10K", 10000.0, "10.0K/s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRate(tt.rate); got != tt.want {
				t.Errorf("FormatRate(%v) = %q, want %q", tt.rate, got, tt.want)
			}
		})
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, ""}, // robocopy: files copied, still success
		{2, ""},
		{24, "(vanished)"},
		{126, "(not executable)"},
		{127, "(not found)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{-1, ""},
		{255, ""},
	}

	for _, tt := range tests {
		if got := exitCodeLabel(tt.code); got != tt.want {
			t.Errorf("exitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestTruncateName(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want string
	}{
		{"Documents", 20, "Documents"},
		{"ExactlyTwentyChars!!", 20, "ExactlyTwentyChars!!"},
		{"VeryLongTaskNameThatKeepsGoing", 20, "VeryLongTaskNameT..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		if got := truncateName(tt.name, tt.max); got != tt.want {
			t.Errorf("truncateName(%q, %d) = %q, want %q", tt.name, tt.max, got, tt.want)
		}
	}
}

// =============================================================================
// Tests: FormatExitSummary
// =============================================================================

func TestFormatExitSummary_NilStats(t *testing.T) {
	cfg := SummaryConfig{
		TargetTasks: 5,
		Duration:    5 * time.Minute,
		MetricsAddr: "localhost:9090",
	}

	result := FormatExitSummary(nil, cfg)

	// Should show basic summary with stats disabled message
	if !strings.Contains(result, "go-folder-mirror Run Summary") {
		t.Error("missing title")
	}
	if !strings.Contains(result, "Stats collection was disabled") {
		t.Error("missing disabled message")
	}
	if !strings.Contains(result, "Tasks:                  5") {
		t.Error("missing task count")
	}
	if !strings.Contains(result, "00:05:00") {
		t.Error("missing duration")
	}
}

func TestFormatExitSummary_BasicStats(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:            3,
		SucceededTasks:        3,
		TotalBytes:            100000000, // 100 MB
		ThroughputBytesPerSec: 1000000,   // 1 MB/s
		TotalFilesTransferred: 1500,
		TotalFilesFound:       2000,
	}

	cfg := SummaryConfig{
		TargetTasks: 3,
		Duration:    10 * time.Minute,
		MetricsAddr: "localhost:9090",
	}

	result := FormatExitSummary(stats, cfg)

	// Check for key sections
	if !strings.Contains(result, "go-folder-mirror Run Summary") {
		t.Error("missing title")
	}
	if !strings.Contains(result, "Transfer Statistics") {
		t.Error("missing Transfer Statistics section")
	}
	if !strings.Contains(result, "3 configured, 3 succeeded, 0 failed") {
		t.Error("missing task counts")
	}
	if !strings.Contains(result, "100.00 MB") {
		t.Error("missing total bytes")
	}
	if !strings.Contains(result, "1.00 MB/s average") {
		t.Error("missing average rate")
	}
	if !strings.Contains(result, "Files Transferred:    1.5K") {
		t.Error("missing files transferred")
	}
	if !strings.Contains(result, "Files Considered:     2.0K") {
		t.Error("missing files considered")
	}
	if !strings.Contains(result, "Metrics endpoint was: http://localhost:9090/metrics") {
		t.Error("missing metrics endpoint")
	}
}

func TestFormatExitSummary_WithRatePercentiles(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:     2,
		SucceededTasks: 2,
		RateP50:        50e6,
		RateP95:        95e6,
		RateP99:        99e6,
		RateMax:        100e6,
	}

	cfg := SummaryConfig{
		TargetTasks: 2,
		Duration:    time.Minute,
	}

	result := FormatExitSummary(stats, cfg)

	if !strings.Contains(result, "Transfer Rate Percentiles") {
		t.Error("missing percentiles section")
	}
	if !strings.Contains(result, "P50 (median)") {
		t.Error("missing P50")
	}
	if !strings.Contains(result, "50.00 MB/s") {
		t.Error("missing P50 value")
	}
	if !strings.Contains(result, "Max:") {
		t.Error("missing max rate")
	}
	if !strings.Contains(result, "100.00 MB/s") {
		t.Error("missing max value")
	}
}

func TestFormatExitSummary_WithTaskTable(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:     2,
		SucceededTasks: 1,
		FailedTasks:    1,
		PerTaskSummaries: []TaskSummary{
			{
				Task:             "Documents",
				State:            StateSucceeded,
				TotalBytes:       1500000,
				FilesTransferred: 42,
				Attempts:         1,
				Elapsed:          30 * time.Second,
			},
			{
				Task:             "VeryLongTaskNameThatKeepsGoing",
				State:            StateFailed,
				TotalBytes:       0,
				FilesTransferred: 0,
				Attempts:         3,
				Elapsed:          2 * time.Minute,
				ExitCode:         8,
			},
		},
	}

	cfg := SummaryConfig{
		TargetTasks:      2,
		Duration:         3 * time.Minute,
		ShowPerTaskStats: true,
	}

	result := FormatExitSummary(stats, cfg)

	if !strings.Contains(result, "Task Results") {
		t.Error("missing Task Results section")
	}
	if !strings.Contains(result, "Documents") {
		t.Error("missing task name")
	}
	if !strings.Contains(result, "succeeded") {
		t.Error("missing succeeded state")
	}
	if !strings.Contains(result, "failed") {
		t.Error("missing failed state")
	}
	// Long names are truncated to fit the table
	if !strings.Contains(result, "VeryLongTaskNameT...") {
		t.Error("missing truncated task name")
	}
	if strings.Contains(result, "VeryLongTaskNameThatKeepsGoing") {
		t.Error("long task name should have been truncated")
	}
}

func TestFormatExitSummary_TaskTableDisabled(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:     1,
		SucceededTasks: 1,
		PerTaskSummaries: []TaskSummary{
			{Task: "Documents", State: StateSucceeded},
		},
	}

	cfg := SummaryConfig{
		TargetTasks: 1,
		Duration:    time.Minute,
	}

	result := FormatExitSummary(stats, cfg)

	if strings.Contains(result, "Task Results") {
		t.Error("Task Results section should be omitted when disabled")
	}
}

func TestFormatExitSummary_WithDegradation(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:        4,
		MetricsDegraded:   true,
		TotalLinesDropped: 5000,
		TasksWithDrops:    2,
		PeakDropRate:      0.05, // 5%
	}

	cfg := SummaryConfig{
		TargetTasks: 4,
		Duration:    time.Minute,
	}

	result := FormatExitSummary(stats, cfg)

	if !strings.Contains(result, "METRICS DEGRADED") {
		t.Error("missing degradation warning")
	}
	if !strings.Contains(result, "5.0K") {
		t.Error("missing lines dropped count")
	}
	if !strings.Contains(result, "2 tasks") {
		t.Error("missing tasks with drops")
	}
	if !strings.Contains(result, "--stats-buffer") {
		t.Error("missing buffer suggestion")
	}
}

func TestFormatExitSummary_WithErrors(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:      3,
		TotalToolErrors: 3,
		TotalRetries:    2,
		StalledTasks:    1,
	}

	cfg := SummaryConfig{
		TargetTasks: 3,
		Duration:    time.Minute,
	}

	result := FormatExitSummary(stats, cfg)

	if !strings.Contains(result, "Errors") {
		t.Error("missing Errors section")
	}
	if !strings.Contains(result, "Tool Error Lines:     3") {
		t.Error("missing tool error lines")
	}
	if !strings.Contains(result, "Retries:              2") {
		t.Error("missing retries")
	}
	if !strings.Contains(result, "Stalled Tasks:        1") {
		t.Error("missing stalled tasks")
	}
}

func TestFormatExitSummary_WithDurations(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:     5,
		SucceededTasks: 5,
	}

	cfg := SummaryConfig{
		TargetTasks: 5,
		Duration:    time.Minute,
		DurationP50: 30 * time.Second,
		DurationP95: 55 * time.Second,
		DurationP99: 58 * time.Second,
	}

	result := FormatExitSummary(stats, cfg)

	if !strings.Contains(result, "Task Duration Distribution") {
		t.Error("missing duration section")
	}
	if !strings.Contains(result, "P50 (median):") {
		t.Error("missing P50 duration")
	}
	if !strings.Contains(result, "00:00:30") {
		t.Error("missing P50 value")
	}
}

func TestFormatExitSummary_WithExitCodes(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:     5,
		SucceededTasks: 4,
		FailedTasks:    1,
	}

	cfg := SummaryConfig{
		TargetTasks: 5,
		Duration:    time.Minute,
		ExitCodes: map[int]int{
			0:   3,
			1:   1,
			127: 1,
		},
	}

	result := FormatExitSummary(stats, cfg)

	if !strings.Contains(result, "Tool Exit Codes") {
		t.Error("missing exit codes section")
	}
	if !strings.Contains(result, "(clean)") {
		t.Error("missing clean exit label")
	}
	if !strings.Contains(result, "(not found)") {
		t.Error("missing not found label")
	}
	// robocopy exit 1 means files were copied, so it gets no error label
	if strings.Contains(result, "(error)") {
		t.Error("exit code 1 should not be labeled as an error")
	}
}

// =============================================================================
// Tests: renderFootnotes
// =============================================================================

func TestRenderFootnotes_Empty(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks: 10,
	}

	result := renderFootnotes(stats)

	if result != "" {
		t.Errorf("expected empty footnotes, got %q", result)
	}
}

func TestRenderFootnotes_WithDrops(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:   10,
		PeakDropRate: 0.05,
	}

	result := renderFootnotes(stats)

	if !strings.Contains(result, "[1] Peak metrics drop rate: 5.0%") {
		t.Error("missing drop rate footnote")
	}
}

func TestRenderFootnotes_RunningTasks(t *testing.T) {
	stats := &AggregatedStats{
		TotalTasks:   10,
		RunningTasks: 2,
		PeakDropRate: 0.05,
	}

	result := renderFootnotes(stats)

	if !strings.Contains(result, "[1]") {
		t.Error("missing footnote 1")
	}
	if !strings.Contains(result, "[2] 2 task(s) were still running") {
		t.Error("missing running tasks footnote")
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkFormatExitSummary(b *testing.B) {
	stats := &AggregatedStats{
		TotalTasks:            10,
		SucceededTasks:        9,
		FailedTasks:           1,
		TotalBytes:            1000000000,
		ThroughputBytesPerSec: 10000000,
		TotalFilesTransferred: 15000,
		TotalFilesFound:       20000,
		RateP50:               50e6,
		RateP95:               95e6,
		RateP99:               99e6,
		RateMax:               100e6,
		TotalToolErrors:       5,
		TotalRetries:          3,
		PerTaskSummaries: []TaskSummary{
			{Task: "Documents", State: StateSucceeded, TotalBytes: 100000000, FilesTransferred: 1500, Attempts: 1, Elapsed: 30 * time.Second},
			{Task: "Pictures", State: StateSucceeded, TotalBytes: 500000000, FilesTransferred: 8000, Attempts: 1, Elapsed: 2 * time.Minute},
			{Task: "Videos", State: StateFailed, TotalBytes: 400000000, FilesTransferred: 5500, Attempts: 3, Elapsed: 5 * time.Minute, ExitCode: 8},
		},
	}

	cfg := SummaryConfig{
		TargetTasks:      10,
		Duration:         10 * time.Minute,
		MetricsAddr:      "localhost:9090",
		ShowPerTaskStats: true,
		ExitCodes: map[int]int{
			0: 8,
			1: 1,
			8: 1,
		},
		DurationP50: 30 * time.Second,
		DurationP95: 4 * time.Minute,
		DurationP99: 5 * time.Minute,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FormatExitSummary(stats, cfg)
	}
}

func BenchmarkFormatNumber(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = FormatNumber(1234567)
	}
}

func BenchmarkFormatBytes(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = FormatBytes(1234567890)
	}
}
