package stats

import (
	"sync"
	"testing"
	"time"
)

func TestNewTaskStats(t *testing.T) {
	stats := NewTaskStats("Documents")

	if stats.Task != "Documents" {
		t.Errorf("Task = %q, want %q", stats.Task, "Documents")
	}
	if stats.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}
	if stats.State() != StatePending {
		t.Errorf("State = %v, want %v", stats.State(), StatePending)
	}
	if stats.TotalBytes() != 0 {
		t.Errorf("TotalBytes = %d, want 0", stats.TotalBytes())
	}
}

func TestTaskState_String(t *testing.T) {
	tests := []struct {
		state TaskState
		want  string
	}{
		{StatePending, "pending"},
		{StateRunning, "running"},
		{StateSucceeded, "succeeded"},
		{StateFailed, "failed"},
		{TaskState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("TaskState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestTaskStats_BytesTracking(t *testing.T) {
	stats := NewTaskStats("Documents")

	// First attempt copies 1000 bytes
	stats.OnAttemptStart()
	stats.UpdateCurrentBytes(1000)
	if stats.TotalBytes() != 1000 {
		t.Errorf("TotalBytes = %d, want 1000", stats.TotalBytes())
	}

	// Retry relaunches the tool - bytes should accumulate
	stats.OnAttemptStart()
	if stats.TotalBytes() != 1000 {
		t.Errorf("TotalBytes after restart = %d, want 1000", stats.TotalBytes())
	}

	// Second attempt copies 500 bytes
	stats.UpdateCurrentBytes(500)
	if stats.TotalBytes() != 1500 {
		t.Errorf("TotalBytes = %d, want 1500", stats.TotalBytes())
	}

	// Another retry
	stats.OnAttemptStart()
	stats.UpdateCurrentBytes(200)
	if stats.TotalBytes() != 1700 {
		t.Errorf("TotalBytes = %d, want 1700", stats.TotalBytes())
	}

	if got := stats.Attempts.Load(); got != 3 {
		t.Errorf("Attempts = %d, want 3", got)
	}
}

func TestTaskStats_Lifecycle(t *testing.T) {
	stats := NewTaskStats("Documents")

	if stats.State() != StatePending {
		t.Errorf("initial State = %v, want pending", stats.State())
	}

	stats.OnAttemptStart()
	if stats.State() != StateRunning {
		t.Errorf("State after attempt start = %v, want running", stats.State())
	}

	stats.Finish(0, true)
	if stats.State() != StateSucceeded {
		t.Errorf("State after success = %v, want succeeded", stats.State())
	}
	if stats.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", stats.ExitCode())
	}

	// Elapsed stops growing once the task finished
	e1 := stats.Elapsed()
	time.Sleep(20 * time.Millisecond)
	e2 := stats.Elapsed()
	if e1 != e2 {
		t.Errorf("Elapsed changed after Finish: %v -> %v", e1, e2)
	}
}

func TestTaskStats_FinishFailure(t *testing.T) {
	stats := NewTaskStats("Documents")

	stats.OnAttemptStart()
	stats.Finish(8, false)

	if stats.State() != StateFailed {
		t.Errorf("State = %v, want failed", stats.State())
	}
	if stats.ExitCode() != 8 {
		t.Errorf("ExitCode = %d, want 8", stats.ExitCode())
	}
}

func TestTaskStats_Progress(t *testing.T) {
	stats := NewTaskStats("Documents")

	stats.UpdatePercent(44)
	if stats.Percent() != 44 {
		t.Errorf("Percent = %d, want 44", stats.Percent())
	}

	stats.UpdateFiles(712, 1021, 1843, true)
	transferred, remaining, total := stats.Files()
	if transferred != 712 {
		t.Errorf("transferred = %d, want 712", transferred)
	}
	if remaining != 1021 {
		t.Errorf("remaining = %d, want 1021", remaining)
	}
	if total != 1843 {
		t.Errorf("total = %d, want 1843", total)
	}
	if !stats.IsScanning() {
		t.Error("IsScanning = false, want true")
	}

	stats.UpdateFiles(1668, 0, 1668, false)
	if stats.IsScanning() {
		t.Error("IsScanning = true after scan complete, want false")
	}
}

func TestTaskStats_RateTracking(t *testing.T) {
	stats := NewTaskStats("Documents")

	stats.UpdateRate(100e6)
	if stats.Rate() != 100e6 {
		t.Errorf("Rate = %v, want 100e6", stats.Rate())
	}
	if stats.PeakRate() != 100e6 {
		t.Errorf("PeakRate = %v, want 100e6", stats.PeakRate())
	}

	// Rate drops; peak stays
	stats.UpdateRate(50e6)
	if stats.Rate() != 50e6 {
		t.Errorf("Rate = %v, want 50e6", stats.Rate())
	}
	if stats.PeakRate() != 100e6 {
		t.Errorf("PeakRate = %v, want 100e6", stats.PeakRate())
	}

	// New peak
	stats.UpdateRate(200e6)
	if stats.PeakRate() != 200e6 {
		t.Errorf("PeakRate = %v, want 200e6", stats.PeakRate())
	}
}

func TestTaskStats_StallDetection(t *testing.T) {
	stats := NewTaskStats("Documents")

	// Pending tasks are never stalled
	if stats.IsStalled() {
		t.Error("pending task should not be stalled")
	}

	// Running with no progress reports yet (robocopy /NP) - not stalled
	stats.OnAttemptStart()
	if stats.IsStalled() {
		t.Error("running task without progress reports should not be stalled")
	}

	// Fresh progress - not stalled
	stats.UpdateRate(1e6)
	if stats.IsStalled() {
		t.Error("should not be stalled right after a progress update")
	}

	// Simulate the progress stream going quiet
	stats.lastProgressAt.Store(time.Now().Add(-StallDuration - time.Second))
	if !stats.IsStalled() {
		t.Error("should be stalled after the progress stream went quiet")
	}

	// Finished tasks are never stalled
	stats.Finish(0, true)
	if stats.IsStalled() {
		t.Error("finished task should not be stalled")
	}
}

func TestTaskStats_ToolErrors(t *testing.T) {
	stats := NewTaskStats("Documents")

	stats.RecordToolError()
	stats.RecordToolError()

	if got := stats.ToolErrors.Load(); got != 2 {
		t.Errorf("ToolErrors = %d, want 2", got)
	}
}

func TestTaskStats_PipelineHealth(t *testing.T) {
	stats := NewTaskStats("Documents")

	// No drops initially
	if stats.CurrentDropRate() != 0 {
		t.Errorf("CurrentDropRate = %v, want 0", stats.CurrentDropRate())
	}

	// Record some dropped lines
	stats.RecordDroppedLines(100, 5, 200, 10)

	// Drop rate should be (5+10)/(100+200) = 15/300 = 0.05
	expectedRate := 15.0 / 300.0
	if stats.CurrentDropRate() != expectedRate {
		t.Errorf("CurrentDropRate = %v, want %v", stats.CurrentDropRate(), expectedRate)
	}

	// Should be degraded at 1% threshold
	if !stats.MetricsDegraded(0.01) {
		t.Error("should be degraded at 1% threshold")
	}

	// Should not be degraded at 10% threshold
	if stats.MetricsDegraded(0.10) {
		t.Error("should not be degraded at 10% threshold")
	}

	// Peak drop rate should be recorded
	if stats.GetPeakDropRate() != expectedRate {
		t.Errorf("PeakDropRate = %v, want %v", stats.GetPeakDropRate(), expectedRate)
	}
}

func TestTaskStats_GetSummary(t *testing.T) {
	stats := NewTaskStats("Pictures")

	stats.OnAttemptStart()
	stats.UpdateCurrentBytes(1000)
	stats.UpdatePercent(75)
	stats.UpdateFiles(10, 5, 15, false)
	stats.UpdateRate(2e6)
	stats.RecordToolError()
	stats.Finish(0, true)

	summary := stats.GetSummary()

	if summary.Task != "Pictures" {
		t.Errorf("Summary.Task = %q, want %q", summary.Task, "Pictures")
	}
	if summary.State != StateSucceeded {
		t.Errorf("Summary.State = %v, want succeeded", summary.State)
	}
	if summary.TotalBytes != 1000 {
		t.Errorf("Summary.TotalBytes = %d, want 1000", summary.TotalBytes)
	}
	if summary.Percent != 75 {
		t.Errorf("Summary.Percent = %d, want 75", summary.Percent)
	}
	if summary.FilesTransferred != 10 {
		t.Errorf("Summary.FilesTransferred = %d, want 10", summary.FilesTransferred)
	}
	if summary.Rate != 2e6 {
		t.Errorf("Summary.Rate = %v, want 2e6", summary.Rate)
	}
	if summary.Attempts != 1 {
		t.Errorf("Summary.Attempts = %d, want 1", summary.Attempts)
	}
	if summary.ToolErrors != 1 {
		t.Errorf("Summary.ToolErrors = %d, want 1", summary.ToolErrors)
	}
	if summary.ExitCode != 0 {
		t.Errorf("Summary.ExitCode = %d, want 0", summary.ExitCode)
	}
}

func TestTaskStats_ThreadSafety(t *testing.T) {
	stats := NewTaskStats("Documents")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.UpdateCurrentBytes(int64(j * 100))
				stats.UpdateRate(float64(j) * 1e5)
				stats.UpdateFiles(int64(j), int64(100-j), 100, false)
				stats.UpdatePercent(j)
				stats.RecordToolError()
				stats.RecordDroppedLines(int64(j), 0, int64(j), 0)
				_ = stats.GetSummary()
			}
		}()
	}

	wg.Wait()

	// Just verify no panics and counts are reasonable
	if got := stats.ToolErrors.Load(); got != 1000 {
		t.Errorf("ToolErrors = %d, want 1000", got)
	}
}

func BenchmarkTaskStats_UpdateRate(b *testing.B) {
	stats := NewTaskStats("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stats.UpdateRate(float64(i))
	}
}

func BenchmarkTaskStats_GetSummary(b *testing.B) {
	stats := NewTaskStats("bench")

	stats.OnAttemptStart()
	stats.UpdateCurrentBytes(1000000)
	stats.UpdateFiles(500, 100, 600, false)
	stats.UpdateRate(1e8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = stats.GetSummary()
	}
}
