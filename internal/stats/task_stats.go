// Package stats provides per-task and run-level statistics for folder
// mirroring.
//
// This file implements TaskStats which tracks metrics for a single
// backup task:
// - Bytes copied (handles tool restart resets across retries)
// - File counters from progress output (transferred, remaining, total)
// - Transfer rate with peak tracking
// - Tool errors and retry attempts
// - Pipeline health (dropped lines)
package stats

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// StallDuration is how long the progress stream must be quiet
	// before a running task is considered stalled
	StallDuration = 10 * time.Second
)

// TaskState is the lifecycle state of a backup task.
type TaskState int32

const (
	StatePending TaskState = iota
	StateRunning
	StateSucceeded
	StateFailed
)

// String returns the state name for logs and the dashboard.
func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskStats holds per-task statistics.
//
// Thread-safe: all fields are atomics; writers (parser callbacks,
// runner) and readers (TUI, aggregator) never block each other.
type TaskStats struct {
	Task      string
	StartTime time.Time

	state atomic.Int32

	// Bytes tracking - handles tool restart resets.
	// When a retry relaunches the tool, its byte counter restarts at 0.
	// Cumulative volume for the task is previous attempts plus the
	// current attempt.
	bytesFromPreviousAttempts atomic.Int64
	currentAttemptBytes       atomic.Int64

	// Progress counters from the tool's whole-transfer reports
	percent          atomic.Int64
	filesTransferred atomic.Int64
	filesRemaining   atomic.Int64
	filesTotal       atomic.Int64
	scanning         atomic.Bool

	// Transfer rate (bytes/sec)
	rate     atomic.Uint64 // math.Float64bits
	peakRate atomic.Uint64 // math.Float64bits

	// Attempts counts tool launches for this task (1 + retries)
	Attempts atomic.Int64

	// ToolErrors counts classified error lines on the tool's stderr
	ToolErrors atomic.Int64

	// Exit code of the final attempt; meaningful once the task finished
	exitCode atomic.Int64

	// lastProgressAt is when the last progress update arrived.
	// Stays nil for tools that report no progress (robocopy /NP).
	lastProgressAt atomic.Value // time.Time

	endTime atomic.Value // time.Time

	// Pipeline health (lossy-by-design metrics)
	ProgressLinesDropped atomic.Int64
	StderrLinesDropped   atomic.Int64
	ProgressLinesRead    atomic.Int64
	StderrLinesRead      atomic.Int64
	peakDropRate         atomic.Uint64 // math.Float64bits
}

// NewTaskStats creates stats for a backup task.
func NewTaskStats(task string) *TaskStats {
	return &TaskStats{
		Task:      task,
		StartTime: time.Now(),
	}
}

// --- Lifecycle ---

// State returns the current task state.
func (s *TaskStats) State() TaskState {
	return TaskState(s.state.Load())
}

// SetState sets the task state.
func (s *TaskStats) SetState(state TaskState) {
	s.state.Store(int32(state))
}

// OnAttemptStart must be called when the tool process starts or
// restarts. Accumulates bytes from the previous attempt before the new
// process resets its counter.
func (s *TaskStats) OnAttemptStart() {
	prev := s.currentAttemptBytes.Swap(0)
	s.bytesFromPreviousAttempts.Add(prev)
	s.Attempts.Add(1)
	s.state.Store(int32(StateRunning))
}

// Finish records the terminal state and exit code for the task.
func (s *TaskStats) Finish(exitCode int, success bool) {
	s.exitCode.Store(int64(exitCode))
	s.endTime.Store(time.Now())
	if success {
		s.state.Store(int32(StateSucceeded))
	} else {
		s.state.Store(int32(StateFailed))
	}
}

// ExitCode returns the recorded exit code. Only meaningful once the
// task reached a terminal state.
func (s *TaskStats) ExitCode() int {
	return int(s.exitCode.Load())
}

// Elapsed returns how long the task ran (or has been running).
func (s *TaskStats) Elapsed() time.Duration {
	if end, ok := s.endTime.Load().(time.Time); ok {
		return end.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// --- Bytes Tracking (handles tool restarts) ---

// UpdateCurrentBytes updates the byte counter from the current
// attempt's progress output.
func (s *TaskStats) UpdateCurrentBytes(n int64) {
	s.currentAttemptBytes.Store(n)
	s.touchProgress()
}

// TotalBytes returns cumulative bytes across all attempts.
func (s *TaskStats) TotalBytes() int64 {
	return s.bytesFromPreviousAttempts.Load() + s.currentAttemptBytes.Load()
}

// --- Progress Counters ---

// UpdatePercent records the whole-transfer percentage (0-100).
func (s *TaskStats) UpdatePercent(p int) {
	s.percent.Store(int64(p))
	s.touchProgress()
}

// Percent returns the last reported whole-transfer percentage.
func (s *TaskStats) Percent() int {
	return int(s.percent.Load())
}

// UpdateFiles records the file counters from a progress update.
func (s *TaskStats) UpdateFiles(transferred, remaining, total int64, scanning bool) {
	s.filesTransferred.Store(transferred)
	s.filesRemaining.Store(remaining)
	s.filesTotal.Store(total)
	s.scanning.Store(scanning)
	s.touchProgress()
}

// Files returns the last reported file counters.
func (s *TaskStats) Files() (transferred, remaining, total int64) {
	return s.filesTransferred.Load(), s.filesRemaining.Load(), s.filesTotal.Load()
}

// IsScanning reports whether the tool is still building its file list.
func (s *TaskStats) IsScanning() bool {
	return s.scanning.Load()
}

// --- Transfer Rate ---

// UpdateRate records the current transfer rate in bytes per second and
// tracks the peak using a CAS loop.
func (s *TaskStats) UpdateRate(bytesPerSec float64) {
	s.rate.Store(math.Float64bits(bytesPerSec))
	s.touchProgress()

	for {
		oldBits := s.peakRate.Load()
		oldRate := math.Float64frombits(oldBits)
		if bytesPerSec <= oldRate {
			break
		}
		if s.peakRate.CompareAndSwap(oldBits, math.Float64bits(bytesPerSec)) {
			break
		}
		// Retry on CAS failure (another goroutine updated it)
	}
}

// Rate returns the most recent transfer rate in bytes per second.
func (s *TaskStats) Rate() float64 {
	return math.Float64frombits(s.rate.Load())
}

// PeakRate returns the highest transfer rate observed.
func (s *TaskStats) PeakRate() float64 {
	return math.Float64frombits(s.peakRate.Load())
}

// --- Error Recording ---

// RecordToolError records a classified error line from the tool.
func (s *TaskStats) RecordToolError() {
	s.ToolErrors.Add(1)
}

// --- Stall Detection ---

// touchProgress marks that a progress update arrived now.
func (s *TaskStats) touchProgress() {
	s.lastProgressAt.Store(time.Now())
}

// IsStalled returns true if a running task's progress stream went
// quiet. Tasks that never reported progress (robocopy with /NP) are
// never considered stalled.
func (s *TaskStats) IsStalled() bool {
	if TaskState(s.state.Load()) != StateRunning {
		return false
	}
	last, ok := s.lastProgressAt.Load().(time.Time)
	if !ok || last.IsZero() {
		return false
	}
	return time.Since(last) > StallDuration
}

// --- Pipeline Health ---

// RecordDroppedLines records lines dropped by the parsing pipelines.
// Also tracks peak drop rate for correlation with load spikes.
func (s *TaskStats) RecordDroppedLines(progressRead, progressDropped, stderrRead, stderrDropped int64) {
	s.ProgressLinesRead.Store(progressRead)
	s.ProgressLinesDropped.Store(progressDropped)
	s.StderrLinesRead.Store(stderrRead)
	s.StderrLinesDropped.Store(stderrDropped)

	currentRate := s.CurrentDropRate()
	for {
		oldBits := s.peakDropRate.Load()
		oldRate := math.Float64frombits(oldBits)
		if currentRate <= oldRate {
			break
		}
		if s.peakDropRate.CompareAndSwap(oldBits, math.Float64bits(currentRate)) {
			break
		}
		// Retry on CAS failure (another goroutine updated it)
	}
}

// CurrentDropRate returns current drop rate (0.0 to 1.0).
func (s *TaskStats) CurrentDropRate() float64 {
	totalRead := s.ProgressLinesRead.Load() + s.StderrLinesRead.Load()
	totalDropped := s.ProgressLinesDropped.Load() + s.StderrLinesDropped.Load()
	if totalRead == 0 {
		return 0
	}
	return float64(totalDropped) / float64(totalRead)
}

// MetricsDegraded returns true if drop rate exceeds threshold.
// threshold is typically 0.01 (1%) but can be configured.
func (s *TaskStats) MetricsDegraded(threshold float64) bool {
	return s.CurrentDropRate() > threshold
}

// GetPeakDropRate returns the highest drop rate observed.
func (s *TaskStats) GetPeakDropRate() float64 {
	return math.Float64frombits(s.peakDropRate.Load())
}

// --- Summary ---

// TaskSummary is a snapshot of one task's key metrics.
type TaskSummary struct {
	Task             string
	State            TaskState
	Elapsed          time.Duration
	TotalBytes       int64
	Percent          int
	Rate             float64
	PeakRate         float64
	FilesTransferred int64
	FilesRemaining   int64
	FilesTotal       int64
	Scanning         bool
	Attempts         int64
	ToolErrors       int64
	ExitCode         int
	IsStalled        bool
	DropRate         float64
	PeakDropRate     float64
}

// GetSummary returns a snapshot of all key metrics.
func (s *TaskStats) GetSummary() TaskSummary {
	transferred, remaining, total := s.Files()

	return TaskSummary{
		Task:             s.Task,
		State:            s.State(),
		Elapsed:          s.Elapsed(),
		TotalBytes:       s.TotalBytes(),
		Percent:          s.Percent(),
		Rate:             s.Rate(),
		PeakRate:         s.PeakRate(),
		FilesTransferred: transferred,
		FilesRemaining:   remaining,
		FilesTotal:       total,
		Scanning:         s.IsScanning(),
		Attempts:         s.Attempts.Load(),
		ToolErrors:       s.ToolErrors.Load(),
		ExitCode:         s.ExitCode(),
		IsStalled:        s.IsStalled(),
		DropRate:         s.CurrentDropRate(),
		PeakDropRate:     s.GetPeakDropRate(),
	}
}
