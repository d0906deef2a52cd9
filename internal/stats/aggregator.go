// Package stats provides per-task and run-level statistics for folder
// mirroring.
//
// This file implements StatsAggregator which aggregates metrics across
// all backup tasks:
// - Task counts by state
// - Bytes copied and throughput (whole-run and instantaneous)
// - Transfer-rate percentiles (T-Digest)
// - Pipeline health (dropped lines)
// - Tool errors and retry attempts
package stats

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
)

// AggregatedStats holds metrics across all tasks.
//
// This is a snapshot - values are computed at the time of Aggregate() call.
type AggregatedStats struct {
	// Timestamp when this snapshot was taken
	Timestamp time.Time

	// Task counts
	TotalTasks     int
	PendingTasks   int
	RunningTasks   int
	SucceededTasks int
	FailedTasks    int
	StalledTasks   int

	// Transfer totals
	TotalBytes            int64
	TotalFilesTransferred int64
	TotalFilesFound       int64

	// Rates (per second) - calculated from start time
	ThroughputBytesPerSec float64

	// Instantaneous rate (per second) - calculated from last snapshot
	InstantThroughputRate float64

	// Transfer-rate percentiles across all recorded samples
	RateP50 float64
	RateP95 float64
	RateP99 float64
	RateMax float64

	// Errors and retries
	TotalToolErrors int64
	TotalAttempts   int64
	TotalRetries    int64 // attempts beyond the first, per task

	// Pipeline health (lossy-by-design)
	TotalLinesDropped int64
	TotalLinesRead    int64
	TasksWithDrops    int
	MetricsDegraded   bool    // Drop rate > threshold (default 1%)
	PeakDropRate      float64 // Highest observed drop rate

	// Task duration distribution
	MinTaskDuration time.Duration
	MaxTaskDuration time.Duration
	AvgTaskDuration time.Duration

	// Per-task summaries in configuration order (for the dashboard)
	PerTaskSummaries []TaskSummary
}

// StatsAggregator aggregates stats from all backup tasks.
//
// Thread-safe: all methods can be called concurrently.
type StatsAggregator struct {
	mu        sync.RWMutex
	tasks     map[string]*TaskStats
	order     []string // configuration order for stable display
	startTime time.Time

	// For rate calculations (using atomic.Value for lock-free access)
	prevSnapshot atomic.Value // *rateSnapshot

	dropThreshold float64
	peakDropRate  atomic.Uint64 // math.Float64bits

	// Transfer-rate percentile tracking (T-Digest is not thread-safe)
	digestMu    sync.Mutex
	rateDigest  *tdigest.TDigest
	rateSamples int64
	rateMax     float64
}

// rateSnapshot holds values for calculating instantaneous rates
type rateSnapshot struct {
	timestamp time.Time
	bytes     int64
}

// NewStatsAggregator creates a new aggregator.
func NewStatsAggregator(dropThreshold float64) *StatsAggregator {
	if dropThreshold <= 0 {
		dropThreshold = 0.01 // Default 1%
	}

	agg := &StatsAggregator{
		tasks:         make(map[string]*TaskStats),
		startTime:     time.Now(),
		dropThreshold: dropThreshold,
		rateDigest:    tdigest.NewWithCompression(100),
	}
	agg.prevSnapshot.Store(&rateSnapshot{
		timestamp: time.Now(),
	})
	return agg
}

// AddTask registers a task for aggregation. Tasks show up in summaries
// in registration order.
func (a *StatsAggregator) AddTask(stats *TaskStats) {
	a.mu.Lock()
	if _, exists := a.tasks[stats.Task]; !exists {
		a.order = append(a.order, stats.Task)
	}
	a.tasks[stats.Task] = stats
	a.mu.Unlock()
}

// GetTask returns the TaskStats for a specific task, or nil.
func (a *StatsAggregator) GetTask(task string) *TaskStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tasks[task]
}

// TaskCount returns the number of registered tasks.
func (a *StatsAggregator) TaskCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tasks)
}

// RecordRateSample feeds one transfer-rate observation (bytes/sec)
// into the percentile digest.
func (a *StatsAggregator) RecordRateSample(bytesPerSec float64) {
	if bytesPerSec <= 0 {
		return
	}

	a.digestMu.Lock()
	a.rateDigest.Add(bytesPerSec, 1)
	a.rateSamples++
	if bytesPerSec > a.rateMax {
		a.rateMax = bytesPerSec
	}
	a.digestMu.Unlock()
}

// RatePercentiles returns the p50/p95/p99 transfer rates observed so
// far, or zeros before the first sample.
func (a *StatsAggregator) RatePercentiles() (p50, p95, p99 float64) {
	a.digestMu.Lock()
	defer a.digestMu.Unlock()
	if a.rateSamples == 0 {
		return 0, 0, 0
	}
	return a.rateDigest.Quantile(0.50),
		a.rateDigest.Quantile(0.95),
		a.rateDigest.Quantile(0.99)
}

// Aggregate computes aggregated statistics across all tasks.
//
// This creates a snapshot of current metrics. The returned struct is
// safe to use after the call returns.
func (a *StatsAggregator) Aggregate() *AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := time.Now()
	elapsed := now.Sub(a.startTime).Seconds()

	prevSnapshotPtr := a.prevSnapshot.Load()
	var prevSnapshot *rateSnapshot
	if prevSnapshotPtr != nil {
		prevSnapshot = prevSnapshotPtr.(*rateSnapshot)
	}

	result := &AggregatedStats{
		Timestamp:        now,
		TotalTasks:       len(a.tasks),
		PerTaskSummaries: make([]TaskSummary, 0, len(a.tasks)),
	}

	var totalDuration time.Duration
	var finishedTasks int

	for _, name := range a.order {
		t := a.tasks[name]

		switch t.State() {
		case StatePending:
			result.PendingTasks++
		case StateRunning:
			result.RunningTasks++
		case StateSucceeded:
			result.SucceededTasks++
		case StateFailed:
			result.FailedTasks++
		}

		if t.IsStalled() {
			result.StalledTasks++
		}

		result.TotalBytes += t.TotalBytes()
		transferred, _, total := t.Files()
		result.TotalFilesTransferred += transferred
		result.TotalFilesFound += total

		result.TotalToolErrors += t.ToolErrors.Load()
		attempts := t.Attempts.Load()
		result.TotalAttempts += attempts
		if attempts > 1 {
			result.TotalRetries += attempts - 1
		}

		// Pipeline health
		progressRead := t.ProgressLinesRead.Load()
		progressDropped := t.ProgressLinesDropped.Load()
		stderrRead := t.StderrLinesRead.Load()
		stderrDropped := t.StderrLinesDropped.Load()

		result.TotalLinesRead += progressRead + stderrRead
		result.TotalLinesDropped += progressDropped + stderrDropped

		if progressDropped > 0 || stderrDropped > 0 {
			result.TasksWithDrops++
		}

		if peakDrop := t.GetPeakDropRate(); peakDrop > result.PeakDropRate {
			result.PeakDropRate = peakDrop
		}

		// Duration distribution over finished tasks
		if state := t.State(); state == StateSucceeded || state == StateFailed {
			d := t.Elapsed()
			totalDuration += d
			finishedTasks++
			if result.MinTaskDuration == 0 || d < result.MinTaskDuration {
				result.MinTaskDuration = d
			}
			if d > result.MaxTaskDuration {
				result.MaxTaskDuration = d
			}
		}

		result.PerTaskSummaries = append(result.PerTaskSummaries, t.GetSummary())
	}

	// Whole-run throughput
	if elapsed > 0 {
		result.ThroughputBytesPerSec = float64(result.TotalBytes) / elapsed
	}

	// Instantaneous throughput from previous snapshot
	if prevSnapshot != nil {
		snapElapsed := now.Sub(prevSnapshot.timestamp).Seconds()
		if snapElapsed > 0 {
			result.InstantThroughputRate = float64(result.TotalBytes-prevSnapshot.bytes) / snapElapsed
		}
	}

	// Rate percentiles
	result.RateP50, result.RateP95, result.RateP99 = a.RatePercentiles()
	a.digestMu.Lock()
	result.RateMax = a.rateMax
	a.digestMu.Unlock()

	// Average task duration
	if finishedTasks > 0 {
		result.AvgTaskDuration = totalDuration / time.Duration(finishedTasks)
	}

	// Pipeline health check
	if result.TotalLinesRead > 0 {
		dropRate := float64(result.TotalLinesDropped) / float64(result.TotalLinesRead)
		result.MetricsDegraded = dropRate > a.dropThreshold
	}

	// Update peak drop rate using CAS loop for lock-free max operation
	currentRate := result.PeakDropRate
	for {
		oldBits := a.peakDropRate.Load()
		oldRate := math.Float64frombits(oldBits)
		if currentRate <= oldRate {
			break
		}
		if a.peakDropRate.CompareAndSwap(oldBits, math.Float64bits(currentRate)) {
			break
		}
		// Retry on CAS failure (another goroutine updated it)
	}

	// Update previous snapshot for next rate calculation (lock-free)
	a.prevSnapshot.Store(&rateSnapshot{
		timestamp: now,
		bytes:     result.TotalBytes,
	})

	return result
}

// GetPeakDropRate returns the highest drop rate observed across all
// aggregations.
func (a *StatsAggregator) GetPeakDropRate() float64 {
	return math.Float64frombits(a.peakDropRate.Load())
}

// StartTime returns when the aggregator was created.
func (a *StatsAggregator) StartTime() time.Time {
	return a.startTime
}

// Elapsed returns the duration since the aggregator was created.
func (a *StatsAggregator) Elapsed() time.Duration {
	return time.Since(a.startTime)
}

// Reset clears all tasks and resets the start time.
func (a *StatsAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tasks = make(map[string]*TaskStats)
	a.order = nil
	a.startTime = time.Now()
	a.prevSnapshot.Store(&rateSnapshot{
		timestamp: time.Now(),
	})
	a.peakDropRate.Store(math.Float64bits(0))

	a.digestMu.Lock()
	a.rateDigest = tdigest.NewWithCompression(100)
	a.rateSamples = 0
	a.rateMax = 0
	a.digestMu.Unlock()
}

// ForEachTask calls the provided function for each task in
// configuration order. The function is called while holding the read
// lock.
func (a *StatsAggregator) ForEachTask(fn func(task string, stats *TaskStats)) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, name := range a.order {
		fn(name, a.tasks[name])
	}
}

// GetAllTaskSummaries returns summaries for all tasks in configuration
// order.
func (a *StatsAggregator) GetAllTaskSummaries() []TaskSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summaries := make([]TaskSummary, 0, len(a.tasks))
	for _, name := range a.order {
		summaries = append(summaries, a.tasks[name].GetSummary())
	}
	return summaries
}
