// Package metrics provides Prometheus metrics for go-folder-mirror.
//
// Metrics can be scraped live from the /metrics endpoint during a run
// (long transfers, unattended machines) or exported once at the end of
// a run in text exposition format for the node_exporter textfile
// collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
)

// --- Panel 1: Run Overview ---
var (
	mirrorInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_info",
			Help: "Information about the backup run (value always 1)",
		},
		[]string{"version", "tool"},
	)

	mirrorTasksConfigured = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_tasks_configured",
			Help: "Number of tasks selected for this run",
		},
	)

	mirrorRunElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_run_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)

	mirrorTasksByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_tasks_by_state",
			Help: "Tasks by lifecycle state",
		},
		[]string{"state"}, // "pending" | "running" | "succeeded" | "failed"
	)

	mirrorStalledTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_stalled_tasks",
			Help: "Running tasks that stopped reporting progress",
		},
	)
)

// --- Panel 2: Transfer Volume & Rates ---
var (
	mirrorBytesCopiedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_bytes_copied_total",
			Help: "Total bytes copied across all tasks",
		},
	)

	mirrorFilesTransferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_files_transferred_total",
			Help: "Total files copied across all tasks",
		},
	)

	mirrorFilesFound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_files_found",
			Help: "Files found by the tools' source scans",
		},
	)

	mirrorThroughputBytesPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_throughput_bytes_per_second",
			Help: "Instantaneous copy throughput",
		},
	)

	mirrorRateP50BytesPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_rate_p50_bytes_per_second",
			Help: "Transfer rate 50th percentile (median) across samples",
		},
	)

	mirrorRateP95BytesPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_rate_p95_bytes_per_second",
			Help: "Transfer rate 95th percentile across samples",
		},
	)

	mirrorRateP99BytesPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_rate_p99_bytes_per_second",
			Help: "Transfer rate 99th percentile across samples",
		},
	)

	mirrorRateMaxBytesPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_rate_max_bytes_per_second",
			Help: "Highest transfer rate observed",
		},
	)
)

// --- Panel 3: Attempts & Errors ---
var (
	mirrorAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_task_attempts_total",
			Help: "Total tool launches, including retries",
		},
	)

	mirrorRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_task_retries_total",
			Help: "Total tool launches beyond each task's first",
		},
	)

	mirrorToolErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_tool_errors_total",
			Help: "Total error lines reported by the mirror tools",
		},
	)

	mirrorTaskExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folder_mirror_task_exits_total",
			Help: "Finished tasks by outcome category",
		},
		[]string{"category"}, // "success", "error", "signal"
	)

	mirrorTaskDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "folder_mirror_task_duration_seconds",
			Help:    "Task wall-clock duration",
			Buckets: []float64{1, 5, 30, 60, 300, 600, 1800, 3600, 7200},
		},
	)
)

// --- Panel 4: Pipeline Health (Metrics System) ---
var (
	mirrorStatsLinesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_stats_lines_dropped_total",
			Help: "Tool output lines dropped (parser backpressure)",
		},
	)

	mirrorStatsLinesParsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folder_mirror_stats_lines_parsed_total",
			Help: "Tool output lines successfully parsed",
		},
	)

	mirrorStatsTasksDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_stats_tasks_degraded",
			Help: "Tasks with dropped progress lines",
		},
	)

	mirrorStatsDropRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_stats_drop_rate",
			Help: "Overall metrics line drop rate (0.0-1.0)",
		},
	)

	mirrorStatsPeakDropRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_stats_peak_drop_rate",
			Help: "Peak metrics line drop rate observed",
		},
	)
)

// --- Panel 5: Run Result ---
var (
	mirrorRunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_run_success",
			Help: "1 when every task succeeded, 0 otherwise",
		},
	)

	mirrorRunDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_run_duration_seconds",
			Help: "Wall-clock duration of the completed run",
		},
	)

	mirrorLastRunTimestampSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folder_mirror_last_run_timestamp_seconds",
			Help: "Unix time when the run finished",
		},
	)
)

// --- Per-Task Metrics ---
//
// Labelled by task name. Cardinality is bounded by the configuration
// (a handful of folders), so per-task series are always enabled.
var (
	mirrorTaskState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_state",
			Help: "Task lifecycle state (0 pending, 1 running, 2 succeeded, 3 failed)",
		},
		[]string{"task"},
	)

	mirrorTaskBytesCopied = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_bytes_copied",
			Help: "Bytes copied for this task, all attempts combined",
		},
		[]string{"task"},
	)

	mirrorTaskPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_percent",
			Help: "Whole-transfer progress for this task (0-100)",
		},
		[]string{"task"},
	)

	mirrorTaskRateBytesPerSec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_rate_bytes_per_second",
			Help: "Most recent transfer rate reported for this task",
		},
		[]string{"task"},
	)

	mirrorTaskFilesTransferred = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_files_transferred",
			Help: "Files copied for this task",
		},
		[]string{"task"},
	)

	mirrorTaskAttempts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_attempts",
			Help: "Tool launches for this task (1 + retries)",
		},
		[]string{"task"},
	)

	mirrorTaskElapsedSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_elapsed_seconds",
			Help: "Wall-clock seconds this task has been running (frozen once finished)",
		},
		[]string{"task"},
	)

	mirrorTaskExitCode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folder_mirror_task_exit_code",
			Help: "Exit code of the task's final attempt (absent until finished)",
		},
		[]string{"task"},
	)
)

// Collector manages all Prometheus metrics for a backup run.
//
// The aggregator hands the collector cumulative snapshots; counter
// families are advanced by the delta between consecutive snapshots.
type Collector struct {
	tool      string
	taskCount int
	startTime time.Time

	mu               sync.Mutex
	prevBytes        int64
	prevFiles        int64
	prevAttempts     int64
	prevRetries      int64
	prevToolErrors   int64
	prevLinesDropped int64
	prevLinesParsed  int64

	// For the exit summary
	exitCodes map[int]int
	durations []time.Duration
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Tool      string
	Version   string
	TaskCount int
}

// NewCollector creates a metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		tool:      cfg.Tool,
		taskCount: cfg.TaskCount,
		startTime: time.Now(),
		exitCodes: make(map[int]int),
		durations: make([]time.Duration, 0, cfg.TaskCount),
	}

	registry.MustRegister(
		// Panel 1: Run Overview
		mirrorInfo,
		mirrorTasksConfigured,
		mirrorRunElapsedSeconds,
		mirrorTasksByState,
		mirrorStalledTasks,

		// Panel 2: Transfer Volume & Rates
		mirrorBytesCopiedTotal,
		mirrorFilesTransferredTotal,
		mirrorFilesFound,
		mirrorThroughputBytesPerSec,
		mirrorRateP50BytesPerSec,
		mirrorRateP95BytesPerSec,
		mirrorRateP99BytesPerSec,
		mirrorRateMaxBytesPerSec,

		// Panel 3: Attempts & Errors
		mirrorAttemptsTotal,
		mirrorRetriesTotal,
		mirrorToolErrorsTotal,
		mirrorTaskExitsTotal,
		mirrorTaskDurationSeconds,

		// Panel 4: Pipeline Health
		mirrorStatsLinesDroppedTotal,
		mirrorStatsLinesParsedTotal,
		mirrorStatsTasksDegraded,
		mirrorStatsDropRate,
		mirrorStatsPeakDropRate,

		// Panel 5: Run Result
		mirrorRunSuccess,
		mirrorRunDurationSeconds,
		mirrorLastRunTimestampSeconds,

		// Per-task
		mirrorTaskState,
		mirrorTaskBytesCopied,
		mirrorTaskPercent,
		mirrorTaskRateBytesPerSec,
		mirrorTaskFilesTransferred,
		mirrorTaskAttempts,
		mirrorTaskElapsedSeconds,
		mirrorTaskExitCode,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	mirrorInfo.WithLabelValues(version, cfg.Tool).Set(1)
	mirrorTasksConfigured.Set(float64(cfg.TaskCount))

	return c
}

// RecordStats updates all metrics from an aggregated snapshot.
func (c *Collector) RecordStats(snap *stats.AggregatedStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// --- Panel 1: Run Overview ---
	mirrorRunElapsedSeconds.Set(time.Since(c.startTime).Seconds())
	mirrorTasksByState.WithLabelValues("pending").Set(float64(snap.PendingTasks))
	mirrorTasksByState.WithLabelValues("running").Set(float64(snap.RunningTasks))
	mirrorTasksByState.WithLabelValues("succeeded").Set(float64(snap.SucceededTasks))
	mirrorTasksByState.WithLabelValues("failed").Set(float64(snap.FailedTasks))
	mirrorStalledTasks.Set(float64(snap.StalledTasks))

	// --- Panel 2: Transfer Volume & Rates ---
	if d := snap.TotalBytes - c.prevBytes; d > 0 {
		mirrorBytesCopiedTotal.Add(float64(d))
	}
	c.prevBytes = snap.TotalBytes

	if d := snap.TotalFilesTransferred - c.prevFiles; d > 0 {
		mirrorFilesTransferredTotal.Add(float64(d))
	}
	c.prevFiles = snap.TotalFilesTransferred

	mirrorFilesFound.Set(float64(snap.TotalFilesFound))
	mirrorThroughputBytesPerSec.Set(snap.InstantThroughputRate)
	mirrorRateP50BytesPerSec.Set(snap.RateP50)
	mirrorRateP95BytesPerSec.Set(snap.RateP95)
	mirrorRateP99BytesPerSec.Set(snap.RateP99)
	mirrorRateMaxBytesPerSec.Set(snap.RateMax)

	// --- Panel 3: Attempts & Errors ---
	if d := snap.TotalAttempts - c.prevAttempts; d > 0 {
		mirrorAttemptsTotal.Add(float64(d))
	}
	c.prevAttempts = snap.TotalAttempts

	if d := snap.TotalRetries - c.prevRetries; d > 0 {
		mirrorRetriesTotal.Add(float64(d))
	}
	c.prevRetries = snap.TotalRetries

	if d := snap.TotalToolErrors - c.prevToolErrors; d > 0 {
		mirrorToolErrorsTotal.Add(float64(d))
	}
	c.prevToolErrors = snap.TotalToolErrors

	// --- Panel 4: Pipeline Health ---
	if d := snap.TotalLinesDropped - c.prevLinesDropped; d > 0 {
		mirrorStatsLinesDroppedTotal.Add(float64(d))
	}
	c.prevLinesDropped = snap.TotalLinesDropped

	parsed := snap.TotalLinesRead - snap.TotalLinesDropped
	if d := parsed - c.prevLinesParsed; d > 0 {
		mirrorStatsLinesParsedTotal.Add(float64(d))
	}
	c.prevLinesParsed = parsed

	mirrorStatsTasksDegraded.Set(float64(snap.TasksWithDrops))

	dropRate := float64(0)
	if snap.TotalLinesRead > 0 {
		dropRate = float64(snap.TotalLinesDropped) / float64(snap.TotalLinesRead)
	}
	mirrorStatsDropRate.Set(dropRate)
	mirrorStatsPeakDropRate.Set(snap.PeakDropRate)

	// --- Per-task ---
	for _, t := range snap.PerTaskSummaries {
		mirrorTaskState.WithLabelValues(t.Task).Set(float64(t.State))
		mirrorTaskBytesCopied.WithLabelValues(t.Task).Set(float64(t.TotalBytes))
		mirrorTaskPercent.WithLabelValues(t.Task).Set(float64(t.Percent))
		mirrorTaskRateBytesPerSec.WithLabelValues(t.Task).Set(t.Rate)
		mirrorTaskFilesTransferred.WithLabelValues(t.Task).Set(float64(t.FilesTransferred))
		mirrorTaskAttempts.WithLabelValues(t.Task).Set(float64(t.Attempts))
		mirrorTaskElapsedSeconds.WithLabelValues(t.Task).Set(t.Elapsed.Seconds())
		if t.State == stats.StateSucceeded || t.State == stats.StateFailed {
			mirrorTaskExitCode.WithLabelValues(t.Task).Set(float64(t.ExitCode))
		}
	}
}

// RecordTaskExit records a finished task: the outcome category and
// the duration histogram. Success comes from the tool's own notion of
// success, not from code==0 (robocopy exits 1-7 on success).
func (c *Collector) RecordTaskExit(exitCode int, success bool, duration time.Duration) {
	category := "error"
	if success {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	mirrorTaskExitsTotal.WithLabelValues(category).Inc()
	mirrorTaskDurationSeconds.Observe(duration.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.durations = append(c.durations, duration)
	c.mu.Unlock()
}

// RecordRunResult records the final outcome of the whole run.
func (c *Collector) RecordRunResult(success bool, duration time.Duration) {
	v := float64(0)
	if success {
		v = 1
	}
	mirrorRunSuccess.Set(v)
	mirrorRunDurationSeconds.Set(duration.Seconds())
	mirrorLastRunTimestampSeconds.Set(float64(time.Now().Unix()))
}

// RunSummary holds the collector-side data for the exit summary:
// exit code counts and task duration percentiles.
type RunSummary struct {
	ExitCodes   map[int]int
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration
}

// GenerateSummary snapshots the exit code counts and computes the
// duration percentiles over all finished attempts.
func (c *Collector) GenerateSummary() *RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &RunSummary{
		ExitCodes: make(map[int]int, len(c.exitCodes)),
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if len(c.durations) > 0 {
		sorted := make([]time.Duration, len(c.durations))
		copy(sorted, c.durations)
		sortDurations(sorted)

		s.DurationP50 = percentile(sorted, 0.50)
		s.DurationP95 = percentile(sorted, 0.95)
		s.DurationP99 = percentile(sorted, 0.99)
	}

	return s
}

// Tool returns the configured mirror tool name.
func (c *Collector) Tool() string {
	return c.tool
}

// TaskCount returns the configured task count.
func (c *Collector) TaskCount() int {
	return c.taskCount
}

// sortDurations sorts a slice of durations in place.
func sortDurations(d []time.Duration) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j] < d[j-1]; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}

// percentile returns the value at the given percentile (0.0-1.0).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
