// Package engine runs the configured backup tasks in order.
//
// The engine owns the per-task wiring: it registers every selected
// task with the stats aggregator up front, builds the tool-specific
// progress parser for each task, and hands each task to a runner.
// Tasks run sequentially; a failed task never stops the ones after it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
	"github.com/randomizedcoder/go-folder-mirror/internal/logging"
	"github.com/randomizedcoder/go-folder-mirror/internal/mirror"
	"github.com/randomizedcoder/go-folder-mirror/internal/parser"
	"github.com/randomizedcoder/go-folder-mirror/internal/runner"
	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
)

// sampleInterval drives the throughput tracker. The tracker's ring
// buffer holds 5 minutes at this cadence.
const sampleInterval = time.Second

// Callbacks contains optional hooks for run lifecycle events.
type Callbacks struct {
	// OnTaskStart is called just before a task's tool is launched.
	OnTaskStart func(task config.Task, index, total int)

	// OnTaskDone is called with the task's final result.
	OnTaskDone func(task config.Task, res *runner.Result)
}

// Config holds the engine dependencies and settings.
type Config struct {
	Tasks   []config.Task
	Builder mirror.Builder
	Logger  *slog.Logger

	// WorkDir is the working directory for every spawned tool.
	WorkDir string

	// Aggregator receives per-task stats. Nil disables stats
	// collection for the whole run.
	Aggregator *stats.StatsAggregator

	StatsBufferSize    int
	StatsDropThreshold float64

	// RetryCount and WaitTime are passed through to each runner.
	RetryCount int
	WaitTime   time.Duration

	MaxCapture int

	Verbose bool

	Callbacks Callbacks
}

// Engine executes backup tasks sequentially.
type Engine struct {
	tasks   []config.Task
	builder mirror.Builder
	logger  *slog.Logger

	workDir       string
	aggregator    *stats.StatsAggregator
	tracker       *stats.ThroughputTracker
	bufferSize    int
	dropThreshold float64
	retryCount    int
	waitTime      time.Duration
	maxCapture    int
	verbose       bool
	callbacks     Callbacks

	// completedBytes is the volume of all finished tasks. The tracker
	// wants one cumulative run-wide counter, while each task reports
	// its own cumulative bytes from zero.
	completedBytes atomic.Int64
}

// New creates an Engine. Every task is registered with the aggregator
// immediately so the TUI can show pending tasks before they run.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		tasks:         cfg.Tasks,
		builder:       cfg.Builder,
		logger:        logger,
		workDir:       cfg.WorkDir,
		aggregator:    cfg.Aggregator,
		bufferSize:    cfg.StatsBufferSize,
		dropThreshold: cfg.StatsDropThreshold,
		retryCount:    cfg.RetryCount,
		waitTime:      cfg.WaitTime,
		maxCapture:    cfg.MaxCapture,
		verbose:       cfg.Verbose,
		callbacks:     cfg.Callbacks,
	}

	if e.aggregator != nil {
		e.tracker = stats.NewThroughputTracker()
		for _, task := range cfg.Tasks {
			e.aggregator.AddTask(stats.NewTaskStats(task.Name))
		}
	}

	return e
}

// Tracker returns the run-wide throughput tracker. Nil when stats are
// disabled.
func (e *Engine) Tracker() *stats.ThroughputTracker {
	return e.tracker
}

// Run executes every task in order and blocks until all have finished
// or ctx is cancelled. It always returns a non-nil Summary.
func (e *Engine) Run(ctx context.Context) *Summary {
	start := time.Now()
	summary := &Summary{Total: len(e.tasks)}

	e.logger.Info("run_starting",
		"tasks", len(e.tasks),
		"tool", e.builder.Name(),
	)

	if e.tracker != nil {
		sampleCtx, stopSampling := context.WithCancel(ctx)
		defer stopSampling()
		go e.sampleLoop(sampleCtx)
	}

	for i, task := range e.tasks {
		if ctx.Err() != nil {
			e.logger.Warn("run_cancelled",
				"completed", i,
				"remaining", len(e.tasks)-i,
			)
			break
		}

		if e.callbacks.OnTaskStart != nil {
			e.callbacks.OnTaskStart(task, i, len(e.tasks))
		}

		res := e.runTask(ctx, task)

		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		if e.callbacks.OnTaskDone != nil {
			e.callbacks.OnTaskDone(task, res)
		}
	}

	summary.Duration = time.Since(start)

	switch {
	case summary.Failed > 0:
		e.logger.Error(fmt.Sprintf("%d task(s) failed", summary.Failed),
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"duration", summary.Duration.Round(time.Millisecond),
		)
	case len(summary.Results) < summary.Total:
		e.logger.Warn("run was cancelled before all tasks completed",
			"completed", len(summary.Results),
			"total", summary.Total,
		)
	default:
		e.logger.Info("all backup tasks completed successfully",
			"succeeded", summary.Succeeded,
			"duration", summary.Duration.Round(time.Millisecond),
		)
	}

	return summary
}

// runTask wires up and runs a single task.
func (e *Engine) runTask(ctx context.Context, task config.Task) *runner.Result {
	var taskStats *stats.TaskStats
	if e.aggregator != nil {
		taskStats = e.aggregator.GetTask(task.Name)
	}

	lineParser, robocopyParser := e.buildParser(taskStats)
	handler := logging.NewStderrHandler(task.Name, e.logger, e.verbose)

	r := runner.New(runner.Config{
		Task:               task,
		Builder:            e.builder,
		WorkDir:            e.workDir,
		Logger:             e.logger,
		Stats:              taskStats,
		StatsEnabled:       taskStats != nil,
		StatsBufferSize:    e.bufferSize,
		StatsDropThreshold: e.dropThreshold,
		ProgressParser:     lineParser,
		StderrHandler:      handler,
		RetryCount:         e.retryCount,
		WaitTime:           e.waitTime,
		MaxCapture:         e.maxCapture,
		Verbose:            e.verbose,
	})

	res := r.Run(ctx)

	if taskStats != nil {
		e.completedBytes.Add(taskStats.TotalBytes())
		if e.tracker != nil {
			e.tracker.SetTotalBytes(e.completedBytes.Load())
		}

		var errCount int64
		for _, n := range handler.CountErrors() {
			errCount += int64(n)
		}
		if robocopyParser != nil {
			c, _ := robocopyParser.ErrorStats()
			errCount += c

			// The summary callback fires at the Bytes row, before the
			// Speed row has been parsed. Backfill the rate here.
			if sum := robocopyParser.Summary(); sum != nil && sum.SpeedBytesPerSec > 0 {
				taskStats.UpdateRate(sum.SpeedBytesPerSec)
				e.aggregator.RecordRateSample(sum.SpeedBytesPerSec)
			}
		}
		if errCount > 0 {
			taskStats.ToolErrors.Store(errCount)
		}
	}

	return res
}

// buildParser returns the tool-specific stdout parser wired into the
// task's stats. The robocopy parser is also returned concretely so
// its ERROR line count can be read after the run.
func (e *Engine) buildParser(s *stats.TaskStats) (parser.LineParser, *parser.RobocopyParser) {
	if s == nil {
		return nil, nil
	}

	if e.builder.Name() == "robocopy" {
		rp := parser.NewRobocopyParser(e.robocopyCallback(s))
		return rp, rp
	}
	return parser.NewProgressParser(e.progressCallback(s)), nil
}

// progressCallback adapts rsync whole-transfer progress updates into
// the task's stats and the run-wide rate tracking.
func (e *Engine) progressCallback(s *stats.TaskStats) parser.ProgressCallback {
	return func(u *parser.ProgressUpdate) {
		s.UpdateCurrentBytes(u.Bytes)
		s.UpdatePercent(u.Percent)
		if u.FilesTotal > 0 || u.FilesTransferred > 0 {
			s.UpdateFiles(u.FilesTransferred, u.FilesRemaining, u.FilesTotal, u.Scanning)
		}
		if u.Rate > 0 {
			s.UpdateRate(u.Rate)
			e.aggregator.RecordRateSample(u.Rate)
		}
		if e.tracker != nil {
			e.tracker.SetTotalBytes(e.completedBytes.Load() + s.TotalBytes())
		}
	}
}

// robocopyCallback folds robocopy's closing summary into the task's
// stats. With /NP the summary is the only progress robocopy reports.
func (e *Engine) robocopyCallback(s *stats.TaskStats) parser.RobocopySummaryCallback {
	return func(sum *parser.RobocopySummary) {
		s.UpdateCurrentBytes(sum.Bytes.Copied)
		s.UpdateFiles(sum.Files.Copied, 0, sum.Files.Total, false)
		if sum.SpeedBytesPerSec > 0 {
			s.UpdateRate(sum.SpeedBytesPerSec)
			e.aggregator.RecordRateSample(sum.SpeedBytesPerSec)
		}
		if e.tracker != nil {
			e.tracker.SetTotalBytes(e.completedBytes.Load() + s.TotalBytes())
		}
	}
}

// sampleLoop drives the throughput tracker's ring buffer while the
// run is in flight.
func (e *Engine) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tracker.RecordSample()
		}
	}
}
