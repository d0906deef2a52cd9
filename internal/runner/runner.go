// Package runner executes a single backup task. It spawns the mirror
// tool, wires the tool's stdout into the lossy progress pipeline and
// its stderr into the log classifier, and drives the retry loop for
// tools that do not retry themselves.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
	"github.com/randomizedcoder/go-folder-mirror/internal/exitcode"
	"github.com/randomizedcoder/go-folder-mirror/internal/logging"
	"github.com/randomizedcoder/go-folder-mirror/internal/mirror"
	"github.com/randomizedcoder/go-folder-mirror/internal/parser"
	"github.com/randomizedcoder/go-folder-mirror/internal/stats"
)

const (
	// drainTimeout bounds how long we wait for the output readers
	// after the tool exits. A grandchild holding the write end of a
	// pipe would otherwise block the run forever.
	drainTimeout = 5 * time.Second

	// killDelay is how long a cancelled tool gets to exit after
	// SIGTERM before it is killed outright.
	killDelay = 10 * time.Second

	// DefaultMaxCapture caps the in-memory stdout/stderr captures.
	DefaultMaxCapture = 64 << 10
)

// Config configures a Runner for one task.
type Config struct {
	Task    config.Task
	Builder mirror.Builder

	// WorkDir is the working directory for the spawned tool. Empty
	// means inherit the runner's own working directory.
	WorkDir string

	Logger *slog.Logger

	// Stats receives lifecycle and pipeline-health updates. Nil
	// disables stats collection for this task.
	Stats *stats.TaskStats

	// StatsEnabled gates the stdout parsing pipeline. When false the
	// tool's stdout is still captured but never parsed.
	StatsEnabled bool

	StatsBufferSize    int
	StatsDropThreshold float64

	// ProgressParser consumes parsed stdout lines. Nil falls back to
	// a no-op parser.
	ProgressParser parser.LineParser

	// StderrHandler classifies and logs tool stderr. Nil constructs a
	// default handler bound to the task name.
	StderrHandler *logging.StderrHandler

	// RetryCount and WaitTime drive the retry loop for tools that do
	// not retry themselves. Ignored when the builder reports
	// HandlesRetry.
	RetryCount int
	WaitTime   time.Duration

	// MaxCapture caps the bytes kept from each output stream.
	MaxCapture int

	Verbose bool
}

// Runner runs one task to completion. A Runner is single-use: create
// one per task and call Run once.
type Runner struct {
	task    config.Task
	builder mirror.Builder
	logger  *slog.Logger
	stats   *stats.TaskStats

	workDir       string
	statsEnabled  bool
	bufferSize    int
	dropThreshold float64
	lineParser    parser.LineParser
	stderrHandler *logging.StderrHandler
	retryCount    int
	waitTime      time.Duration
	maxCapture    int

	// Cumulative pipeline counters. Each attempt gets a fresh
	// pipeline, but TaskStats keeps whole-run totals.
	linesRead    int64
	linesDropped int64
}

// New creates a Runner. Zero-value fields in cfg get defaults.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bufferSize := cfg.StatsBufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	threshold := cfg.StatsDropThreshold
	if threshold <= 0 {
		threshold = 0.01
	}

	maxCapture := cfg.MaxCapture
	if maxCapture <= 0 {
		maxCapture = DefaultMaxCapture
	}

	waitTime := cfg.WaitTime
	if waitTime <= 0 {
		waitTime = time.Second
	}

	lineParser := cfg.ProgressParser
	if lineParser == nil {
		lineParser = parser.NoopParser{}
	}

	handler := cfg.StderrHandler
	if handler == nil {
		handler = logging.NewStderrHandler(cfg.Task.Name, logger, cfg.Verbose)
	}

	return &Runner{
		task:          cfg.Task,
		builder:       cfg.Builder,
		logger:        logger,
		stats:         cfg.Stats,
		workDir:       cfg.WorkDir,
		statsEnabled:  cfg.StatsEnabled,
		bufferSize:    bufferSize,
		dropThreshold: threshold,
		lineParser:    lineParser,
		stderrHandler: handler,
		retryCount:    cfg.RetryCount,
		waitTime:      waitTime,
		maxCapture:    maxCapture,
	}
}

// Run executes the task and blocks until it finishes or ctx is
// cancelled. It always returns a non-nil Result.
func (r *Runner) Run(ctx context.Context) *Result {
	res := &Result{
		RunID:     uuid.New().String(),
		Task:      r.task.Name,
		StartTime: time.Now(),
	}

	r.logger.Info("task_starting",
		"task", r.task.Name,
		"run_id", res.RunID,
		"tool", r.builder.Name(),
		"source", r.task.Source,
		"destination", r.task.Destination,
	)

	if err := r.precheck(); err != nil {
		res.Err = err
		res.ExitCode = exitcode.Failure
		res.EndTime = time.Now()
		r.finishStats(res)
		r.logger.Error("task_precheck_failed",
			"task", r.task.Name,
			"run_id", res.RunID,
			"error", err,
		)
		return res
	}

	maxAttempts := 1
	if !r.builder.HandlesRetry() {
		maxAttempts += r.retryCount
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		exitCode, err := r.runOnce(ctx, attempt, res)
		res.ExitCode = exitCode
		res.Err = err

		if ctx.Err() != nil {
			res.Err = ctx.Err()
			break
		}

		if err == nil && r.builder.Success(exitCode) {
			res.Success = true
			break
		}

		if attempt == maxAttempts {
			break
		}

		r.logger.Warn("task_attempt_failed",
			"task", r.task.Name,
			"run_id", res.RunID,
			"attempt", attempt,
			"exit_code", exitCode,
			"retry_in", r.waitTime,
		)

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
		case <-time.After(r.waitTime):
			continue
		}
		break
	}

	res.EndTime = time.Now()
	r.finishStats(res)

	if res.Success {
		r.logger.Info("task_succeeded",
			"task", r.task.Name,
			"run_id", res.RunID,
			"exit_code", res.ExitCode,
			"attempts", res.Attempts,
			"duration", res.Duration().Round(time.Millisecond),
		)
		return res
	}

	args := []any{
		"task", r.task.Name,
		"run_id", res.RunID,
		"exit_code", res.ExitCode,
		"attempts", res.Attempts,
		"duration", res.Duration().Round(time.Millisecond),
	}
	if res.Err != nil {
		args = append(args, "error", res.Err)
	}
	if tail := r.stderrHandler.RecentLines(5); len(tail) > 0 {
		args = append(args, "stderr_tail", strings.Join(tail, " | "))
	}
	r.logger.Error("task_failed", args...)

	return res
}

// precheck validates the source and creates the destination before the
// tool is spawned. A missing source must never reach the tool: in
// mirror mode it would be treated as an empty tree and the destination
// contents would be deleted.
func (r *Runner) precheck() error {
	info, err := os.Stat(r.task.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("source directory does not exist: %s", r.task.Source)
	}
	if err != nil {
		return fmt.Errorf("stat source %s: %w", r.task.Source, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", r.task.Source)
	}

	if err := os.MkdirAll(r.task.Destination, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", r.task.Destination, err)
	}
	return nil
}

// runOnce spawns the tool once and waits for it to exit. The returned
// exit code is meaningful even when err is non-nil.
func (r *Runner) runOnce(ctx context.Context, attempt int, res *Result) (int, error) {
	if r.stats != nil {
		r.stats.OnAttemptStart()
	}

	cmd, err := r.builder.BuildCommand(ctx, r.task)
	if err != nil {
		return exitcode.Failure, fmt.Errorf("build command: %w", err)
	}

	if r.workDir != "" {
		cmd.Dir = r.workDir
	}
	setProcAttr(cmd)
	cmd.WaitDelay = killDelay

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return exitcode.Failure, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return exitcode.Failure, fmt.Errorf("stderr pipe: %w", err)
	}

	// Plain *os.File stdio: exec hands the descriptors straight to the
	// child and Wait never touches them, so Wait can be called before
	// the readers have drained.
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return startExitCode(err), fmt.Errorf("start %s: %w", r.builder.Name(), err)
	}

	// IMPORTANT: close the parent's write ends after Start. The child
	// holds its own copies; keeping ours open would stop the readers
	// from ever seeing EOF.
	stdoutW.Close()
	stderrW.Close()

	r.logger.Info("tool_started",
		"task", r.task.Name,
		"tool", r.builder.Name(),
		"pid", cmd.Process.Pid,
		"attempt", attempt,
	)

	stdoutCapture := newLimitBuffer(r.maxCapture)
	stderrCapture := newLimitBuffer(r.maxCapture)

	var readWg, parseWg sync.WaitGroup
	var pipeline *parser.Pipeline

	if r.statsEnabled {
		pipeline = parser.NewPipeline(r.task.Name, "progress", r.bufferSize, r.dropThreshold)

		reader := parser.NewPipeReader(io.TeeReader(stdoutR, stdoutCapture), pipeline)
		readWg.Add(1)
		go func() {
			defer readWg.Done()
			reader.Run()
		}()

		parseWg.Add(1)
		go func() {
			defer parseWg.Done()
			pipeline.RunParser(r.lineParser)
		}()
	} else {
		readWg.Add(1)
		go func() {
			defer readWg.Done()
			_, _ = io.Copy(stdoutCapture, stdoutR)
		}()
	}

	readWg.Add(1)
	go func() {
		defer readWg.Done()
		r.stderrHandler.HandleReader(io.TeeReader(stderrR, stderrCapture))
	}()

	waitErr := cmd.Wait()
	exitCode := exitcode.FromWaitError(waitErr)

	r.drain(&readWg, &parseWg, stdoutR, stderrR)
	stdoutR.Close()
	stderrR.Close()

	res.Stdout = stdoutCapture.Bytes()
	res.Stderr = stderrCapture.Bytes()
	res.Truncated = stdoutCapture.Truncated() || stderrCapture.Truncated()

	if pipeline != nil {
		read, dropped, _ := pipeline.Stats()
		r.linesRead += read
		r.linesDropped += dropped
		if r.stats != nil {
			r.stats.RecordDroppedLines(r.linesRead, r.linesDropped, 0, 0)
		}
		if dropped > 0 {
			r.logger.Warn("pipeline_stats",
				"task", r.task.Name,
				"lines_read", read,
				"lines_dropped", dropped,
				"drop_rate", fmt.Sprintf("%.2f%%", pipeline.DropRate()*100),
			)
		}
	}

	r.logger.Info("tool_exited",
		"task", r.task.Name,
		"exit_code", exitCode,
		"attempt", attempt,
	)

	// A non-zero exit is a normal outcome judged by the builder; only
	// errors without a wait status are infrastructure failures.
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return exitCode, fmt.Errorf("wait %s: %w", r.builder.Name(), waitErr)
	}
	return exitCode, nil
}

// drain waits for the output readers and the parser goroutine to
// finish. If a grandchild inherited the write ends the readers never
// see EOF; after drainTimeout the read ends are force-closed to
// unblock them.
func (r *Runner) drain(readWg, parseWg *sync.WaitGroup, stdoutR, stderrR *os.File) {
	done := make(chan struct{})
	go func() {
		readWg.Wait()
		parseWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		r.logger.Warn("output_drain_timeout",
			"task", r.task.Name,
			"timeout", drainTimeout,
		)
		stdoutR.Close()
		stderrR.Close()
		<-done
	}
}

func (r *Runner) finishStats(res *Result) {
	if r.stats == nil {
		return
	}
	r.stats.Finish(res.ExitCode, res.Success)
}

// startExitCode maps a Start failure onto the shell convention:
// missing binary 127, present but unrunnable 126.
func startExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return exitcode.NotFound
	}
	return exitcode.NotExecutable
}

// limitBuffer keeps at most limit bytes and silently discards the
// rest. Write never returns an error so an upstream TeeReader keeps
// flowing after the cap is hit.
type limitBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitBuffer(limit int) *limitBuffer {
	return &limitBuffer{limit: limit}
}

func (w *limitBuffer) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitBuffer) Bytes() []byte { return w.buf.Bytes() }

func (w *limitBuffer) Truncated() bool { return w.truncated }
