package runner

import "time"

// Result describes the outcome of one task run, covering every retry
// attempt. Exactly one Result is produced per task.
type Result struct {
	// RunID uniquely identifies this run for log correlation.
	RunID string

	// Task is the task name from the configuration.
	Task string

	// ExitCode is the tool's exit status from the final attempt.
	// Signal deaths are reported as 128+signal.
	ExitCode int

	// Success reports whether the tool considers ExitCode a pass.
	// Robocopy treats 0-7 as success, rsync only 0 and 24.
	Success bool

	// Attempts is the number of times the tool was spawned. Zero
	// means the pre-flight checks failed and the tool never ran.
	Attempts int

	StartTime time.Time
	EndTime   time.Time

	// Stdout and Stderr hold the captured tool output, capped at the
	// configured limit.
	Stdout []byte
	Stderr []byte

	// Truncated is set when either capture hit the cap.
	Truncated bool

	// Err holds the failure reason when the tool could not be run at
	// all: pre-check failure, spawn error or cancellation.
	Err error
}

// Duration returns the wall-clock time of the whole run.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
