// Package launcher locates and runs the backup entry point.
//
// The launcher is scheduler glue: the Task Scheduler or cron entry
// points at one small binary that never changes, sitting next to the
// real entry point that does. It resolves the directory containing its
// own executable, starts go-folder-mirror from there with --run-backup,
// blocks, and exits with the child's status. 127 and 126 are reserved
// for "entry point missing" and "entry point not startable" so they
// cannot be mistaken for backup results (0, 1, 2).
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/randomizedcoder/go-folder-mirror/internal/exitcode"
)

// killDelay is the grace period between the termination signal and the
// hard kill when the launcher's context is cancelled.
const killDelay = 10 * time.Second

const entryPointBase = "go-folder-mirror"

// ErrNotFound reports that the backup entry point does not exist in
// the launcher's directory.
var ErrNotFound = errors.New("backup entry point not found")

// EntryPointName returns the file name of the backup entry point on
// this platform.
func EntryPointName() string {
	if runtime.GOOS == "windows" {
		return entryPointBase + ".exe"
	}
	return entryPointBase
}

// SelfDir returns the directory containing the running executable,
// with symlinks resolved. A scheduler may start the launcher through a
// symlink from anywhere; the entry point lives next to the real file.
func SelfDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate own executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", exe, err)
	}
	return filepath.Dir(resolved), nil
}

// Locate returns the full path of the backup entry point inside dir.
// A missing file returns ErrNotFound wrapped with the path that was
// tried.
func Locate(dir string) (string, error) {
	path := filepath.Join(dir, EntryPointName())
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return path, nil
}

// Options configures one launch.
type Options struct {
	// Dir is the directory holding the entry point. Empty means the
	// directory of the running executable.
	Dir string

	// Stdout and Stderr receive the child's output unmodified.
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes one invocation of the backup entry point.
type Result struct {
	// Path is the resolved entry point path. Empty when resolution
	// itself failed.
	Path string

	// ExitCode is the status the launcher should exit with: the
	// child's own code when it ran (signal deaths as 128+signal),
	// otherwise 127 (missing) or 126 (not startable).
	ExitCode int

	StartTime time.Time
	EndTime   time.Time

	// Err is set when the child never ran to completion on its own
	// terms: resolution or start failed, or waiting failed without an
	// exit status. A non-zero child exit is not an Err.
	Err error
}

// Duration returns the wall-clock duration of the invocation.
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Run invokes the backup entry point and blocks until it exits. The
// child runs with its working directory pinned to the entry point's
// own directory, so its relative paths (config file, log directory)
// resolve the same way no matter where the scheduler starts the
// launcher from. Cancelling ctx signals the child and, after a grace
// period, kills it.
func Run(ctx context.Context, opts Options) Result {
	res := Result{StartTime: time.Now()}

	dir := opts.Dir
	if dir == "" {
		var err error
		if dir, err = SelfDir(); err != nil {
			res.Err = err
			res.ExitCode = exitcode.NotExecutable
			res.EndTime = time.Now()
			return res
		}
	}

	path, err := Locate(dir)
	if err != nil {
		res.Err = err
		res.ExitCode = exitcode.NotFound
		res.EndTime = time.Now()
		return res
	}
	res.Path = path

	cmd := exec.CommandContext(ctx, path, "--run-backup")
	cmd.Dir = dir
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	setProcAttr(cmd)
	cmd.WaitDelay = killDelay

	if err := cmd.Start(); err != nil {
		res.Err = fmt.Errorf("start %s: %w", path, err)
		res.ExitCode = startExitCode(err)
		res.EndTime = time.Now()
		return res
	}

	waitErr := cmd.Wait()
	res.ExitCode = exitcode.FromWaitError(waitErr)
	res.EndTime = time.Now()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		res.Err = fmt.Errorf("wait %s: %w", path, waitErr)
	}
	return res
}

// Report writes the diagnostic line for a finished invocation and
// returns the exit status. Success is silent so the scheduler's log
// only grows when there is something to act on.
func Report(res Result, stderr io.Writer) int {
	switch {
	case res.Err != nil:
		fmt.Fprintf(stderr, "mirror-launcher: %v\n", res.Err)
	case res.ExitCode != exitcode.Success:
		fmt.Fprintf(stderr, "mirror-launcher: backup process exited with status %d\n", res.ExitCode)
	}
	return res.ExitCode
}

// Main runs the full launcher sequence against the directory of the
// running executable. The return value is the process exit status.
func Main(ctx context.Context, stdout, stderr io.Writer) int {
	res := Run(ctx, Options{Stdout: stdout, Stderr: stderr})
	return Report(res, stderr)
}

// startExitCode classifies a Start error. A file that vanished between
// Locate and Start still reports 127; everything else (permissions,
// bad binary format) is 126.
func startExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return exitcode.NotFound
	}
	return exitcode.NotExecutable
}
