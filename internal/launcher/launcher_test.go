package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-folder-mirror/internal/exitcode"
)

// writeEntryPoint places a shell script named like the backup entry
// point into dir.
func writeEntryPoint(t *testing.T, dir, script string) string {
	t.Helper()
	path := filepath.Join(dir, EntryPointName())
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// Tests: Run
// =============================================================================

func TestRun_SuccessIsSilent(t *testing.T) {
	dir := t.TempDir()
	writeEntryPoint(t, dir, "exit 0")

	res := Run(context.Background(), Options{Dir: dir})

	if res.ExitCode != exitcode.Success {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}

	var stderr bytes.Buffer
	if status := Report(res, &stderr); status != 0 {
		t.Errorf("Report() = %d, want 0", status)
	}
	if stderr.Len() != 0 {
		t.Errorf("success should be silent, got %q", stderr.String())
	}
}

func TestRun_PropagatesExitStatus(t *testing.T) {
	for _, code := range []int{1, 2, 7, 23} {
		t.Run(fmt.Sprintf("exit_%d", code), func(t *testing.T) {
			dir := t.TempDir()
			writeEntryPoint(t, dir, fmt.Sprintf("exit %d", code))

			res := Run(context.Background(), Options{Dir: dir})

			if res.ExitCode != code {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, code)
			}
			if res.Err != nil {
				t.Errorf("Err = %v, want nil (non-zero exit is not an error)", res.Err)
			}

			var stderr bytes.Buffer
			if status := Report(res, &stderr); status != code {
				t.Errorf("Report() = %d, want %d", status, code)
			}
			if !strings.Contains(stderr.String(), fmt.Sprintf("%d", code)) {
				t.Errorf("diagnostic %q should name the status %d", stderr.String(), code)
			}
		})
	}
}

func TestRun_MissingEntryPoint(t *testing.T) {
	dir := t.TempDir()

	res := Run(context.Background(), Options{Dir: dir})

	if res.ExitCode != exitcode.NotFound {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, exitcode.NotFound)
	}
	if !errors.Is(res.Err, ErrNotFound) {
		t.Errorf("Err = %v, want ErrNotFound", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "not found") {
		t.Errorf("Err %q should mention 'not found'", res.Err)
	}
	if !strings.Contains(res.Err.Error(), filepath.Join(dir, EntryPointName())) {
		t.Errorf("Err %q should name the path that was tried", res.Err)
	}

	// Never silent: the scheduler must be able to tell this from a
	// successful run.
	var stderr bytes.Buffer
	if status := Report(res, &stderr); status == 0 {
		t.Error("Report() = 0 for a missing entry point")
	}
	if stderr.Len() == 0 {
		t.Error("missing entry point produced no diagnostic")
	}
}

func TestRun_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, EntryPointName())
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := Run(context.Background(), Options{Dir: dir})

	if res.ExitCode != exitcode.NotExecutable {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, exitcode.NotExecutable)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "start") {
		t.Errorf("Err = %v, want start failure", res.Err)
	}
}

func TestRun_DirectoryAsEntryPoint(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, EntryPointName()), 0o755); err != nil {
		t.Fatal(err)
	}

	res := Run(context.Background(), Options{Dir: dir})

	if res.ExitCode != exitcode.NotExecutable {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, exitcode.NotExecutable)
	}
}

func TestRun_PinsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	// The relative path proves the child's cwd: the file must appear
	// in the entry point's directory, not the test's.
	writeEntryPoint(t, dir, "pwd > cwd.txt")

	res := Run(context.Background(), Options{Dir: dir})
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cwd.txt"))
	if err != nil {
		t.Fatalf("child did not write into its working directory: %v", err)
	}

	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.TrimSpace(string(data))
	if resolved, err := filepath.EvalSymlinks(got); err == nil {
		got = resolved
	}
	if got != want {
		t.Errorf("child cwd = %q, want %q", got, want)
	}
}

func TestRun_PassesRunBackupFlag(t *testing.T) {
	dir := t.TempDir()
	writeEntryPoint(t, dir, `echo "$@" > args.txt`)

	res := Run(context.Background(), Options{Dir: dir})
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}

	data, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "--run-backup" {
		t.Errorf("child args = %q, want %q", got, "--run-backup")
	}
}

func TestRun_OutputPassthrough(t *testing.T) {
	dir := t.TempDir()
	writeEntryPoint(t, dir, "echo copied 42 files; echo skipped 1 >&2")

	var stdout, stderr bytes.Buffer
	res := Run(context.Background(), Options{Dir: dir, Stdout: &stdout, Stderr: &stderr})

	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := stdout.String(); got != "copied 42 files\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := stderr.String(); got != "skipped 1\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestRun_TerminatedOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	writeEntryPoint(t, dir, "exec sleep 30")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := Run(ctx, Options{Dir: dir})
	elapsed := time.Since(start)

	if elapsed > 10*time.Second {
		t.Fatalf("Run blocked for %v after cancellation", elapsed)
	}
	if want := exitcode.SignalBase + 15; res.ExitCode != want {
		t.Errorf("ExitCode = %d, want %d (SIGTERM)", res.ExitCode, want)
	}
}

func TestRun_ResultTiming(t *testing.T) {
	dir := t.TempDir()
	writeEntryPoint(t, dir, "exit 0")

	res := Run(context.Background(), Options{Dir: dir})

	if !res.EndTime.After(res.StartTime) {
		t.Errorf("EndTime %v not after StartTime %v", res.EndTime, res.StartTime)
	}
	if res.Duration() <= 0 {
		t.Errorf("Duration() = %v, want > 0", res.Duration())
	}
	if res.Path != filepath.Join(dir, EntryPointName()) {
		t.Errorf("Path = %q", res.Path)
	}
}

// =============================================================================
// Tests: Locate and SelfDir
// =============================================================================

func TestLocate(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		dir := t.TempDir()
		want := writeEntryPoint(t, dir, "exit 0")

		got, err := Locate(dir)
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if got != want {
			t.Errorf("Locate() = %q, want %q", got, want)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Locate(t.TempDir())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Locate() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSelfDir(t *testing.T) {
	dir, err := SelfDir()
	if err != nil {
		t.Fatalf("SelfDir() error = %v", err)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("SelfDir() = %q, want absolute path", dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("SelfDir() = %q, not a directory (err %v)", dir, err)
	}
}

// =============================================================================
// Tests: Report and Main
// =============================================================================

func TestReport(t *testing.T) {
	tests := []struct {
		name       string
		res        Result
		wantStatus int
		wantOutput string // empty means silent
	}{
		{
			name:       "success silent",
			res:        Result{ExitCode: 0},
			wantStatus: 0,
		},
		{
			name:       "failure names status",
			res:        Result{ExitCode: 2},
			wantStatus: 2,
			wantOutput: "status 2",
		},
		{
			name:       "error wins over code",
			res:        Result{ExitCode: 127, Err: errors.New("backup entry point not found: /opt/backup/go-folder-mirror")},
			wantStatus: 127,
			wantOutput: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			status := Report(tt.res, &stderr)

			if status != tt.wantStatus {
				t.Errorf("Report() = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantOutput == "" {
				if stderr.Len() != 0 {
					t.Errorf("expected silence, got %q", stderr.String())
				}
			} else if !strings.Contains(stderr.String(), tt.wantOutput) {
				t.Errorf("diagnostic %q should contain %q", stderr.String(), tt.wantOutput)
			}
		})
	}
}

func TestMain_ReportsMissingEntryPoint(t *testing.T) {
	// The test binary runs from a scratch build directory with no
	// go-folder-mirror next to it.
	var stdout, stderr bytes.Buffer
	status := Main(context.Background(), &stdout, &stderr)

	if status != exitcode.NotFound {
		t.Errorf("Main() = %d, want %d", status, exitcode.NotFound)
	}
	if !strings.Contains(stderr.String(), "not found") {
		t.Errorf("stderr %q should mention 'not found'", stderr.String())
	}
}
