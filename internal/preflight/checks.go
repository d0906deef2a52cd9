// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
)

// minFreeMiB is the free-space floor below which the destination
// filesystem draws a warning.
const minFreeMiB = 1024

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %s (need %d, have %d)", status, c.Name, c.Message, c.Required, c.Actual)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for the selected tasks.
// tool is the detected mirror tool name (rsync or robocopy).
func RunAll(tasks []config.Task, tool string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 2+3*len(tasks)),
		Passed: true,
	}

	result.add(checkTool(tool))
	result.add(checkTaskCount(tasks))

	for _, task := range tasks {
		result.add(checkSource(task))
		result.add(checkDestination(task))
		result.add(checkDiskSpace(task))
	}

	return result
}

// checkTool verifies the mirror tool is on PATH and working.
func checkTool(tool string) Check {
	path, err := exec.LookPath(tool)
	if err != nil {
		return Check{
			Name:    tool,
			Passed:  false,
			Message: fmt.Sprintf("not found in PATH: %v", err),
		}
	}

	// rsync prints "rsync  version 3.2.7  protocol version 31".
	// Robocopy has no version flag that exits zero, so PATH presence
	// is as far as the probe goes.
	if tool == "rsync" {
		if output, err := exec.Command(path, "--version").Output(); err == nil {
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				if parts := strings.Fields(lines[0]); len(parts) >= 3 {
					return Check{
						Name:    tool,
						Passed:  true,
						Message: fmt.Sprintf("found at %s (version %s)", path, parts[2]),
					}
				}
			}
		}
	}

	return Check{
		Name:    tool,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkTaskCount verifies there is something to back up.
func checkTaskCount(tasks []config.Task) Check {
	if len(tasks) == 0 {
		return Check{
			Name:    "tasks",
			Passed:  false,
			Message: "no backup tasks selected",
		}
	}
	return Check{
		Name:    "tasks",
		Passed:  true,
		Message: fmt.Sprintf("%d task(s) configured", len(tasks)),
	}
}

// checkSource verifies the task's source directory exists.
func checkSource(task config.Task) Check {
	info, err := os.Stat(task.Source)
	if os.IsNotExist(err) {
		return Check{
			Name:    "source",
			Passed:  false,
			Message: fmt.Sprintf("%s: %s does not exist", task.Name, task.Source),
		}
	}
	if err != nil {
		return Check{
			Name:    "source",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", task.Name, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "source",
			Passed:  false,
			Message: fmt.Sprintf("%s: %s is not a directory", task.Name, task.Source),
		}
	}
	return Check{
		Name:    "source",
		Passed:  true,
		Message: fmt.Sprintf("%s: %s", task.Name, task.Source),
	}
}

// checkDestination probes whether the destination can be created.
// Warning only: permissions can change before the run, and the copy
// itself reports the authoritative error.
func checkDestination(task config.Task) Check {
	dir := nearestExisting(task.Destination)
	if writableDir(dir) {
		return Check{
			Name:    "destination",
			Passed:  true,
			Message: fmt.Sprintf("%s: %s is writable", task.Name, dir),
		}
	}
	return Check{
		Name:    "destination",
		Passed:  true,
		Warning: true,
		Message: fmt.Sprintf("%s: %s is not writable", task.Name, dir),
	}
}

// checkDiskSpace warns when the destination filesystem is low.
// A full mirror can need as much space as the source holds, which is
// unknown before the tool scans, so this is only a floor.
func checkDiskSpace(task config.Task) Check {
	dir := nearestExisting(task.Destination)
	free, err := diskFree(dir)
	if err != nil {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s: unable to check free space: %v", task.Name, err),
		}
	}

	freeMiB := int(free / (1 << 20))
	return Check{
		Name:     "disk_space",
		Required: minFreeMiB,
		Actual:   freeMiB,
		Passed:   true,
		Warning:  freeMiB < minFreeMiB,
		Message:  fmt.Sprintf("%s: %d MiB free at %s", task.Name, freeMiB, dir),
	}
}

// nearestExisting walks up from path to the closest directory that
// exists. The destination itself usually does not exist before the
// first run.
func nearestExisting(path string) string {
	dir := filepath.Clean(path)
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "rsync":
		return "install rsync (apt install rsync / brew install rsync)"
	case "robocopy":
		return "robocopy ships with Windows; check that C:\\Windows\\System32 is in PATH"
	case "source":
		return "fix the source path in backup_tasks or remove the task"
	case "tasks":
		return "add backup_tasks entries to the config file"
	default:
		return "see documentation"
	}
}
