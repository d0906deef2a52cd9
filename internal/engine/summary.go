package engine

import (
	"time"

	"github.com/randomizedcoder/go-folder-mirror/internal/exitcode"
	"github.com/randomizedcoder/go-folder-mirror/internal/runner"
)

// Summary is the outcome of a whole run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Results   []*runner.Result
}

// ExitCode maps the run outcome onto the process exit status. A run
// cut short by cancellation is not a success even with zero failures.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 || len(s.Results) < s.Total {
		return exitcode.Failure
	}
	return exitcode.Success
}
