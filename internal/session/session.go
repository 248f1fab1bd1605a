// Package session is the execution layer that physically interacts with
// the target host. It runs one shell command at a time - locally or over
// SSH - streams the command's output as it arrives, and enforces a dual
// timeout: an idle deadline that slides forward on every output byte,
// and a hard total deadline.
//
// Design principles:
//   - Streamed capture: output is read incrementally, never buffered
//     until exit, so a silent or runaway command can be detected early.
//   - Dual timeout: idle kills catch interactive prompts and hangs,
//     total kills catch unbounded operations.
//   - Forceful termination: a timed-out process is killed (process
//     group on unix), not abandoned, so reader goroutines always drain.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Sentinel exit codes for killed commands. Real shells use positive
// codes, so negative values are unambiguous to the oracle.
const (
	// ExitIdleTimeout means no output arrived within the idle window.
	ExitIdleTimeout = -1

	// ExitTotalTimeout means the command outlived its total budget.
	ExitTotalTimeout = -2
)

// ErrConnection marks session establishment failures. These are fatal
// for the run: without a session nothing can execute.
var ErrConnection = errors.New("session connection failed")

// Result is the outcome of one command execution.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the command exited cleanly.
func (r Result) Ok() bool { return r.ExitCode == 0 }

// RunOptions bounds a single command execution.
type RunOptions struct {
	// TotalTimeout is the wall-clock budget regardless of activity.
	TotalTimeout time.Duration

	// IdleTimeout is the maximum silence before the command is killed.
	IdleTimeout time.Duration

	// Mirror receives output bytes as they stream, when non-nil.
	Mirror io.Writer
}

func (o RunOptions) withDefaults() RunOptions {
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = 10 * time.Minute
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Minute
	}
	return o
}

// Session executes commands against one target host. A session runs
// exactly one command at a time and is not safe for concurrent Run
// calls. Callers own the session for the lifetime of one deployment
// run and must Close it on every exit path.
type Session interface {
	// Run executes command under the dual timeout. Timeouts are
	// reported in the Result (sentinel exit codes), not as errors;
	// the returned error covers launch failures only.
	Run(ctx context.Context, command string, opts RunOptions) (Result, error)

	// Close releases the underlying transport.
	Close() error
}

func idleTimeoutDiagnostic(d time.Duration) string {
	return fmt.Sprintf("IDLE_TIMEOUT: no output for %s. Possible causes:\n"+
		"1. Command is waiting for interactive input - use a non-interactive alternative\n"+
		"2. Long-running silent operation - poll progress incrementally with short sleep checks instead", d)
}

func totalTimeoutDiagnostic(d time.Duration) string {
	return fmt.Sprintf("TOTAL_TIMEOUT: command exceeded %s total execution time. "+
		"For long-running operations, poll incrementally with short sleep checks "+
		"instead of one long blocking call.", d)
}

// rewriteSudo makes privilege escalation non-interactive when a stored
// credential is available: sudo reads the password from stdin (-S)
// instead of prompting on a TTY. Returns the rewritten command and
// whether the password must be written to stdin.
func rewriteSudo(command, password string) (string, bool) {
	trimmed := strings.TrimSpace(command)
	if password == "" || !strings.HasPrefix(trimmed, "sudo ") {
		return command, false
	}
	if !strings.Contains(command, "sudo -S") {
		command = strings.Replace(command, "sudo ", "sudo -S -p '' ", 1)
	}
	return command, true
}
