package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// LocalSession runs commands on the local host through the system
// shell. It mirrors the SSH variant's interface so the orchestrator is
// agnostic to where commands land.
type LocalSession struct {
	workDir      string
	sudoPassword string
}

// LocalOption configures a LocalSession.
type LocalOption func(*LocalSession)

// WithWorkDir sets the working directory for all commands.
func WithWorkDir(dir string) LocalOption {
	return func(s *LocalSession) { s.workDir = dir }
}

// WithLocalSudoPassword enables non-interactive sudo locally.
func WithLocalSudoPassword(password string) LocalOption {
	return func(s *LocalSession) { s.sudoPassword = password }
}

// NewLocalSession creates a local session. The working directory
// defaults to the user's home directory.
func NewLocalSession(opts ...LocalOption) *LocalSession {
	s := &LocalSession{}
	for _, opt := range opts {
		opt(s)
	}
	if s.workDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.workDir = home
		}
	}
	return s
}

// Run executes command under the dual timeout.
func (s *LocalSession) Run(ctx context.Context, command string, opts RunOptions) (Result, error) {
	opts = opts.withDefaults()

	actual, needsPassword := rewriteSudo(command, s.sudoPassword)

	cmd := shellCommand(actual)
	cmd.Dir = s.workDir
	cmd.Env = os.Environ()
	setProcAttr(cmd)

	if needsPassword {
		cmd.Stdin = strings.NewReader(s.sudoPassword + "\n")
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: start %q: %v", ErrConnection, firstWord(command), err)
	}

	out, errOut, kind := supervise(ctx, opts, stdout, stderr, func() { killProcess(cmd) })

	exitCode := 0
	if waitErr := cmd.Wait(); waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return buildResult(command, out, errOut, exitCode, kind, opts), ctxErr(ctx, kind)
}

// Close is a no-op for local sessions, present for Session symmetry.
func (s *LocalSession) Close() error { return nil }

func buildResult(command, stdout, stderr string, exitCode int, kind killKind, opts RunOptions) Result {
	res := Result{
		Command:  command,
		Stdout:   strings.TrimSpace(stdout),
		Stderr:   strings.TrimSpace(stderr),
		ExitCode: exitCode,
	}
	switch kind {
	case killIdle:
		res.ExitCode = ExitIdleTimeout
		res.Stderr = idleTimeoutDiagnostic(opts.IdleTimeout)
	case killTotal:
		res.ExitCode = ExitTotalTimeout
		res.Stderr = totalTimeoutDiagnostic(opts.TotalTimeout)
	}
	return res
}

func ctxErr(ctx context.Context, kind killKind) error {
	if kind == killContext {
		return ctx.Err()
	}
	return nil
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	return fields[0]
}
