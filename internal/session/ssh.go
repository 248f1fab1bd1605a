package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// envPreamble loads login-shell environment before each command, since
// ssh exec channels skip profile files and PATH would otherwise miss
// user-installed toolchains.
const envPreamble = `[ -f /etc/profile ] && . /etc/profile >/dev/null 2>&1; ` +
	`[ -f ~/.profile ] && . ~/.profile >/dev/null 2>&1; ` +
	`[ -f ~/.bashrc ] && . ~/.bashrc >/dev/null 2>&1; `

// Credentials describe how to reach and authenticate with the target.
type Credentials struct {
	Host       string
	Port       int
	User       string
	AuthMethod string // password, key
	Password   string
	KeyPath    string
	Passphrase string
	Timeout    time.Duration
}

// SSHSession executes commands on a remote host over one SSH
// connection, opening a fresh exec channel per command.
type SSHSession struct {
	creds  Credentials
	client *ssh.Client
}

// NewSSHSession dials the target. Dial failures are wrapped in
// ErrConnection and are fatal for the run.
func NewSSHSession(creds Credentials) (*SSHSession, error) {
	if creds.Port == 0 {
		creds.Port = 22
	}
	if creds.Timeout == 0 {
		creds.Timeout = 15 * time.Second
	}

	auth, err := authMethods(creds)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:    creds.User,
		Auth:    auth,
		Timeout: creds.Timeout,
		// Unattended deployments cannot answer host key prompts; the
		// target host is operator-supplied configuration.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := net.JoinHostPort(creds.Host, fmt.Sprintf("%d", creds.Port))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	return &SSHSession{creds: creds, client: client}, nil
}

func authMethods(creds Credentials) ([]ssh.AuthMethod, error) {
	switch creds.AuthMethod {
	case "password", "":
		return []ssh.AuthMethod{ssh.Password(creds.Password)}, nil
	case "key":
		key, err := os.ReadFile(creds.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read key %s: %v", ErrConnection, creds.KeyPath, err)
		}
		var signer ssh.Signer
		if creds.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(creds.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse key: %v", ErrConnection, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown auth method %q", ErrConnection, creds.AuthMethod)
	}
}

// Run executes command on the remote host under the dual timeout.
func (s *SSHSession) Run(ctx context.Context, command string, opts RunOptions) (Result, error) {
	opts = opts.withDefaults()

	sess, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("%w: open channel: %v", ErrConnection, err)
	}
	defer sess.Close()

	actual, needsPassword := rewriteSudo(command, s.creds.Password)
	actual = envPreamble + actual

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if needsPassword {
		sess.Stdin = strings.NewReader(s.creds.Password + "\n")
	}

	if err := sess.Start(actual); err != nil {
		return Result{}, fmt.Errorf("%w: start %q: %v", ErrConnection, firstWord(command), err)
	}

	kill := func() {
		// Best effort: many servers ignore exec-channel signals, so
		// closing the channel is the reliable half of the kill.
		sess.Signal(ssh.SIGKILL)
		sess.Close()
	}

	out, errOut, kind := supervise(ctx, opts, stdout, stderr, kill)

	exitCode := 0
	if waitErr := sess.Wait(); waitErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitStatus()
		} else {
			exitCode = -1
		}
	}

	return buildResult(command, out, errOut, exitCode, kind, opts), ctxErr(ctx, kind)
}

// Close tears down the SSH connection.
func (s *SSHSession) Close() error {
	return s.client.Close()
}
