// Package localexec runs commands on the machine benchfleet itself is
// running on. It implements the same Runner contract as the ssh package,
// so nodes marked connection=local flow through the executor like any
// other node.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/benchfleet/benchfleet/internal/executor"
)

// Runner implements executor.Runner for local nodes. Commands go through
// the shell, mirroring how the ssh runner hands them to the remote shell,
// so a benchmark command behaves the same locally as on any other node.
type Runner struct {
	shell string
	dir   string
	env   []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory for executed commands.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(vars ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, vars...)
	}
}

// New creates a Runner. Commands run under /bin/sh -c.
func New(opts ...Option) *Runner {
	r := &Runner{shell: "/bin/sh"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a command locally. The host argument is only recorded in
// the result.
func (r *Runner) Run(ctx context.Context, host string, command string) *executor.HostResult {
	result := &executor.HostResult{Host: host}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	if err == nil {
		return result
	}
	if ctx.Err() != nil {
		// The context killed the process; report the deadline or
		// cancellation rather than "signal: killed".
		result.Err = ctx.Err()
		return result
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else {
		result.Err = err
	}
	return result
}

// Output runs command through the shell and returns its stdout with
// surrounding whitespace trimmed. On failure the error carries the
// command and anything it printed.
func Output(ctx context.Context, command string) (string, error) {
	return run(ctx, command, false)
}

// Combined is Output with stderr merged into stdout, for tools that
// report on either stream.
func Combined(ctx context.Context, command string) (string, error) {
	return run(ctx, command, true)
}

func run(ctx context.Context, command string, merge bool) (string, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if merge {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w\n%s%s", command, err, stdout.Bytes(), stderr.Bytes())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Look reports the absolute path of tool, or an error when it is not on
// PATH.
func Look(tool string) (string, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", tool)
	}
	return path, nil
}
