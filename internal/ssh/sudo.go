package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// promptRe matches the password prompt lines sudo emits, after trimming.
var promptRe = regexp.MustCompile(`^\[sudo\] password for [^:]*:$|^Password:$`)

// RunSudo executes command under sudo -S, feeding the password on
// stdin. A PTY is requested so the prompt lands on the output stream
// instead of blocking; servers that refuse the PTY still work because
// -S reads stdin either way. Both streams are captured together, with
// prompt lines stripped, and returned as stdout.
func (c *Client) RunSudo(ctx context.Context, command, password string) (Output, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return Output{Exit: -1}, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	// Best effort: not every sshd grants a PTY.
	_ = session.RequestPty("xterm", 40, 80, modes)

	var merged capture
	session.Stdout = &merged
	session.Stderr = &merged

	stdin, err := session.StdinPipe()
	if err != nil {
		return Output{Exit: -1}, fmt.Errorf("stdin pipe: %w", err)
	}

	if err := session.Start("sudo -S " + command); err != nil {
		return Output{Exit: -1}, fmt.Errorf("start command: %w", err)
	}

	// Under NOPASSWD sudo never reads the password, so the write is
	// best effort too.
	io.WriteString(stdin, password+"\n")
	stdin.Close()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return Output{Exit: -1}, ctx.Err()
	case err := <-done:
		out := Output{Stdout: scrubPrompt(merged.take())}
		if err != nil {
			var exit *ssh.ExitError
			if !errors.As(err, &exit) {
				out.Exit = -1
				return out, err
			}
			out.Exit = exit.ExitStatus()
		}
		return out, nil
	}
}

// scrubPrompt removes sudo password prompt lines from captured output,
// leaving everything else byte for byte.
func scrubPrompt(output []byte) []byte {
	lines := strings.SplitAfter(string(output), "\n")
	var b strings.Builder
	for _, line := range lines {
		if promptRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		b.WriteString(line)
	}
	return []byte(b.String())
}
