package ssh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Output is what one command produced on a node. Exit carries the
// remote status; a nonzero exit is data, not an error.
type Output struct {
	Stdout []byte
	Stderr []byte
	Exit   int
}

// Client is an established connection to one node. Commands run in
// fresh sessions on the shared connection, so a Client supports any
// number of sequential Run calls.
type Client struct {
	node string
	conn *ssh.Client
	opts Options
	hops []*Client // jump-host connections, closed innermost first
}

// Node returns the inventory name this client was dialed for.
func (c *Client) Node() string {
	return c.node
}

// Conn exposes the raw connection for layers that open their own
// channels on it, such as SFTP.
func (c *Client) Conn() *ssh.Client {
	return c.conn
}

// Run executes command on the node and captures both streams. The
// returned error covers session and transport failures only; remote
// exit status lands in Output.Exit. Cancelling ctx kills the session.
func (c *Client) Run(ctx context.Context, command string) (Output, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return Output{Exit: -1}, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr capture
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return Output{Exit: -1}, ctx.Err()
	case err := <-done:
		out := Output{Stdout: stdout.take(), Stderr: stderr.take()}
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

// Close shuts the connection down, then any jump-host connections
// behind it, innermost first. The first error wins.
func (c *Client) Close() error {
	var first error
	if c.conn != nil {
		first = c.conn.Close()
	}
	for i := len(c.hops) - 1; i >= 0; i-- {
		if err := c.hops[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// capture collects a session stream. The transport writes from its own
// goroutine and Close can race a late write, so access is locked.
type capture struct {
	mu  sync.Mutex
	buf []byte
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *capture) take() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}
