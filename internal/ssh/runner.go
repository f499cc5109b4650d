package ssh

import (
	"context"
	"fmt"

	"github.com/benchfleet/benchfleet/internal/executor"
)

// sudo escalation modes for the one-shot runner.
const (
	sudoOff    = iota // run the command as the login user
	sudoPrefix        // prepend sudo, for NOPASSWD nodes
	sudoPTY           // deliver a password over a PTY via sudo -S
)

// Runner dials a fresh connection for every command. It satisfies the
// executor's Runner contract for SSH nodes; use a Pool instead when a
// sequence of commands should share connections.
type Runner struct {
	opts     Options
	nodes    map[string]NodeConfig
	sudo     int
	password string
}

// NewRunner creates a one-shot runner from the shared options and
// per-node overrides.
func NewRunner(opts Options, nodes map[string]NodeConfig) *Runner {
	return &Runner{opts: opts, nodes: nodes}
}

// NewSudoRunner is NewRunner with every command escalated. An empty
// password assumes NOPASSWD sudo and just prefixes the command; a
// non-empty one is delivered over a PTY.
func NewSudoRunner(opts Options, nodes map[string]NodeConfig, password string) *Runner {
	mode := sudoPrefix
	if password != "" {
		mode = sudoPTY
	}
	return &Runner{opts: opts, nodes: nodes, sudo: mode, password: password}
}

// Client dials a one-shot connection to node. The caller releases it.
func (r *Runner) Client(ctx context.Context, node string) (*Client, error) {
	opts, target := r.opts.forNode(r.nodes, node)
	return Dial(ctx, target, opts)
}

// Release closes a client obtained from Client. One-shot connections
// must not outlive their command.
func (r *Runner) Release(c *Client) error {
	return c.Close()
}

// Run dials node, executes command, and tears the connection down.
func (r *Runner) Run(ctx context.Context, node string, command string) *executor.HostResult {
	res := &executor.HostResult{Host: node}

	client, err := r.Client(ctx, node)
	if err != nil {
		res.Err = Classify(node, fmt.Errorf("connect: %w", err))
		return res
	}
	defer client.Close()

	var out Output
	switch r.sudo {
	case sudoPTY:
		out, err = client.RunSudo(ctx, command, r.password)
	case sudoPrefix:
		out, err = client.Run(ctx, "sudo "+command)
	default:
		out, err = client.Run(ctx, command)
	}
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.ExitCode = out.Exit
	res.Err = err
	return res
}
