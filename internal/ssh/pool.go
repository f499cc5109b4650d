package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/benchfleet/benchfleet/internal/executor"
)

// Pool keeps one live connection per node for the length of a run, so
// preflight, deploy, and every benchmark ride the same session instead
// of redialing. It satisfies the executor's Runner contract. Commands
// that fail with a transport-looking error get the connection dropped
// and one fresh attempt.
type Pool struct {
	opts  Options
	nodes map[string]NodeConfig

	mu      sync.Mutex
	live    map[string]*Client
	dialing map[string]chan dialOutcome
}

// dialOutcome is broadcast to every goroutine waiting on the same
// node's dial.
type dialOutcome struct {
	client *Client
	err    error
}

// NewPool creates an empty pool; connections are dialed on first use.
func NewPool(opts Options, nodes map[string]NodeConfig) *Pool {
	return &Pool{
		opts:    opts,
		nodes:   nodes,
		live:    make(map[string]*Client),
		dialing: make(map[string]chan dialOutcome),
	}
}

// Run executes command on node over the pooled connection, dialing it
// first if needed. A stale connection is dropped and retried once.
func (p *Pool) Run(ctx context.Context, node string, command string) *executor.HostResult {
	res := &executor.HostResult{Host: node}

	out, err := p.runOnce(ctx, node, command)
	if err != nil && stale(err) {
		p.drop(node)
		out, err = p.runOnce(ctx, node, command)
	}

	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.ExitCode = out.Exit
	res.Err = err
	return res
}

func (p *Pool) runOnce(ctx context.Context, node string, command string) (Output, error) {
	client, err := p.Client(ctx, node)
	if err != nil {
		return Output{Exit: -1}, fmt.Errorf("connect: %w", err)
	}
	return client.Run(ctx, command)
}

// Client returns the pooled connection for node, dialing it if needed.
// Pooled clients stay open; callers must not close them. Concurrent
// calls for one node share a single dial.
func (p *Pool) Client(ctx context.Context, node string) (*Client, error) {
	p.mu.Lock()

	if client, ok := p.live[node]; ok {
		p.mu.Unlock()
		return client, nil
	}

	if ch, ok := p.dialing[node]; ok {
		p.mu.Unlock()
		select {
		case got := <-ch:
			ch <- got // pass it on to the next waiter
			return got.client, got.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ch := make(chan dialOutcome, 1)
	p.dialing[node] = ch
	p.mu.Unlock()

	opts, target := p.opts.forNode(p.nodes, node)
	client, err := Dial(ctx, target, opts)

	p.mu.Lock()
	delete(p.dialing, node)
	if err == nil {
		p.live[node] = client
	}
	p.mu.Unlock()

	ch <- dialOutcome{client: client, err: err}
	return client, err
}

// Connected reports whether a live connection exists for node.
func (p *Pool) Connected(node string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[node]
	return ok
}

// drop discards node's connection so the next command redials.
func (p *Pool) drop(node string) {
	p.mu.Lock()
	client, ok := p.live[node]
	delete(p.live, node)
	p.mu.Unlock()
	if ok {
		client.Close()
	}
}

// Close closes every live connection and resets the pool for reuse.
func (p *Pool) Close() error {
	p.mu.Lock()
	live := p.live
	p.live = make(map[string]*Client)
	p.mu.Unlock()

	var first error
	for _, client := range live {
		if err := client.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// stale reports whether an error looks like a dead connection worth one
// redial. Auth failures and context expiry are permanent as far as a
// retry is concerned.
func stale(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
