// Package executor fans a command out across the fleet with bounded
// concurrency and a per-node deadline. It knows nothing about SSH; any
// Runner can sit underneath it.
package executor

import (
	"context"
	"sync"
	"time"
)

// Runner executes one command on one node and reports what happened.
// The ssh pool, the one-shot ssh runner, and the local runner all
// implement it.
type Runner interface {
	Run(ctx context.Context, host string, command string) *HostResult
}

// HostResult is the outcome of one command on one node. Err carries
// connection and timeout failures; a command that ran but exited
// non-zero has a nil Err and a non-zero ExitCode.
type HostResult struct {
	Host     string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error
}

// OK reports whether the command ran and exited zero.
func (r *HostResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Executor owns the fan-out policy: how many nodes run at once and how
// long each may take.
type Executor struct {
	runner      Runner
	concurrency int
	timeout     time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency caps how many nodes run at once. Non-positive values
// keep the default.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the per-node command deadline. Non-positive values
// keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an Executor over runner. The defaults, 8 nodes at a time
// and five minutes per command, mirror the config package.
func New(runner Runner, opts ...Option) *Executor {
	e := &Executor{runner: runner, concurrency: 8, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs command on every host at once, bounded by the
// concurrency cap. Results come back in input order regardless of which
// node finished first.
func (e *Executor) Execute(ctx context.Context, hosts []string, command string) []*HostResult {
	return e.ExecuteWithTimeout(ctx, hosts, command, e.timeout)
}

// ExecuteWithTimeout is Execute with the per-node deadline overridden
// for this call, so a long benchmark can get a bigger budget than a
// quick probe without rebuilding the executor. A non-positive timeout
// falls back to the executor's own.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, hosts []string, command string, timeout time.Duration) []*HostResult {
	results := make([]*HostResult, len(hosts))
	if len(hosts) == 0 {
		return results
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(e.concurrency, len(hosts)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				// Jobs picked up after cancellation are recorded, not run,
				// so every input host still gets a result slot.
				if err := ctx.Err(); err != nil {
					results[idx] = &HostResult{Host: hosts[idx], Err: err}
					continue
				}
				results[idx] = e.runOne(ctx, hosts[idx], command, timeout)
			}
		}()
	}

	for i := range hosts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// runOne executes command on a single host under its own deadline.
func (e *Executor) runOne(ctx context.Context, host, command string, timeout time.Duration) *HostResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := e.runner.Run(runCtx, host, command)
	res.Host = host
	res.Duration = time.Since(start)

	// A runner that swallows the deadline still gets it recorded.
	if res.Err == nil && runCtx.Err() == context.DeadlineExceeded {
		res.Err = context.DeadlineExceeded
	}
	return res
}
