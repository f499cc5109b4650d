// Package transfer moves files between the operator's machine and the
// fleet over SFTP: benchmark bundles out to every node, result files
// back in. Every copy is verified by reading the remote file back and
// comparing SHA-256 digests before it counts as delivered.
package transfer

import (
	"context"
	"sync"
	"time"

	fleetssh "github.com/benchfleet/benchfleet/internal/ssh"
)

// Result is the outcome of one file transfer on one node.
type Result struct {
	Node     string
	Bytes    int64
	SHA256   string
	Duration time.Duration
	Err      error
}

// Dialer hands out SSH clients by node name. Both the connection pool
// and the one-shot runner satisfy it.
type Dialer interface {
	Client(ctx context.Context, node string) (*fleetssh.Client, error)
}

// releaser marks dialers whose clients are one-shot and must be given
// back. Pooled clients stay open, so the pool deliberately lacks this.
type releaser interface {
	Release(c *fleetssh.Client) error
}

// Fleet fans file transfers out across nodes with bounded concurrency
// and a per-node deadline.
type Fleet struct {
	dialer      Dialer
	concurrency int
	timeout     time.Duration
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithConcurrency caps how many nodes transfer at once.
func WithConcurrency(n int) Option {
	return func(f *Fleet) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithTimeout sets the per-node transfer deadline.
func WithTimeout(d time.Duration) Option {
	return func(f *Fleet) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// New creates a Fleet over dialer. Defaults mirror the config package:
// 8 nodes at a time, five minutes per transfer.
func New(dialer Dialer, opts ...Option) *Fleet {
	f := &Fleet{dialer: dialer, concurrency: 8, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// op is one verified transfer over an established client, reporting
// bytes moved and the digest.
type op func(ctx context.Context, client *fleetssh.Client, node string) (int64, string, error)

// Push uploads localPath to remotePath on every node. Results come
// back in input order.
func (f *Fleet) Push(ctx context.Context, nodes []string, localPath, remotePath string, fn Progress) []*Result {
	return f.fanOut(ctx, nodes, func(ctx context.Context, client *fleetssh.Client, node string) (int64, string, error) {
		return pushOne(ctx, client.Conn(), localPath, remotePath, node, fn)
	})
}

// Pull downloads remotePath from every node into localDir/<node>/,
// keeping the remote base name. Results come back in input order.
func (f *Fleet) Pull(ctx context.Context, nodes []string, remotePath, localDir string, fn Progress) []*Result {
	return f.fanOut(ctx, nodes, func(ctx context.Context, client *fleetssh.Client, node string) (int64, string, error) {
		return pullOne(ctx, client.Conn(), remotePath, localDir, node, fn)
	})
}

func (f *Fleet) fanOut(ctx context.Context, nodes []string, run op) []*Result {
	results := make([]*Result, len(nodes))
	if len(nodes) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(f.concurrency, len(nodes)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = f.transferOne(ctx, nodes[idx], run)
			}
		}()
	}

	for i := range nodes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (f *Fleet) transferOne(ctx context.Context, node string, run op) *Result {
	res := &Result{Node: node}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	opCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	client, err := f.dialer.Client(opCtx, node)
	if err != nil {
		res.Err = err
		return res
	}
	if r, ok := f.dialer.(releaser); ok {
		defer r.Release(client)
	}

	res.Bytes, res.SHA256, res.Err = run(opCtx, client, node)
	return res
}
