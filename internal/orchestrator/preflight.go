package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/benchfleet/benchfleet/internal/executor"
)

// NodeFacts is what the preflight scan learned about one node.
type NodeFacts struct {
	Host   string
	Kernel string
	CPUs   int
	GPUs   int
}

// Preflight scans every node before anything runs: kernel, processor
// count, GPU count. An unreachable node fails the run here rather than
// halfway through a benchmark. Facts feed the GPU host filter.
func (o *Orchestrator) Preflight(ctx context.Context) ([]NodeFacts, error) {
	hosts := o.hosts()
	if len(hosts) == 0 {
		return nil, fmt.Errorf("inventory has no nodes")
	}

	// The three sweeps run concurrently; with a pooled runner each node
	// is still dialed once. Only the kernel probe gates the run, and its
	// failure cancels the other two.
	var kernels, cpus, gpus []*executor.HostResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kernels = o.exec.Execute(gctx, hosts, "uname -sr")
		var unreachable []string
		for _, res := range kernels {
			if res.Err != nil {
				unreachable = append(unreachable, fmt.Sprintf("%s: %v", res.Host, res.Err))
			}
		}
		if len(unreachable) > 0 {
			return fmt.Errorf("unreachable nodes:\n  %s", strings.Join(unreachable, "\n  "))
		}
		return nil
	})
	g.Go(func() error {
		cpus = o.exec.Execute(gctx, hosts, "nproc")
		return nil
	})
	g.Go(func() error {
		gpus = o.exec.Execute(gctx, hosts, "nvidia-smi -L 2>/dev/null | wc -l")
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	facts := make([]NodeFacts, len(hosts))
	o.facts = make(map[string]NodeFacts, len(hosts))
	for i, host := range hosts {
		f := NodeFacts{
			Host:   host,
			Kernel: strings.TrimSpace(string(kernels[i].Stdout)),
			CPUs:   lastFieldInt(string(cpus[i].Stdout)),
			GPUs:   lastFieldInt(string(gpus[i].Stdout)),
		}
		facts[i] = f
		o.facts[host] = f
		log.Debug().Str("host", host).Str("kernel", f.Kernel).Int("cpus", f.CPUs).Int("gpus", f.GPUs).Msg("preflight")
	}
	return facts, nil
}

// lastFieldInt parses the last whitespace-separated field as an
// integer, skipping any leading chatter. Zero when nothing parses.
func lastFieldInt(out string) int {
	f := strings.Fields(out)
	if len(f) == 0 {
		return 0
	}
	n, err := strconv.Atoi(f[len(f)-1])
	if err != nil {
		return 0
	}
	return n
}
