// Package sysinfo collects hardware and software facts from every node
// in the fleet and flags the facts that should match but don't.
package sysinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/grouper"
)

// ProbeResult holds one probe's outcome on one node.
type ProbeResult struct {
	Command  string `json:"command"`
	Output   string `json:"output,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NodeInfo is everything collected from one node.
type NodeInfo struct {
	Node        string                 `json:"node"`
	CollectedAt time.Time              `json:"collected_at"`
	Probes      map[string]ProbeResult `json:"probes"`
}

// Report is the outcome of a collection run across the fleet.
type Report struct {
	Nodes map[string]*NodeInfo

	probes  []Probe
	byProbe map[string][]*executor.HostResult
}

// Mismatch is a comparable probe whose output differs across nodes.
type Mismatch struct {
	Probe  string
	Groups *grouper.Groups
}

// Collector runs the probe table across nodes through an executor. The
// executor's runner decides whether commands go over SSH or run on this
// machine, so collection code is the same either way.
type Collector struct {
	exec   *executor.Executor
	probes []Probe
}

// NewCollector creates a Collector using the full probe table.
func NewCollector(exec *executor.Executor) *Collector {
	return &Collector{exec: exec, probes: Probes()}
}

// Collect runs every probe on every node, one probe at a time across
// the fleet. Probe failures are recorded in the report, not returned as
// errors; only an empty node list or a dead context aborts collection.
func (c *Collector) Collect(ctx context.Context, nodes []string) (*Report, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes to collect from")
	}

	report := &Report{
		Nodes:   make(map[string]*NodeInfo, len(nodes)),
		probes:  c.probes,
		byProbe: make(map[string][]*executor.HostResult, len(c.probes)),
	}
	now := time.Now().UTC()
	for _, node := range nodes {
		report.Nodes[node] = &NodeInfo{
			Node:        node,
			CollectedAt: now,
			Probes:      make(map[string]ProbeResult, len(c.probes)),
		}
	}

	for _, probe := range c.probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results := c.exec.Execute(ctx, nodes, probe.shellCommand())
		report.byProbe[probe.Name] = results
		for _, res := range results {
			report.Nodes[res.Host].Probes[probe.Name] = newProbeResult(probe, res)
		}
		log.Debug().Str("probe", probe.Name).Int("nodes", len(nodes)).Msg("probe complete")
	}
	return report, nil
}

func newProbeResult(probe Probe, res *executor.HostResult) ProbeResult {
	pr := ProbeResult{
		Command:  probe.Command,
		ExitCode: res.ExitCode,
	}
	if res.Err != nil {
		pr.Error = res.Err.Error()
		return pr
	}
	if res.ExitCode == skipExitCode && len(probe.Depends) > 0 {
		pr.Skipped = true
		return pr
	}
	pr.Output = strings.TrimRight(string(res.Stdout), "\n")
	pr.Stderr = strings.TrimRight(string(res.Stderr), "\n")
	return pr
}

// Mismatches returns the comparable probes whose output is not
// identical on every node, grouped the same way the exec command groups
// output. Probes skipped everywhere form a single group and are not
// flagged.
func (r *Report) Mismatches() []Mismatch {
	var out []Mismatch
	for _, probe := range r.probes {
		if !probe.Compare {
			continue
		}
		g := grouper.Collate(r.byProbe[probe.Name])
		if len(g.Sets) > 1 {
			out = append(out, Mismatch{Probe: probe.Name, Groups: g})
		}
	}
	return out
}

// NodeNames returns the collected node names in sorted order.
func (r *Report) NodeNames() []string {
	names := make([]string, 0, len(r.Nodes))
	for name := range r.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteAll writes one sysinfo-<node>.json per node into dir, creating
// it as needed, and returns the written paths in node name order.
func (r *Report) WriteAll(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var paths []string
	for _, name := range r.NodeNames() {
		path, err := writeNode(dir, r.Nodes[name])
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeNode(dir string, info *NodeInfo) (string, error) {
	path := filepath.Join(dir, "sysinfo-"+info.Node+".json")
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", info.Node, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
