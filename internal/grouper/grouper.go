// Package grouper collates per-node command results by identical
// output, so a fleet that agrees reads as one block and the odd node
// out is impossible to miss. The largest set is the majority; every
// other set carries a diff against it.
package grouper

import (
	"context"
	"errors"
	"net"
	"sort"

	"github.com/benchfleet/benchfleet/internal/executor"
)

// Set is the nodes that produced one exact output, stderr and exit
// code included.
type Set struct {
	Nodes    []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Majority bool
	Diff     string // stdout diff against the majority; empty on the majority itself
}

// Groups is a collated fleet result: agreement sets plus the nodes
// that never produced output at all.
type Groups struct {
	Sets     []Set
	Errored  []*executor.HostResult
	TimedOut []*executor.HostResult
}

// Unanimous reports whether every node produced the same output, with
// none erroring or timing out.
func (g *Groups) Unanimous() bool {
	return len(g.Sets) == 1 && len(g.Errored) == 0 && len(g.TimedOut) == 0
}

// signature keys a set: two results land together only when all three
// parts match exactly. Exit code included, so 20 nodes failing the
// same way form one set instead of 20 lines.
type signature struct {
	stdout string
	stderr string
	exit   int
}

// Collate splits results into agreement sets and failure buckets. The
// majority set comes first with its nodes sorted; ties go to the
// output seen earliest. Outlier sets follow in first-seen order, each
// with a diff against the majority.
func Collate(results []*executor.HostResult) *Groups {
	g := &Groups{}

	bySig := make(map[signature]*Set)
	var order []signature

	for _, r := range results {
		if r.Err != nil {
			if timedOut(r.Err) {
				g.TimedOut = append(g.TimedOut, r)
			} else {
				g.Errored = append(g.Errored, r)
			}
			continue
		}
		sig := signature{string(r.Stdout), string(r.Stderr), r.ExitCode}
		set, ok := bySig[sig]
		if !ok {
			set = &Set{Stdout: r.Stdout, Stderr: r.Stderr, ExitCode: r.ExitCode}
			bySig[sig] = set
			order = append(order, sig)
		}
		set.Nodes = append(set.Nodes, r.Host)
	}
	if len(order) == 0 {
		return g
	}

	major := order[0]
	for _, sig := range order[1:] {
		if len(bySig[sig].Nodes) > len(bySig[major].Nodes) {
			major = sig
		}
	}

	lead := bySig[major]
	lead.Majority = true
	sort.Strings(lead.Nodes)
	g.Sets = append(g.Sets, *lead)

	for _, sig := range order {
		if sig == major {
			continue
		}
		set := bySig[sig]
		sort.Strings(set.Nodes)
		set.Diff = diffAgainst(major.stdout, sig.stdout)
		g.Sets = append(g.Sets, *set)
	}
	return g
}

// timedOut distinguishes deadline expiry from other failures, so hung
// nodes are reported apart from unreachable ones.
func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
