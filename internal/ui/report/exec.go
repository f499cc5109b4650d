package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/grouper"
)

// Exec renders collated fleet output: one block per agreement set with
// outliers diffed against the majority, then the unreachable and
// timed-out nodes, then a one-line tally.
func Exec(g *grouper.Groups, errorsOnly, color bool) string {
	var b strings.Builder

	succeeded, nonZero := 0, 0
	for _, set := range g.Sets {
		if set.ExitCode != 0 {
			nonZero += len(set.Nodes)
		} else {
			succeeded += len(set.Nodes)
		}
		if errorsOnly && set.ExitCode == 0 {
			continue
		}
		writeSet(&b, &set, len(g.Sets), color)
		b.WriteString("\n")
	}
	for _, r := range g.Errored {
		writeUnreachable(&b, r, "failed", "unknown error", color)
		b.WriteString("\n")
	}
	for _, r := range g.TimedOut {
		writeUnreachable(&b, r, "timed out", "timeout", color)
		b.WriteString("\n")
	}

	b.WriteString(tally(succeeded, nonZero, len(g.Errored), len(g.TimedOut)))
	b.WriteString("\n")
	return b.String()
}

// ExecJSON serializes per-node results as a JSON array.
func ExecJSON(results []*executor.HostResult) ([]byte, error) {
	type nodeResult struct {
		Node     string `json:"node"`
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exit_code"`
		Duration string `json:"duration"`
		Error    string `json:"error,omitempty"`
	}

	out := make([]nodeResult, len(results))
	for i, r := range results {
		out[i] = nodeResult{
			Node:     r.Host,
			Stdout:   string(r.Stdout),
			Stderr:   string(r.Stderr),
			ExitCode: r.ExitCode,
			Duration: r.Duration.String(),
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

func writeSet(b *strings.Builder, set *grouper.Set, totalSets int, color bool) {
	n := len(set.Nodes)
	word := "nodes"
	if n == 1 {
		word = "node"
	}

	var label, tone string
	switch {
	case set.ExitCode != 0:
		label = fmt.Sprintf(" %d %s exited with code %d:", n, word, set.ExitCode)
		tone = colorRed
	case set.Majority:
		if totalSets == 1 && n == 1 {
			// "1 node identical" reads oddly for a fleet of one.
			label = " 1 node:"
		} else {
			label = fmt.Sprintf(" %d %s identical:", n, word)
		}
		tone = colorGreen
	default:
		verb := "differ"
		if n == 1 {
			verb = "differs"
		}
		label = fmt.Sprintf(" %d %s %s:", n, word, verb)
		tone = colorYellow
	}
	b.WriteString(colorize(label, tone, color))
	b.WriteString("\n   ")
	b.WriteString(colorize(strings.Join(set.Nodes, ", "), colorCyan, color))
	b.WriteString("\n")

	for _, line := range bodyLines(set.Stdout) {
		b.WriteString("   ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range bodyLines(set.Stderr) {
		b.WriteString("   ")
		b.WriteString(colorize("stderr: "+line, colorRed, color))
		b.WriteString("\n")
	}

	if !set.Majority && set.Diff != "" {
		b.WriteString("\n")
		writeDiff(b, set.Diff, color)
	}
}

func writeDiff(b *strings.Builder, diff string, color bool) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		b.WriteString("   ")
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			b.WriteString(colorize(line, colorCyan, color))
		case strings.HasPrefix(line, "+"):
			b.WriteString(colorize(line, colorGreen, color))
		case strings.HasPrefix(line, "-"):
			b.WriteString(colorize(line, colorRed, color))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
}

func writeUnreachable(b *strings.Builder, r *executor.HostResult, what, fallback string, color bool) {
	b.WriteString(colorize(" 1 node "+what+":", colorRed, color))
	b.WriteString("\n   ")
	b.WriteString(colorize(r.Host, colorCyan, color))
	msg := fallback
	if r.Err != nil {
		msg = r.Err.Error()
	}
	fmt.Fprintf(b, " (%s)\n", msg)
}

func tally(succeeded, nonZero, errored, timedOut int) string {
	parts := []string{fmt.Sprintf("%d succeeded", succeeded)}
	if nonZero > 0 {
		parts = append(parts, fmt.Sprintf("%d non-zero exit", nonZero))
	}
	if errored > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", errored))
	}
	if timedOut > 0 {
		parts = append(parts, fmt.Sprintf("%d timeout", timedOut))
	}
	return strings.Join(parts, ", ")
}

func bodyLines(p []byte) []string {
	s := strings.TrimRight(string(p), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
