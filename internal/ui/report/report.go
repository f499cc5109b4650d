// Package report renders run summaries and fleet consistency findings as
// aligned terminal tables.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benchfleet/benchfleet/internal/grouper"
	"github.com/benchfleet/benchfleet/internal/results"
	"github.com/benchfleet/benchfleet/internal/sysinfo"
)

// ANSI color codes shared by every renderer in the package.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorHeader = "\033[1;36m"
)

// Table renders rows as an ASCII table with column alignment and a dashed
// separator under the header. If color is true, the header is highlighted.
func Table(headers []string, rows [][]string, color bool) string {
	if len(rows) == 0 {
		return ""
	}

	// Calculate max widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, v := range row {
			if i < len(widths) && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	formatRow := func(values []string) string {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
		return strings.Join(parts, "  ")
	}

	var sb strings.Builder

	headerLine := formatRow(headers)
	if color {
		sb.WriteString(colorHeader)
		sb.WriteString(headerLine)
		sb.WriteString(colorReset)
	} else {
		sb.WriteString(headerLine)
	}
	sb.WriteString("\n")

	dashes := make([]string, len(widths))
	for i, w := range widths {
		dashes[i] = strings.Repeat("-", w)
	}
	sb.WriteString(strings.Join(dashes, "  "))
	sb.WriteString("\n")

	for _, row := range rows {
		sb.WriteString(formatRow(row))
		sb.WriteString("\n")
	}

	return sb.String()
}

// Summary renders the run rollup: the run identity, one table row per
// benchmark metric, and any per-benchmark failures.
func Summary(s *results.Summary, color bool) string {
	var b strings.Builder

	b.WriteString(s.Run.ID + "\n")
	fmt.Fprintf(&b, "  config:    %s\n", s.Run.Config)
	fmt.Fprintf(&b, "  inventory: %s\n", s.Run.Inventory)
	fmt.Fprintf(&b, "  nodes:     %s\n", strings.Join(s.Run.Hosts, ", "))
	if !s.Run.Finished.IsZero() {
		fmt.Fprintf(&b, "  duration:  %s\n", s.Run.Finished.Sub(s.Run.Started).Round(time.Second))
	}
	switch {
	case s.Run.NoDocker:
		b.WriteString("  mode:      no docker\n")
	case s.Run.Image != "":
		fmt.Fprintf(&b, "  mode:      image %s\n", s.Run.Image)
	default:
		b.WriteString("  mode:      bundle\n")
	}
	b.WriteString("\n")

	names := make([]string, 0, len(s.Benchmarks))
	for name := range s.Benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows [][]string
	for _, name := range names {
		bs := s.Benchmarks[name]
		metrics := make([]string, 0, len(bs.Metrics))
		for m := range bs.Metrics {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			red := bs.Metrics[m]
			rows = append(rows, []string{
				name,
				m,
				strconv.Itoa(red.Count),
				formatValue(red.Mean),
				formatValue(red.Min),
				formatValue(red.Max),
				formatValue(red.Stddev),
			})
		}
	}

	if len(rows) == 0 {
		b.WriteString("no metrics recorded\n")
	} else {
		b.WriteString(Table([]string{"BENCHMARK", "METRIC", "COUNT", "MEAN", "MIN", "MAX", "STDDEV"}, rows, color))
	}

	var failed []string
	for _, name := range names {
		if hosts := s.Benchmarks[name].Failed; len(hosts) > 0 {
			failed = append(failed, fmt.Sprintf("  %s: %s", name, strings.Join(hosts, ", ")))
		}
	}
	if len(failed) > 0 {
		b.WriteString("\nfailures:\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}

	return b.String()
}

// Mismatches renders the probes whose comparable output differs across the
// fleet: one block per probe listing each distinct value and the nodes that
// reported it.
func Mismatches(mm []sysinfo.Mismatch, color bool) string {
	if len(mm) == 0 {
		return "all comparable probes agree across the fleet\n"
	}

	var b strings.Builder
	verb := "differ"
	word := "probes"
	if len(mm) == 1 {
		verb = "differs"
		word = "probe"
	}
	fmt.Fprintf(&b, "%d %s %s across the fleet\n", len(mm), word, verb)

	for _, m := range mm {
		label := fmt.Sprintf(" %s: %d distinct values", m.Probe, len(m.Groups.Sets))
		b.WriteString(colorize(label, colorYellow, color))
		b.WriteString("\n")

		// Align the value column within the block.
		width := 0
		values := make([]string, len(m.Groups.Sets))
		for i, set := range m.Groups.Sets {
			values[i] = setValue(&set)
			if len(values[i]) > width {
				width = len(values[i])
			}
		}
		for i, set := range m.Groups.Sets {
			fmt.Fprintf(&b, "   %-*s  %s\n", width, values[i], colorize(strings.Join(set.Nodes, ", "), colorCyan, color))
		}
	}

	return b.String()
}

// setValue reduces an agreement set's output to a single display line.
func setValue(set *grouper.Set) string {
	s := strings.TrimSpace(string(set.Stdout))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i]) + " …"
	}
	if len(s) > 60 {
		s = s[:59] + "…"
	}
	if s != "" {
		return s
	}
	// Exit 127 is the probe guard reporting a missing tool.
	if set.ExitCode == 127 {
		return "(tool missing)"
	}
	if set.ExitCode != 0 {
		return fmt.Sprintf("(exit %d)", set.ExitCode)
	}
	return "(no output)"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func colorize(text, color string, enabled bool) string {
	if !enabled {
		return text
	}
	return color + text + colorReset
}
