package runview

import (
	"fmt"
	"strconv"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/table"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/benchfleet/benchfleet/internal/results"
)

// benchEntry tracks per-benchmark state shown in the table.
type benchEntry struct {
	Name     string
	Status   string // "pending", "running", "done", "failed"
	Nodes    int
	Failures int
	Duration string
}

// benchTable wraps a bubbles/table with benchmark state tracking.
type benchTable struct {
	table   table.Model
	entries []benchEntry
	width   int
	height  int
}

func newBenchTable(benchmarks []string, width, height int) benchTable {
	entries := make([]benchEntry, len(benchmarks))
	for i, name := range benchmarks {
		entries[i] = benchEntry{Name: name, Status: "pending"}
	}

	// Subtract 2 for the outer pane border so rows fit inside the content area.
	contentWidth := width - 2

	columns := []table.Column{
		{Title: "Benchmark", Width: 20},
		{Title: "Status", Width: 10},
		{Title: "Nodes", Width: 5},
		{Title: "Fail", Width: 4},
		{Title: "Time", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(buildRows(entries)),
		table.WithFocused(true),
		table.WithWidth(contentWidth),
		table.WithHeight(height-3), // account for border + header border-bottom
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	// Override the default keymap: it binds f=PageDown, d=HalfPageDown,
	// g=GotoTop, b=PageUp, which collide with our global shortcuts.
	km := table.DefaultKeyMap()
	km.PageDown = key.NewBinding(key.WithKeys("pgdown"))
	km.PageUp = key.NewBinding(key.WithKeys("pgup"))
	km.HalfPageDown = key.NewBinding(key.WithKeys("ctrl+d"))
	km.HalfPageUp = key.NewBinding(key.WithKeys("ctrl+u"))
	km.GotoTop = key.NewBinding(key.WithKeys("home"))
	km.GotoBottom = key.NewBinding(key.WithKeys("end"))
	t.KeyMap = km

	bt := benchTable{
		table:   t,
		entries: entries,
		width:   contentWidth,
		height:  height,
	}
	bt.resizeColumns()
	return bt
}

func (b *benchTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	b.table, cmd = b.table.Update(msg)
	return cmd
}

func (b *benchTable) View() string {
	return b.table.View()
}

func (b *benchTable) Focus() {
	b.table.Focus()
}

func (b *benchTable) Blur() {
	b.table.Blur()
}

func (b *benchTable) SelectedBenchmark() string {
	row := b.table.SelectedRow()
	if row == nil {
		return ""
	}
	return row[0]
}

func (b *benchTable) Resize(width, height int) {
	b.width = width - 2 // content width inside pane border
	b.height = height
	b.table.SetWidth(b.width)
	b.table.SetHeight(height - 3)
	b.resizeColumns()
}

func (b *benchTable) resizeColumns() {
	// Available width for column content (subtract cell padding: 1 left + 1 right per column × 5 cols).
	w := b.width - 10
	if w < 30 {
		w = 30
	}

	statusW := 8
	nodesW := 5
	failW := 4
	timeW := 7
	benchW := w - statusW - nodesW - failW - timeW
	if benchW < 10 {
		benchW = 10
	}

	b.table.SetColumns([]table.Column{
		{Title: "Benchmark", Width: benchW},
		{Title: "Status", Width: statusW},
		{Title: "Nodes", Width: nodesW},
		{Title: "Fail", Width: failW},
		{Title: "Time", Width: timeW},
	})
}

// SetRunning marks the benchmark as executing. Benchmarks the initial plan
// did not announce are appended so the table stays truthful.
func (b *benchTable) SetRunning(name string) {
	i := b.index(name)
	if i < 0 {
		b.entries = append(b.entries, benchEntry{Name: name})
		i = len(b.entries) - 1
	}
	b.entries[i].Status = "running"
	b.table.SetRows(buildRows(b.entries))
}

// SetFinished records the step outcome for the benchmark.
func (b *benchTable) SetFinished(name string, recs []results.Record) {
	i := b.index(name)
	if i < 0 {
		b.entries = append(b.entries, benchEntry{Name: name})
		i = len(b.entries) - 1
	}

	failures := 0
	var longest float64
	for _, r := range recs {
		if !r.OK() {
			failures++
		}
		if r.Duration > longest {
			longest = r.Duration
		}
	}

	e := &b.entries[i]
	e.Status = "done"
	if failures > 0 {
		e.Status = "failed"
	}
	e.Nodes = len(recs)
	e.Failures = failures
	e.Duration = formatSeconds(longest)

	b.table.SetRows(buildRows(b.entries))
}

func (b *benchTable) index(name string) int {
	for i := range b.entries {
		if b.entries[i].Name == name {
			return i
		}
	}
	return -1
}

func buildRows(entries []benchEntry) []table.Row {
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		nodes, fails := "", ""
		if e.Status == "done" || e.Status == "failed" {
			nodes = strconv.Itoa(e.Nodes)
			fails = strconv.Itoa(e.Failures)
		}
		rows[i] = table.Row{e.Name, e.Status, nodes, fails, e.Duration}
	}
	return rows
}

func formatSeconds(s float64) string {
	if s < 1 {
		return fmt.Sprintf("%dms", int(s*1000))
	}
	return fmt.Sprintf("%.1fs", s)
}
