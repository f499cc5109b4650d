// Package runview is the live terminal view of an in-flight benchmark run.
// The run command feeds it orchestrator progress events; the keyboard only
// inspects state, except for q which cancels the run.
package runview

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/benchfleet/benchfleet/internal/orchestrator"
	"github.com/benchfleet/benchfleet/internal/results"
)

// pane identifies which sub-model has focus.
type pane int

const (
	paneBenchTable pane = iota
	paneOutput
)

// Config holds the parameters needed to create a run view Model.
type Config struct {
	Label      string   // shown in the status bar, usually the config path
	Mode       string   // "image <ref>", "bundle" or "no docker"
	Benchmarks []string // enabled benchmarks in config order
	Nodes      []string
	Cancel     context.CancelFunc // cancels the run when the user quits early
}

// Model is the root Bubble Tea model for the run view.
type Model struct {
	benchTable benchTable
	outputPane outputPane

	label  string
	mode   string
	nodes  []string
	cancel context.CancelFunc

	records map[string][]results.Record

	focused   pane
	showHelp  bool
	done      bool
	runErr    error
	summary   *results.Summary
	current   string
	completed int
	total     int

	started time.Time
	elapsed time.Duration

	width  int
	height int
}

// New creates a run view Model from the given config.
func New(cfg Config) Model {
	return Model{
		benchTable: newBenchTable(cfg.Benchmarks, 40, 20),
		outputPane: newOutputPane(40, 20),
		label:      cfg.Label,
		mode:       cfg.Mode,
		nodes:      cfg.Nodes,
		cancel:     cfg.Cancel,
		records:    make(map[string][]results.Record),
		focused:    paneBenchTable,
		total:      len(cfg.Benchmarks),
		started:    time.Now(),
	}
}

// Init starts the elapsed clock.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case StepMsg:
		return m.applyStep(msg.Event), nil

	case DoneMsg:
		m.done = true
		m.current = ""
		m.runErr = msg.Err
		m.summary = msg.Summary
		if msg.Err != nil {
			m.outputPane.ShowError(msg.Err)
		} else if msg.Summary != nil {
			m.outputPane.ShowSummary(msg.Summary)
		}
		return m, nil

	case tickMsg:
		m.elapsed = time.Since(m.started)
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	}

	// Forward to the focused pane.
	var cmd tea.Cmd
	switch m.focused {
	case paneBenchTable:
		cmd = m.benchTable.Update(msg)
	case paneOutput:
		cmd = m.outputPane.Update(msg)
	}
	return m, cmd
}

func (m Model) applyStep(e orchestrator.StepEvent) Model {
	if e.Total > 0 {
		m.total = e.Total
	}
	if e.Started {
		m.current = e.Benchmark
		m.benchTable.SetRunning(e.Benchmark)
		return m
	}
	m.current = ""
	m.completed = e.Index
	m.records[e.Benchmark] = e.Records
	m.benchTable.SetFinished(e.Benchmark, e.Records)
	m.outputPane.ShowRecords(e.Benchmark, e.Records)
	return m
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.Key()

	if m.showHelp {
		if key.Code == tea.KeyEscape || msg.String() == "?" {
			m.showHelp = false
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m.quit()
	case "?":
		m.showHelp = true
		return m, nil
	}

	if key.Code == tea.KeyTab {
		return m.cycleFocus(), nil
	}

	if m.focused == paneBenchTable && key.Code == tea.KeyEnter {
		if name := m.benchTable.SelectedBenchmark(); name != "" {
			m.outputPane.ShowRecords(name, m.records[name])
		}
		return m, nil
	}

	// Forward j/k and other navigation to the focused pane.
	var cmd tea.Cmd
	switch m.focused {
	case paneBenchTable:
		cmd = m.benchTable.Update(msg)
	case paneOutput:
		cmd = m.outputPane.Update(msg)
	}
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if !m.done && m.cancel != nil {
		// Stop the orchestrator; its DoneMsg may land after the quit.
		m.cancel()
	}
	return m, tea.Quit
}

func (m Model) cycleFocus() Model {
	switch m.focused {
	case paneBenchTable:
		m.benchTable.Blur()
		m.focused = paneOutput
	case paneOutput:
		m.focused = paneBenchTable
		m.benchTable.Focus()
	}
	return m
}

func (m *Model) resize() {
	tableWidth := m.width * 45 / 100
	outputWidth := m.width - tableWidth

	statusHeight := 1
	mainHeight := m.height - statusHeight
	if mainHeight < 5 {
		mainHeight = 5
	}

	m.benchTable.Resize(tableWidth, mainHeight)
	m.outputPane.Resize(outputWidth, mainHeight)
}

// View renders the full run view.
func (m Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("Loading...")
	}

	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

func (m Model) renderContent() string {
	// Help overlay takes over everything.
	if m.showHelp {
		return renderHelpOverlay(m.width, m.height)
	}

	tableWidth := m.width * 45 / 100
	outputWidth := m.width - tableWidth

	statusHeight := 1
	mainHeight := m.height - statusHeight
	if mainHeight < 5 {
		mainHeight = 5
	}

	// In lipgloss v2, Width(w)/Height(h) set the TOTAL rendered size including
	// borders. Content area = w - GetHorizontalFrameSize(). So we pass the full
	// pane width (not width-2) and the border is included in that total.
	tableStyle := paneStyle.Width(tableWidth).Height(mainHeight)
	if m.focused == paneBenchTable {
		tableStyle = focusedPaneStyle.Width(tableWidth).Height(mainHeight)
	}
	outputStyle := paneStyle.Width(outputWidth).Height(mainHeight)
	if m.focused == paneOutput {
		outputStyle = focusedPaneStyle.Width(outputWidth).Height(mainHeight)
	}

	mainRow := lipgloss.JoinHorizontal(lipgloss.Top,
		tableStyle.Render(m.benchTable.View()),
		outputStyle.Render(m.outputPane.View()))

	bar := renderStatusBar(m.label, m.mode, m.completed, m.total, m.current,
		m.elapsed, m.done, m.runErr != nil, m.width)

	return lipgloss.JoinVertical(lipgloss.Left, mainRow, bar)
}
