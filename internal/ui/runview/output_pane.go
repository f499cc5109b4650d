package runview

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/benchfleet/benchfleet/internal/results"
	"github.com/benchfleet/benchfleet/internal/ui/report"
)

// outputPane wraps a bubbles/viewport showing the most recent step's
// per-node results or, once the run is over, the summary rollup.
type outputPane struct {
	viewport viewport.Model
	width    int
	height   int
}

func newOutputPane(width, height int) outputPane {
	contentWidth := width - 2 // account for pane border
	vp := viewport.New(
		viewport.WithWidth(contentWidth),
		viewport.WithHeight(height-2), // account for border
	)
	o := outputPane{
		viewport: vp,
		width:    contentWidth,
		height:   height,
	}
	o.setContent("Waiting for the first benchmark to finish...")
	return o
}

func (o *outputPane) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	o.viewport, cmd = o.viewport.Update(msg)
	return cmd
}

func (o *outputPane) View() string {
	// Hard-clip the viewport output to prevent any line from exceeding the
	// content width.  The viewport pads lines but does not truncate, so this
	// catches edge cases where styled/ANSI content is wider than expected.
	if o.width > 0 {
		return lipgloss.NewStyle().MaxWidth(o.width).Render(o.viewport.View())
	}
	return o.viewport.View()
}

// setContent truncates each line to the viewport width (ANSI-aware) before
// setting it, preventing terminal-level wrapping from inflating the visual height.
func (o *outputPane) setContent(s string) {
	if o.width <= 0 {
		o.viewport.SetContent(s)
		return
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, o.width, "")
	}
	o.viewport.SetContent(strings.Join(lines, "\n"))
}

func (o *outputPane) Resize(width, height int) {
	o.width = width - 2 // content width inside pane border
	o.height = height
	o.viewport.SetWidth(o.width)
	o.viewport.SetHeight(height - 2)
}

// ShowRecords renders one benchmark's per-node outcomes.
func (o *outputPane) ShowRecords(benchmark string, recs []results.Record) {
	var b strings.Builder
	b.WriteString(benchNameStyle.Render("── "+benchmark+" ──") + "\n\n")

	if len(recs) == 0 {
		b.WriteString("(no results for this benchmark)")
		o.setContent(b.String())
		return
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		status := "ok"
		switch {
		case r.Error != "":
			status = "error"
		case r.ExitCode != 0:
			status = "exit " + strconv.Itoa(r.ExitCode)
		}
		rows = append(rows, []string{r.Host, status, formatSeconds(r.Duration), metricsCell(r.Metrics)})
	}
	b.WriteString(report.Table([]string{"NODE", "STATUS", "TIME", "METRICS"}, rows, false))

	for _, r := range recs {
		if r.Error != "" {
			b.WriteString("\n")
			b.WriteString(errorTextStyle.Render(r.Host + ": " + r.Error))
			b.WriteString("\n")
		}
	}

	o.setContent(b.String())
	o.viewport.GotoTop()
}

// ShowSummary renders the final run rollup.
func (o *outputPane) ShowSummary(s *results.Summary) {
	o.setContent(report.Summary(s, false))
	o.viewport.GotoTop()
}

// ShowError renders the run failure.
func (o *outputPane) ShowError(err error) {
	o.setContent(errorTextStyle.Render("run failed: " + err.Error()))
	o.viewport.GotoTop()
}

func metricsCell(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, m[k])
	}
	return strings.Join(parts, " ")
}
