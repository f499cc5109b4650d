package runview

import (
	"fmt"
	"time"

	"charm.land/lipgloss/v2"
)

// renderStatusBar builds the bottom bar showing run progress and keybind hints.
func renderStatusBar(label, mode string, completed, total int, current string, elapsed time.Duration, done, failed bool, width int) string {
	var state string
	switch {
	case failed:
		state = statusFail.Render("failed")
	case done:
		state = statusOK.Render("finished")
	case current != "":
		state = statusRunning.Render("running " + current)
	default:
		state = "starting"
	}

	left := fmt.Sprintf(" %s │ %s │ %d/%d │ ", label, mode, completed, total) +
		state + " │ " + elapsed.Round(time.Second).String()

	right := helpKeyStyle.Render("Tab") + helpDescStyle.Render(" focus") +
		"  " + helpKeyStyle.Render("Enter") + helpDescStyle.Render(" details") +
		"  " + helpKeyStyle.Render("?") + helpDescStyle.Render(" help") +
		"  " + helpKeyStyle.Render("q") + helpDescStyle.Render(" quit") + " "

	// Pad middle.
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	middle := fmt.Sprintf("%*s", gap, "")

	return statusBarStyle.Width(width).Render(left + middle + right)
}

// renderHelpOverlay builds a full-screen help overlay.
func renderHelpOverlay(width, height int) string {
	help := `
  Keyboard Shortcuts
  ──────────────────

  Tab          Cycle focus: benchmarks → output
  j / k        Navigate the benchmark table up/down
  Enter        Show the selected benchmark's node results
  Esc          Close this overlay
  ?            Toggle this help
  q / Ctrl+C   Cancel the run and quit
`

	style := lipgloss.NewStyle().
		Width(width - 4).
		Height(height - 2).
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorCyan)

	return style.Render(help)
}
