package runview

import (
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/benchfleet/benchfleet/internal/orchestrator"
	"github.com/benchfleet/benchfleet/internal/results"
)

// StepMsg carries orchestrator progress into the model. The run command
// forwards these from the Notify callback via Program.Send.
type StepMsg struct {
	Event orchestrator.StepEvent
}

// DoneMsg is sent once the run has finished, successfully or not.
type DoneMsg struct {
	Summary *results.Summary
	Err     error
}

// tickMsg drives the elapsed clock in the status bar.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
