package cli

import (
	"context"
	"errors"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/benchfleet/benchfleet/internal/config"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/orchestrator"
	"github.com/benchfleet/benchfleet/internal/results"
	"github.com/benchfleet/benchfleet/internal/ui/report"
	"github.com/benchfleet/benchfleet/internal/ui/runview"
)

// watchRun drives the orchestrator under the live view. Step events
// stream into the program; the summary prints after the view exits so
// it survives the alt screen.
func watchRun(cmd *cobra.Command, params orchestrator.Params, cfg *config.Config, inv *inventory.Inventory) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := runview.New(runview.Config{
		Label:      params.ConfigPath,
		Mode:       runMode(params),
		Benchmarks: enabledBenchmarks(cfg),
		Nodes:      inv.Names(),
		Cancel:     cancel,
	})
	p := tea.NewProgram(m)
	params.Notify = func(e orchestrator.StepEvent) {
		p.Send(runview.StepMsg{Event: e})
	}

	type outcome struct {
		summary *results.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := orchestrator.New(params).Run(ctx)
		// A no-op if the view already quit.
		p.Send(runview.DoneMsg{Summary: s, Err: err})
		done <- outcome{s, err}
	}()

	_, viewErr := p.Run()
	cancel()
	out := <-done
	if viewErr != nil {
		return fmt.Errorf("watch view: %w", viewErr)
	}
	if errors.Is(out.err, context.Canceled) {
		fmt.Fprintln(cmd.OutOrStdout(), "run canceled")
		return nil
	}
	if out.err != nil {
		return out.err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Summary(out.summary, colorEnabled()))
	return nil
}

// runMode labels the deploy mode for the status bar.
func runMode(p orchestrator.Params) string {
	switch {
	case p.SkipDeploy:
		return "no docker"
	case p.Image != "":
		return "image " + p.Image
	default:
		return "bundle"
	}
}

func enabledBenchmarks(cfg *config.Config) []string {
	var names []string
	for _, name := range cfg.Benchmarks.Names() {
		if b, ok := cfg.Benchmarks.Get(name); ok && b.Enabled() {
			names = append(names, name)
		}
	}
	return names
}
