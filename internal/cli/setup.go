package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchfleet/benchfleet/internal/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup [dir]",
	Short: "Check prerequisites and seed a workspace",
	Long: "setup verifies the tools benchfleet depends on, creates the workspace\n" +
		"state directory, and seeds a single-host inventory and a sample config.\n" +
		"Existing files are never overwritten; running it twice changes nothing.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		res, err := setup.Run(cmd.Context(), dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workspace ready\n  state:     %s\n  inventory: %s%s\n  config:    %s%s\n",
			res.StateDir,
			res.InventoryPath, seededNote(res.InventoryCreated),
			res.ConfigPath, seededNote(res.ConfigCreated))
		return nil
	},
}

func seededNote(created bool) string {
	if created {
		return " (seeded)"
	}
	return " (kept)"
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
