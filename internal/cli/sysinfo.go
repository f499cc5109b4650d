package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/localexec"
	"github.com/benchfleet/benchfleet/internal/sysinfo"
	"github.com/benchfleet/benchfleet/internal/ui/report"
)

var cfgSysinfoOut string

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Collect system information from every node",
	Long: "sysinfo probes each node (kernel, CPU, memory, GPUs, driver, disk,\n" +
		"network, NUMA, docker), writes one JSON file per node, and reports\n" +
		"probes whose output differs across the fleet.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// A descriptor carrying the local marker selects local
		// collection even if the rest of the file is unusable.
		if inventory.HasLocalMarker(cfgInventory) {
			node, err := os.Hostname()
			if err != nil || node == "" {
				node = "localhost"
			}
			return collectSysinfo(cmd.Context(), cmd, executor.New(localexec.New()), []string{node})
		}

		inv, err := inventory.Load(cfgInventory)
		if err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
		runner, pool := pooledRunner(inv, baseOptions())
		if pool != nil {
			defer pool.Close()
		}
		return collectSysinfo(cmd.Context(), cmd, executor.New(runner), inv.Names())
	},
}

func collectSysinfo(ctx context.Context, cmd *cobra.Command, ex *executor.Executor, nodes []string) error {
	rep, err := sysinfo.NewCollector(ex).Collect(ctx, nodes)
	if err != nil {
		return err
	}
	files, err := rep.WriteAll(cfgSysinfoOut)
	if err != nil {
		return err
	}
	log.Info().Int("nodes", len(nodes)).Int("files", len(files)).Str("dir", cfgSysinfoOut).Msg("system information written")

	// A consistency report needs something to compare.
	if len(nodes) > 1 {
		fmt.Fprint(cmd.OutOrStdout(), report.Mismatches(rep.Mismatches(), colorEnabled()))
	}
	return nil
}

func init() {
	sysinfoCmd.Flags().StringVarP(&cfgSysinfoOut, "output-dir", "o", "./sysinfo", "directory for per-node JSON files")
	_ = viper.BindPFlag("sysinfo.output-dir", sysinfoCmd.Flags().Lookup("output-dir"))
	rootCmd.AddCommand(sysinfoCmd)
}
