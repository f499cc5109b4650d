package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchfleet/benchfleet/internal/config"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/orchestrator"
	"github.com/benchfleet/benchfleet/internal/ui/report"
)

var (
	cfgRunOut string
	cfgWatch  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deploy and run the configured benchmarks across the fleet",
	Long: "run deploys the benchmark payload (container image or binary bundle),\n" +
		"executes every enabled benchmark in config order across the inventory,\n" +
		"and writes per-node records plus a run summary under the output\n" +
		"directory. --skip-deploy uses binaries already on the nodes and runs\n" +
		"without docker.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Both files are checked before anything is loaded or dialed,
		// so a bad path cannot leave the fleet half-touched.
		if _, err := os.Stat(cfgConfig); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if _, err := os.Stat(cfgInventory); err != nil {
			return fmt.Errorf("inventory: %w", err)
		}

		cfg, err := config.Load(cfgConfig)
		if err != nil {
			return err
		}
		inv, err := inventory.Load(cfgInventory)
		if err != nil {
			return err
		}

		runner, pool := pooledRunner(inv, baseOptions())
		if pool != nil {
			defer pool.Close()
		}
		params := orchestrator.Params{
			Config:        cfg,
			ConfigPath:    cfgConfig,
			Inventory:     inv,
			InventoryPath: cfgInventory,
			Runner:        runner,
			OutputDir:     cfgRunOut,
			Image:         cfgImage,
			SkipDeploy:    cfgSkipDeploy,
		}
		if !cfgSkipDeploy {
			if p := poolPusher(pool, cfg); p != nil {
				params.Pusher = p
			}
		}

		if cfgWatch {
			return watchRun(cmd, params, cfg, inv)
		}
		summary, err := orchestrator.New(params).Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Summary(summary, colorEnabled()))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&cfgRunOut, "output-dir", "o", "./results", "directory for run results")
	runCmd.Flags().BoolVar(&cfgWatch, "watch", false, "render live progress in a full-screen view")
	_ = viper.BindPFlag("run.output-dir", runCmd.Flags().Lookup("output-dir"))
	rootCmd.AddCommand(runCmd)
}
