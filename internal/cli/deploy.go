package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/benchfleet/benchfleet/internal/config"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/orchestrator"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the benchmark payload without running anything",
	Long: "deploy runs the preflight scan and the deploy phase only: with --image\n" +
		"it pulls the container image and (re)creates the workspace container on\n" +
		"every node, otherwise it pushes the local binary bundle over SFTP.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgConfig); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg, err := config.Load(cfgConfig)
		if err != nil {
			return err
		}
		inv, err := inventory.Load(cfgInventory)
		if err != nil {
			return fmt.Errorf("inventory: %w", err)
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
			Image:         cfgImage,
		}
		if p := poolPusher(pool, cfg); p != nil {
			params.Pusher = p
		}

		orch := orchestrator.New(params)
		if _, err := orch.Preflight(cmd.Context()); err != nil {
			return err
		}
		if err := orch.Deploy(cmd.Context()); err != nil {
			return err
		}
		log.Info().Int("nodes", len(inv.Hosts)).Msg("deploy complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)
}
