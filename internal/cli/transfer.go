package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchfleet/benchfleet/internal/inventory"
	sshpkg "github.com/benchfleet/benchfleet/internal/ssh"
	"github.com/benchfleet/benchfleet/internal/transfer"
	"github.com/benchfleet/benchfleet/internal/ui/report"
)

var pushCmd = &cobra.Command{
	Use:   "push LOCAL REMOTE",
	Short: "Copy a file to every SSH node",
	Long:  "push uploads one local file to the same path on every SSH node over\nSFTP and verifies each copy by SHA-256.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, tx, err := transferFleet(cfgHosts)
		if err != nil {
			return err
		}
		return printTransfers(cmd, tx.Push(cmd.Context(), hosts, args[0], args[1], nil))
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch REMOTE [DIR]",
	Short: "Copy a file from every SSH node",
	Long:  "fetch downloads one remote file from every SSH node into a local\ndirectory, prefixing each copy with the node name.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 2 {
			dir = args[1]
		}
		hosts, tx, err := transferFleet(cfgHosts)
		if err != nil {
			return err
		}
		return printTransfers(cmd, tx.Pull(cmd.Context(), hosts, args[0], dir, nil))
	},
}

// transferFleet loads the inventory and builds the SFTP fleet for its
// SSH nodes. Local nodes have nothing to transfer over.
func transferFleet(pattern string) ([]string, *transfer.Fleet, error) {
	inv, err := inventory.Load(cfgInventory)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: %w", err)
	}
	hosts, err := inv.Filter(pattern)
	if err != nil {
		return nil, nil, err
	}
	var names []string
	for _, h := range hosts {
		if !h.IsLocal() {
			names = append(names, h.Name)
		}
	}
	if len(names) == 0 {
		return nil, nil, errors.New("inventory has no ssh nodes to transfer with")
	}
	tx := transfer.New(sshpkg.NewRunner(baseOptions(), sshNodeConfs(inv)))
	return names, tx, nil
}

// printTransfers renders one row per node and fails when any transfer
// failed.
func printTransfers(cmd *cobra.Command, rs []*transfer.Result) error {
	rows := make([][]string, 0, len(rs))
	failed := 0
	for _, r := range rs {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
			failed++
		}
		rows = append(rows, []string{
			r.Node,
			status,
			formatBytes(r.Bytes),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Table([]string{"node", "status", "bytes", "time"}, rows, colorEnabled()))
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(rs))
	}
	return nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func init() {
	for _, c := range []*cobra.Command{pushCmd, fetchCmd} {
		c.Flags().StringVarP(&cfgHosts, "hosts", "H", "", "host pattern (glob or group name, empty: all)")
		rootCmd.AddCommand(c)
	}
}
