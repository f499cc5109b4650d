package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/benchfleet/benchfleet/internal/discover"
)

var (
	cfgDiscoverPort        int
	cfgDiscoverTimeout     time.Duration
	cfgDiscoverConcurrency int
	cfgDiscoverWrite       string
)

var discoverCmd = &cobra.Command{
	Use:   "discover CIDR",
	Short: "Scan a network range for SSH-reachable nodes",
	Long: "discover dials every address in the CIDR on the SSH port and lists the\n" +
		"ones that answer. With --write it emits a starter inventory for them.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := &discover.Scanner{
			Port:        cfgDiscoverPort,
			Timeout:     cfgDiscoverTimeout,
			Concurrency: cfgDiscoverConcurrency,
		}
		nodes, err := scanner.Scan(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no reachable nodes found")
			return nil
		}
		for _, n := range nodes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s port=%d\n", n.Addr, n.Port)
		}
		if cfgDiscoverWrite != "" {
			if err := writeDiscovered(cfgDiscoverWrite, nodes); err != nil {
				return err
			}
			log.Info().Str("path", cfgDiscoverWrite).Int("nodes", len(nodes)).Msg("inventory written")
		}
		return nil
	},
}

// writeDiscovered emits a starter inventory for the scan results. It
// never overwrites.
func writeDiscovered(path string, nodes []discover.Node) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	var b strings.Builder
	b.WriteString("[discovered]\n")
	for i, n := range nodes {
		fmt.Fprintf(&b, "node-%02d host=%s port=%d\n", i+1, n.Addr, n.Port)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func init() {
	discoverCmd.Flags().IntVar(&cfgDiscoverPort, "port", 22, "TCP port to probe")
	discoverCmd.Flags().DurationVar(&cfgDiscoverTimeout, "timeout", 2*time.Second, "per-address dial timeout")
	discoverCmd.Flags().IntVar(&cfgDiscoverConcurrency, "concurrency", 256, "parallel dial limit")
	discoverCmd.Flags().StringVarP(&cfgDiscoverWrite, "write", "w", "", "write a starter inventory to this path")
	rootCmd.AddCommand(discoverCmd)
}
