package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/grouper"
	"github.com/benchfleet/benchfleet/internal/inventory"
	sshpkg "github.com/benchfleet/benchfleet/internal/ssh"
	"github.com/benchfleet/benchfleet/internal/ui/report"
)

var (
	cfgHosts           string
	cfgExecJSON        bool
	cfgExecErrorsOnly  bool
	cfgExecTimeout     time.Duration
	cfgExecConcurrency int
	cfgExecSudo        bool
	cfgExecAskSudoPass bool
)

var execCmd = &cobra.Command{
	Use:   "exec -- command [args...]",
	Short: "Run a command on every node and group identical output",
	Long: "exec runs one command across the inventory in parallel. Nodes with\n" +
		"identical output are grouped; outliers are shown as a diff against the\n" +
		"majority.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		inv, err := inventory.Load(cfgInventory)
		if err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
		hosts, err := selectNames(inv, cfgHosts)
		if err != nil {
			return err
		}
		runner, err := execRunner(inv)
		if err != nil {
			return err
		}

		ex := executor.New(runner,
			executor.WithConcurrency(cfgExecConcurrency),
			executor.WithTimeout(cfgExecTimeout))
		rs := ex.Execute(cmd.Context(), hosts, command)

		if cfgExecJSON {
			out, err := report.ExecJSON(rs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		} else {
			fmt.Fprint(cmd.OutOrStdout(), report.Exec(grouper.Collate(rs), cfgExecErrorsOnly, colorEnabled()))
		}
		if n := failedCount(rs); n > 0 {
			return fmt.Errorf("%d of %d nodes failed", n, len(rs))
		}
		return nil
	},
}

// execRunner builds the runner, wiring sudo for SSH nodes when asked.
func execRunner(inv *inventory.Inventory) (executor.Runner, error) {
	base := baseOptions()
	if !cfgExecSudo {
		return fleetRunner(inv, base), nil
	}
	for _, h := range inv.Hosts {
		if h.IsLocal() {
			return nil, errors.New("--sudo applies to ssh nodes only")
		}
	}
	var password string
	if cfgExecAskSudoPass {
		fmt.Fprint(os.Stderr, "sudo password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read sudo password: %w", err)
		}
		password = string(pw)
	}
	return sshpkg.NewSudoRunner(base, sshNodeConfs(inv), password), nil
}

func failedCount(rs []*executor.HostResult) int {
	n := 0
	for _, r := range rs {
		if !r.OK() {
			n++
		}
	}
	return n
}

func init() {
	execCmd.Flags().StringVarP(&cfgHosts, "hosts", "H", "", "host pattern (glob or group name, empty: all)")
	execCmd.Flags().BoolVar(&cfgExecJSON, "json", false, "emit per-node results as JSON")
	execCmd.Flags().BoolVar(&cfgExecErrorsOnly, "errors-only", false, "hide groups that exited zero")
	execCmd.Flags().DurationVarP(&cfgExecTimeout, "timeout", "t", 5*time.Minute, "per-node command timeout")
	execCmd.Flags().IntVar(&cfgExecConcurrency, "concurrency", 8, "parallel node limit")
	execCmd.Flags().BoolVar(&cfgExecSudo, "sudo", false, "run the command under sudo")
	execCmd.Flags().BoolVar(&cfgExecAskSudoPass, "ask-sudo-pass", false, "prompt for the sudo password (implies --sudo delivery over a PTY)")
	rootCmd.AddCommand(execCmd)
}
