// Package cli is the benchfleet command tree. Subcommands cover the
// fleet lifecycle: workspace bootstrap, native benchmark builds, system
// information collection, deploy, and the deploy-then-run orchestration.
//
// Flags can be overridden through the environment with the BENCHFLEET_
// prefix (BENCHFLEET_INVENTORY, BENCHFLEET_RUN_OUTPUT_DIR, ...); an
// explicit command-line flag always wins.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchfleet/benchfleet/internal/logging"
	sshpkg "github.com/benchfleet/benchfleet/internal/ssh"
)

var (
	cfgVerbose       bool
	cfgNoColor       bool
	cfgInventory     string
	cfgConfig        string
	cfgImage         string
	cfgSkipDeploy    bool
	cfgAcceptUnknown bool
)

var rootCmd = &cobra.Command{
	Use:   "benchfleet",
	Short: "Benchmark a fleet of GPU nodes",
	Long: "benchfleet builds, deploys and runs micro-benchmarks across a fleet of\n" +
		"GPU nodes over SSH and reports per-metric summaries.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Configure(cfgVerbose, cfgNoColor)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&cfgVerbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&cfgNoColor, "no-color", false, "disable ANSI colors")
	pf.StringVarP(&cfgInventory, "inventory", "f", "host.ini", "inventory file of target nodes")
	pf.StringVarP(&cfgConfig, "config", "c", "config.yaml", "benchmark config file")
	pf.StringVarP(&cfgImage, "image", "i", "", "container image to deploy (empty: push the local bundle)")
	pf.BoolVar(&cfgSkipDeploy, "skip-deploy", false, "skip the deploy phase and run without docker")
	pf.BoolVar(&cfgAcceptUnknown, "accept-unknown-hosts", false, "accept SSH hosts missing from known_hosts")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("no-color", pf.Lookup("no-color"))
	_ = viper.BindPFlag("inventory", pf.Lookup("inventory"))
	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("image", pf.Lookup("image"))
	_ = viper.BindPFlag("skip-deploy", pf.Lookup("skip-deploy"))
	_ = viper.BindPFlag("accept-unknown-hosts", pf.Lookup("accept-unknown-hosts"))

	viper.SetEnvPrefix("BENCHFLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// Pull environment overrides before any RunE executes. Viper
	// resolves explicit flag > environment > flag default, so assigning
	// the resolved value back is always safe.
	cobra.OnInitialize(func() {
		if v := viper.GetString("inventory"); v != "" {
			cfgInventory = v
		}
		if v := viper.GetString("config"); v != "" {
			cfgConfig = v
		}
		if v := viper.GetString("image"); v != "" {
			cfgImage = v
		}
		if v := viper.GetString("run.output-dir"); v != "" {
			cfgRunOut = v
		}
		if v := viper.GetString("sysinfo.output-dir"); v != "" {
			cfgSysinfoOut = v
		}
		if viper.IsSet("verbose") {
			cfgVerbose = viper.GetBool("verbose")
		}
		if viper.IsSet("no-color") {
			cfgNoColor = viper.GetBool("no-color")
		}
		if viper.IsSet("skip-deploy") {
			cfgSkipDeploy = viper.GetBool("skip-deploy")
		}
		if viper.IsSet("accept-unknown-hosts") {
			cfgAcceptUnknown = viper.GetBool("accept-unknown-hosts")
		}
	})
}

// Stubbed in tests.
var exitFunc = os.Exit

// Execute runs the command tree. Any error exits with code 1. SIGINT
// and SIGTERM cancel the command context so an in-flight run winds down
// instead of being killed mid-benchmark.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer sshpkg.CloseAgent()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(1)
	}
}
