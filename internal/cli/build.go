package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/benchfleet/benchfleet/internal/buildtool"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and install the native micro-benchmarks",
	Long: "build compiles the vendored micro-benchmark sources with make and\n" +
		"installs the binaries, escalating the install step with sudo when the\n" +
		"plain attempt fails. Two processors are held back from the build.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b := buildtool.New(
			buildtool.WithJobs(buildtool.Jobs(runtime.NumCPU())),
			buildtool.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		)
		return b.Build(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
