// Package buildtool drives the native micro-benchmark build: toolchain
// checks, a parallel make, and install with a sudo fallback.
package buildtool

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/benchfleet/benchfleet/internal/localexec"
)

const (
	// DefaultSourceDir is where the micro-benchmark sources are vendored.
	DefaultSourceDir = "third_party/gpu-bench"
	// DefaultInstallDir is where make install places the binaries.
	DefaultInstallDir = "/usr/local/bin"
)

// Targets returns the build target list. The list is fixed: the CUDA
// release is detected and logged but does not change what gets built.
func Targets() []string {
	return []string{"gpu_copy_bw", "gemm_flops", "kernel_launch", "gpu_burn", "stream"}
}

// checkedBinaries are the install artifacts verified after the build.
// stream is deliberately absent: only the GPU binaries are checked.
var checkedBinaries = []string{"gpu_copy_bw", "gemm_flops", "kernel_launch", "gpu_burn"}

// Jobs returns the make parallelism for a machine with n processors:
// two are held back for the system, with a floor of one.
func Jobs(n int) int {
	if n-2 < 1 {
		return 1
	}
	return n - 2
}

// Toolchain describes what the prerequisite scan found.
type Toolchain struct {
	Compiler    string // path to nvcc, or gcc when falling back
	CUDARelease string // empty when building without nvcc
}

// CheckToolchain verifies the build prerequisites: a compiler (nvcc,
// with gcc as the CPU-only fallback), git, and cmake. Everything
// missing is reported in one error so the operator fixes it in one go.
func CheckToolchain(ctx context.Context) (*Toolchain, error) {
	tc := &Toolchain{}
	var missing []string

	if path, err := look("nvcc"); err == nil {
		tc.Compiler = path
		tc.CUDARelease = cudaProbe(ctx)
	} else if path, err := look("gcc"); err == nil {
		tc.Compiler = path
		log.Warn().Msg("nvcc not found, falling back to gcc; GPU benchmarks need the CUDA toolkit")
	} else {
		missing = append(missing, "nvcc or gcc")
	}

	for _, tool := range []string{"git", "cmake"} {
		if _, err := look(tool); err != nil {
			missing = append(missing, tool)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing build prerequisites: %s", strings.Join(missing, ", "))
	}
	return tc, nil
}

var cudaReleaseRe = regexp.MustCompile(`release (\d+\.\d+)`)

// cudaRelease reports the toolkit release from nvcc --version, for the
// build log only.
func cudaRelease(ctx context.Context) string {
	out, err := localexec.Combined(ctx, "nvcc --version")
	if err != nil {
		return ""
	}
	return parseCUDARelease(out)
}

func parseCUDARelease(out string) string {
	if m := cudaReleaseRe.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return ""
}

// Builder runs the make build and install.
type Builder struct {
	srcDir     string
	installDir string
	jobs       int
	stdout     io.Writer
	stderr     io.Writer
}

// Option configures a Builder.
type Option func(*Builder)

// WithSourceDir overrides the vendored source directory.
func WithSourceDir(dir string) Option {
	return func(b *Builder) {
		b.srcDir = dir
	}
}

// WithInstallDir overrides where installed binaries are checked for.
func WithInstallDir(dir string) Option {
	return func(b *Builder) {
		b.installDir = dir
	}
}

// WithJobs overrides the computed make parallelism.
func WithJobs(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.jobs = n
		}
	}
}

// WithOutput redirects the build output streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Builder) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// New creates a Builder. jobs must be set by the caller from its
// processor count via Jobs; the zero value builds single-threaded.
func New(opts ...Option) *Builder {
	b := &Builder{
		srcDir:     DefaultSourceDir,
		installDir: DefaultInstallDir,
		jobs:       1,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build compiles the benchmark targets and installs them, escalating
// the install step with sudo when the plain attempt fails. Build output
// streams through unbuffered so the operator sees compile progress.
// Missing binaries after install are warnings, not failures.
func (b *Builder) Build(ctx context.Context) error {
	tc, err := CheckToolchain(ctx)
	if err != nil {
		return err
	}
	if tc.CUDARelease != "" {
		log.Info().Str("release", tc.CUDARelease).Msg("CUDA toolkit detected")
	}

	buildCmd := fmt.Sprintf("make -C %s -j%d %s", b.srcDir, b.jobs, strings.Join(Targets(), " "))
	log.Info().Int("jobs", b.jobs).Str("dir", b.srcDir).Msg("building benchmark binaries")
	if err := runMake(ctx, buildCmd, b.stdout, b.stderr); err != nil {
		return fmt.Errorf("build: %w", err)
	}

	installCmd := fmt.Sprintf("make -C %s install", b.srcDir)
	if err := runMake(ctx, installCmd, b.stdout, b.stderr); err != nil {
		log.Warn().Err(err).Msg("install failed, retrying with sudo")
		if err := runMake(ctx, "sudo "+installCmd, b.stdout, b.stderr); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}

	b.checkInstalled()
	return nil
}

// checkInstalled reports which expected binaries materialized. Absence
// is a warning: a CPU-only box legitimately lacks the GPU binaries.
func (b *Builder) checkInstalled() {
	for _, name := range checkedBinaries {
		path := filepath.Join(b.installDir, name)
		if _, err := os.Stat(path); err != nil {
			log.Warn().Str("binary", path).Msg("expected binary not installed")
			continue
		}
		log.Info().Str("binary", path).Msg("installed")
	}
}

func runShell(ctx context.Context, command string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Stubbed in tests.
var (
	look      = localexec.Look
	runMake   = runShell
	cudaProbe = cudaRelease
)
