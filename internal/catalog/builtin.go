package catalog

import "github.com/benchfleet/benchfleet/internal/config"

// Builtins returns all built-in benchmark definitions keyed by name.
// Commands reference the micro-benchmark binaries installed by the build
// subcommand plus a couple of stock tools for non-GPU probes.
func Builtins() map[string]Definition {
	return map[string]Definition{
		"gpu-copy-bw":   builtinGPUCopyBW(),
		"gemm-flops":    builtinGemmFlops(),
		"kernel-launch": builtinKernelLaunch(),
		"gpu-burn":      builtinGPUBurn(),
		"cpu-stream":    builtinCPUStream(),
		"disk-seq":      builtinDiskSeq(),
	}
}

// IsBuiltin reports whether name is a built-in benchmark.
func IsBuiltin(name string) bool {
	_, ok := Builtins()[name]
	return ok
}

// --- individual built-in benchmarks ---

func builtinGPUCopyBW() Definition {
	return Definition{
		Name:        "gpu-copy-bw",
		Description: "Host to device and device to host copy bandwidth",
		Command:     "gpu_copy_bw --size {size}",
		Defaults:    map[string]string{"size": "128M"},
		Metrics: []config.MetricRule{
			{Name: "h2d_bw_gbps", Pattern: `(?m)^H2D[^0-9]+([0-9.]+)`},
			{Name: "d2h_bw_gbps", Pattern: `(?m)^D2H[^0-9]+([0-9.]+)`},
		},
		GPU: true,
	}
}

func builtinGemmFlops() Definition {
	return Definition{
		Name:        "gemm-flops",
		Description: "Dense matrix multiply throughput",
		Command:     "gemm_flops --precision {precision} --m {m} --n {n} --k {k}",
		Defaults: map[string]string{
			"precision": "fp32",
			"m":         "4096",
			"n":         "4096",
			"k":         "4096",
		},
		Metrics: []config.MetricRule{
			{Name: "tflops", Pattern: `(?i)tflops[:\s]+([0-9.]+)`},
		},
		GPU: true,
	}
}

func builtinKernelLaunch() Definition {
	return Definition{
		Name:        "kernel-launch",
		Description: "Empty kernel launch overhead",
		Command:     "kernel_launch --iterations {iterations}",
		Defaults:    map[string]string{"iterations": "100000"},
		Metrics: []config.MetricRule{
			{Name: "overhead_us", Pattern: `overhead[^0-9]+([0-9.eE+-]+)`},
		},
		GPU: true,
	}
}

func builtinGPUBurn() Definition {
	return Definition{
		Name:        "gpu-burn",
		Description: "Sustained GPU stress with throughput check",
		Command:     "gpu_burn {seconds}",
		Defaults:    map[string]string{"seconds": "60"},
		Metrics: []config.MetricRule{
			{Name: "gflops", Pattern: `([0-9.]+)\s*Gflop`},
		},
		GPU: true,
	}
}

func builtinCPUStream() Definition {
	return Definition{
		Name:        "cpu-stream",
		Description: "CPU memory bandwidth (STREAM)",
		Command:     "stream",
		Metrics: []config.MetricRule{
			{Name: "copy_mbps", Pattern: `(?m)^Copy:\s+([0-9.]+)`},
			{Name: "triad_mbps", Pattern: `(?m)^Triad:\s+([0-9.]+)`},
		},
	}
}

func builtinDiskSeq() Definition {
	return Definition{
		Name:        "disk-seq",
		Description: "Sequential write bandwidth via dd",
		Command:     "dd if=/dev/zero of={file} bs=1M count={count} oflag=direct conv=fdatasync 2>&1 && rm -f {file}",
		Defaults: map[string]string{
			"file":  "/tmp/benchfleet-disk.dat",
			"count": "1024",
		},
		Metrics: []config.MetricRule{
			{Name: "write_mbps", Pattern: `([0-9.]+)\s+MB/s`},
		},
	}
}
