package sysinfo

import (
	"fmt"
	"strings"
)

// Probe describes one collection command. Depends lists binaries the
// command needs on the node; a probe whose dependency is missing is
// recorded as skipped rather than failed. Compare marks probes whose
// output should be identical across the fleet.
type Probe struct {
	Name    string
	Command string
	Depends []string
	Compare bool
}

// Probes returns the probe table in collection order.
func Probes() []Probe {
	return []Probe{
		{
			Name:    "hostname",
			Command: "hostname",
		},
		{
			Name:    "os-release",
			Command: "cat /etc/os-release",
			Compare: true,
		},
		{
			Name:    "kernel",
			Command: "uname -r",
			Compare: true,
		},
		{
			// MHz lines fluctuate between reads, so they are stripped
			// to keep the output stable for comparison.
			Name:    "cpu",
			Command: "lscpu | grep -v 'MHz'",
			Depends: []string{"lscpu"},
			Compare: true,
		},
		{
			Name:    "memory",
			Command: "grep MemTotal /proc/meminfo",
			Compare: true,
		},
		{
			Name:    "pci-gpus",
			Command: "lspci | grep -iE 'vga|3d|display' || true",
			Depends: []string{"lspci"},
			Compare: true,
		},
		{
			Name:    "gpu-driver",
			Command: "nvidia-smi --query-gpu=driver_version --format=csv,noheader",
			Depends: []string{"nvidia-smi"},
			Compare: true,
		},
		{
			Name:    "gpu-list",
			Command: "nvidia-smi -L",
			Depends: []string{"nvidia-smi"},
			Compare: true,
		},
		{
			Name:    "disk",
			Command: "lsblk -o NAME,SIZE,TYPE,MOUNTPOINT",
			Depends: []string{"lsblk"},
		},
		{
			Name:    "network",
			Command: "ip -brief addr",
			Depends: []string{"ip"},
		},
		{
			Name:    "numa",
			Command: "numactl --hardware",
			Depends: []string{"numactl"},
		},
		{
			Name:    "docker",
			Command: "docker --version",
			Depends: []string{"docker"},
		},
	}
}

// skipExitCode is what the dependency guard exits with when a probe's
// binary is missing from the node.
const skipExitCode = 127

// shellCommand wraps the probe command with dependency guards so a
// missing binary exits with skipExitCode before the command runs.
func (p Probe) shellCommand() string {
	if len(p.Depends) == 0 {
		return p.Command
	}
	var b strings.Builder
	for _, dep := range p.Depends {
		fmt.Fprintf(&b, "command -v %s >/dev/null 2>&1 || exit %d; ", dep, skipExitCode)
	}
	b.WriteString(p.Command)
	return b.String()
}
