package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/benchfleet/benchfleet/internal/executor"
)

func TestPreflightFacts(t *testing.T) {
	runner := &scriptedRunner{handler: streamHandler(map[string]string{"gpu-node": "8"})}
	o := New(Params{
		Config:    testConfig(),
		Inventory: testInventory(t, "[all]\ngpu-node connection=local\ncpu-node connection=local\n"),
		Runner:    runner,
	})

	facts, err := o.Preflight(context.Background())
	if err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2", len(facts))
	}

	byHost := map[string]NodeFacts{}
	for _, f := range facts {
		byHost[f.Host] = f
	}
	gpu := byHost["gpu-node"]
	if gpu.Kernel != "Linux 6.8.0" {
		t.Errorf("kernel = %q, want %q", gpu.Kernel, "Linux 6.8.0")
	}
	if gpu.CPUs != 64 {
		t.Errorf("cpus = %d, want 64", gpu.CPUs)
	}
	if gpu.GPUs != 8 {
		t.Errorf("gpus = %d, want 8", gpu.GPUs)
	}
	if cpu := byHost["cpu-node"]; cpu.GPUs != 0 {
		t.Errorf("cpu-node gpus = %d, want 0", cpu.GPUs)
	}

	if o.facts["gpu-node"].GPUs != 8 {
		t.Error("facts not retained for host matching")
	}
}

func TestPreflightUnreachable(t *testing.T) {
	runner := &scriptedRunner{handler: func(host, command string) *executor.HostResult {
		if host == "node-02" {
			return &executor.HostResult{Err: fmt.Errorf("connect: connection refused")}
		}
		return &executor.HostResult{Stdout: []byte("Linux 6.8.0\n")}
	}}
	o := New(Params{
		Config:    testConfig(),
		Inventory: testInventory(t, "[all]\nnode-01 connection=local\nnode-02 host=10.0.0.2\n"),
		Runner:    runner,
	})

	_, err := o.Preflight(context.Background())
	if err == nil {
		t.Fatal("Preflight() error = nil with an unreachable node, want error")
	}
	if !strings.Contains(err.Error(), "node-02") {
		t.Errorf("error %q does not name the unreachable node", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error %q does not carry the connection error", err)
	}
}

func TestPreflightEmptyInventory(t *testing.T) {
	o := New(Params{
		Config:    testConfig(),
		Inventory: testInventory(t, "[all]\n"),
		Runner:    &scriptedRunner{},
	})

	if _, err := o.Preflight(context.Background()); err == nil {
		t.Error("Preflight() error = nil for empty inventory, want error")
	}
}

func TestLastFieldInt(t *testing.T) {
	tests := []struct {
		out  string
		want int
	}{
		{"64\n", 64},
		{"hw.ncpu: 16", 16},
		{"", 0},
		{"not a number", 0},
	}
	for _, tt := range tests {
		if got := lastFieldInt(tt.out); got != tt.want {
			t.Errorf("lastFieldInt(%q) = %d, want %d", tt.out, got, tt.want)
		}
	}
}
