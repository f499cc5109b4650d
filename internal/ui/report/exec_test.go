package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/grouper"
)

func TestExecUnanimous(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-a", Stdout: []byte("Driver Version: 550.54.15\n")},
		{Host: "gpu-b", Stdout: []byte("Driver Version: 550.54.15\n")},
		{Host: "gpu-c", Stdout: []byte("Driver Version: 550.54.15\n")},
	})

	out := Exec(collated, false, false)

	for _, want := range []string{
		"3 nodes identical:",
		"gpu-a, gpu-b, gpu-c",
		"Driver Version: 550.54.15",
		"3 succeeded",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExecOutlierDiff(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-a", Stdout: []byte("driver 550.54\n")},
		{Host: "gpu-b", Stdout: []byte("driver 550.54\n")},
		{Host: "gpu-c", Stdout: []byte("driver 535.129\n")},
	})

	out := Exec(collated, false, false)

	for _, want := range []string{
		"2 nodes identical:",
		"1 node differs:",
		"-driver 550.54",
		"+driver 535.129",
		"3 succeeded",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExecNonZeroExitSet(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-a", Stderr: []byte("nvidia-smi: command not found\n"), ExitCode: 127},
		{Host: "gpu-b", Stderr: []byte("nvidia-smi: command not found\n"), ExitCode: 127},
	})

	out := Exec(collated, false, false)

	for _, want := range []string{
		"2 nodes exited with code 127:",
		"stderr: nvidia-smi: command not found",
		"0 succeeded, 2 non-zero exit",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExecErrorsOnly(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-a", Stdout: []byte("ok\n")},
		{Host: "gpu-b", Stdout: []byte("ok\n")},
		{Host: "gpu-down", Err: errors.New("connection refused")},
	})

	out := Exec(collated, true, false)

	if strings.Contains(out, "identical") {
		t.Errorf("errors-only output should hide the clean set:\n%s", out)
	}
	for _, want := range []string{"gpu-down", "connection refused", "2 succeeded", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExecTally(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-a", Stdout: []byte("ok\n")},
		{Host: "gpu-b", Stdout: []byte("ok\n")},
		{Host: "gpu-down", Err: errors.New("connection refused")},
		{Host: "gpu-hung", Err: context.DeadlineExceeded},
	})

	out := Exec(collated, false, false)

	if !strings.Contains(out, "2 succeeded, 1 failed, 1 timeout") {
		t.Errorf("tally wrong:\n%s", out)
	}
	if !strings.Contains(out, "1 node timed out:") {
		t.Errorf("output missing timed-out block:\n%s", out)
	}
}

func TestExecSingleNode(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-solo", Stdout: []byte("output\n")},
	})

	out := Exec(collated, false, false)

	if !strings.Contains(out, "1 node:") {
		t.Errorf("output missing '1 node:' label:\n%s", out)
	}
	if strings.Contains(out, "identical") {
		t.Errorf("fleet of one should not read 'identical':\n%s", out)
	}
}

func TestExecColorToggle(t *testing.T) {
	collated := grouper.Collate([]*executor.HostResult{
		{Host: "gpu-a", Stdout: []byte("ok\n")},
	})

	if out := Exec(collated, false, true); !strings.Contains(out, "\033[") {
		t.Errorf("color output missing ANSI codes:\n%s", out)
	}
	if out := Exec(collated, false, false); strings.Contains(out, "\033[") {
		t.Errorf("plain output contains ANSI codes:\n%s", out)
	}
}

func TestExecJSON(t *testing.T) {
	data, err := ExecJSON([]*executor.HostResult{
		{Host: "gpu-a", Stdout: []byte("ok\n"), Duration: 2 * time.Second},
		{Host: "gpu-b", Stdout: []byte("ok\n"), Duration: time.Second},
		{Host: "gpu-down", Err: errors.New("connection refused")},
	})
	if err != nil {
		t.Fatalf("ExecJSON() error = %v", err)
	}

	var parsed []map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("got %d entries, want 3", len(parsed))
	}
	if parsed[0]["node"] != "gpu-a" {
		t.Errorf("node = %v, want gpu-a", parsed[0]["node"])
	}
	if parsed[0]["duration"] != "2s" {
		t.Errorf("duration = %v, want 2s", parsed[0]["duration"])
	}
	if parsed[2]["error"] != "connection refused" {
		t.Errorf("error = %v, want connection refused", parsed[2]["error"])
	}
	if _, ok := parsed[0]["error"]; ok {
		t.Errorf("clean node carries error field: %v", parsed[0]["error"])
	}
}
