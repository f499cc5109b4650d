package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalConfig = `version: v1
defaults:
  timeout: 30s
  concurrency: 2
benchmarks:
  cpu-stream:
    enable: true
`

func TestRunMissingConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := execute(t, "run", "--config", "absent.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing config")
	}
	if !strings.Contains(err.Error(), "absent.yaml") {
		t.Errorf("error %q does not name the config path", err)
	}
	if _, statErr := os.Stat("results"); !os.IsNotExist(statErr) {
		t.Error("results directory was created before the config check")
	}
}

func TestRunMissingInventory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, "config.yaml", minimalConfig)

	_, err := execute(t, "run")
	if err == nil {
		t.Fatal("expected an error for a missing inventory")
	}
	if !strings.Contains(err.Error(), "inventory") {
		t.Errorf("error %q does not mention the inventory", err)
	}
	if _, statErr := os.Stat("results"); !os.IsNotExist(statErr) {
		t.Error("results directory was created before the inventory check")
	}
}

func TestRunLocalSkipDeploy(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, "host.ini", "[all]\nlocalhost connection=local\n")
	writeFile(t, "config.yaml", `version: v1
defaults:
  timeout: 30s
  concurrency: 1
benchmarks:
  echo-copy:
    enable: true
custom:
  echo-copy:
    command: 'echo "copy_bw: 123.4"'
    metrics:
      - name: copy_bw
        pattern: "copy_bw: ([0-9.]+)"
`)

	out, err := execute(t, "run", "--skip-deploy")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "echo-copy") || !strings.Contains(out, "copy_bw") {
		t.Errorf("summary missing benchmark metrics: %q", out)
	}
	if !strings.Contains(out, "no docker") {
		t.Errorf("summary missing no-docker mode: %q", out)
	}

	matches, err := filepath.Glob(filepath.Join("results", "run-*", "summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("summary.json matches = %v, want exactly one", matches)
	}
}
