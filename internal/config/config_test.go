package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Defaults.Concurrency != 8 {
		t.Errorf("default concurrency = %d, want 8", cfg.Defaults.Concurrency)
	}
	if cfg.Defaults.Timeout.Duration != 5*time.Minute {
		t.Errorf("default timeout = %s, want 5m", cfg.Defaults.Timeout)
	}
	if cfg.Benchmarks.Len() == 0 {
		t.Error("default config has no benchmarks")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	content := `
version: v1
defaults:
  timeout: 90s
  concurrency: 4
benchmarks:
  gemm-flops:
    timeout: 10m
    parameters:
      precision: fp16
  gpu-copy-bw:
    hosts: gpu-*
  disk-seq:
    enable: false
custom:
  nccl-ring:
    command: ./nccl_test --op allreduce
    metrics:
      - name: busbw_gbps
        pattern: 'busbw\s+([0-9.]+)'
`
	cfg := loadFromString(t, content)

	if cfg.Version != "v1" {
		t.Errorf("version = %q, want \"v1\"", cfg.Version)
	}
	if cfg.Defaults.Timeout.Duration != 90*time.Second {
		t.Errorf("defaults.timeout = %s, want 90s", cfg.Defaults.Timeout)
	}
	if cfg.Defaults.Concurrency != 4 {
		t.Errorf("defaults.concurrency = %d, want 4", cfg.Defaults.Concurrency)
	}

	// Declaration order is run order.
	names := cfg.Benchmarks.Names()
	want := []string{"gemm-flops", "gpu-copy-bw", "disk-seq"}
	if len(names) != len(want) {
		t.Fatalf("benchmark names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("benchmark order[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	gemm, ok := cfg.Benchmarks.Get("gemm-flops")
	if !ok {
		t.Fatal("gemm-flops missing")
	}
	if gemm.Timeout.Duration != 10*time.Minute {
		t.Errorf("gemm-flops timeout = %s, want 10m", gemm.Timeout)
	}
	if gemm.Parameters["precision"] != "fp16" {
		t.Errorf("gemm-flops precision = %q, want \"fp16\"", gemm.Parameters["precision"])
	}
	if !gemm.Enabled() {
		t.Error("gemm-flops should be enabled by default")
	}

	disk, _ := cfg.Benchmarks.Get("disk-seq")
	if disk.Enabled() {
		t.Error("disk-seq should be disabled")
	}

	nccl, ok := cfg.Custom["nccl-ring"]
	if !ok {
		t.Fatal("custom nccl-ring missing")
	}
	if nccl.Command != "./nccl_test --op allreduce" {
		t.Errorf("nccl-ring command = %q", nccl.Command)
	}
	if len(nccl.Metrics) != 1 || nccl.Metrics[0].Name != "busbw_gbps" {
		t.Errorf("nccl-ring metrics = %+v", nccl.Metrics)
	}
}

func TestDefaultValuesWhenOmitted(t *testing.T) {
	cfg := loadFromString(t, "benchmarks:\n  kernel-launch: {}\n")

	if cfg.Defaults.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", cfg.Defaults.Concurrency)
	}
	if cfg.Defaults.Timeout.Duration != 5*time.Minute {
		t.Errorf("timeout = %s, want 5m", cfg.Defaults.Timeout)
	}
}

func TestDurationParsing(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"10s", 10 * time.Second},
		{"1m", time.Minute},
		{"2m30s", 2*time.Minute + 30*time.Second},
		{"500ms", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			content := `
benchmarks:
  gemm-flops:
    timeout: ` + tt.input + `
`
			cfg := loadFromString(t, content)
			b, _ := cfg.Benchmarks.Get("gemm-flops")
			if b.Timeout.Duration != tt.want {
				t.Errorf("parsed duration = %s, want %s", b.Timeout.Duration, tt.want)
			}
		})
	}
}

func TestInvalidDuration(t *testing.T) {
	_, err := loadStringRaw("defaults:\n  timeout: notaduration\n")
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestBenchmarksMustBeMapping(t *testing.T) {
	_, err := loadStringRaw("benchmarks:\n  - gemm-flops\n")
	if err == nil {
		t.Fatal("expected error for sequence-style benchmarks, got nil")
	}
}

func TestValidateNegativeConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.Concurrency = -1

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative concurrency")
	}
}

func TestValidateBadBenchmarkName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Benchmarks.Set("bad name!", Benchmark{})

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for benchmark name with spaces")
	}
}

func TestValidateCustomBenchmarks(t *testing.T) {
	tests := []struct {
		name   string
		custom CustomBenchmark
	}{
		{"no command", CustomBenchmark{Metrics: []MetricRule{{Name: "x", Column: 1}}}},
		{"no metrics", CustomBenchmark{Command: "true"}},
		{"rule without pattern or column", CustomBenchmark{Command: "true", Metrics: []MetricRule{{Name: "x"}}}},
		{"rule with empty name", CustomBenchmark{Command: "true", Metrics: []MetricRule{{Column: 1}}}},
		{"rule with bad regex", CustomBenchmark{Command: "true", Metrics: []MetricRule{{Name: "x", Pattern: "(unclosed"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Defaults: DefaultDefaults(),
				Custom:   map[string]CustomBenchmark{"mine": tt.custom},
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error loading nonexistent file")
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	created, err := WriteDefault(path)
	if err != nil {
		t.Fatalf("WriteDefault error: %v", err)
	}
	if !created {
		t.Fatal("first WriteDefault reported created=false")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading seeded config: %v", err)
	}
	if cfg.Benchmarks.Len() != DefaultConfig().Benchmarks.Len() {
		t.Errorf("seeded config has %d benchmarks, want %d",
			cfg.Benchmarks.Len(), DefaultConfig().Benchmarks.Len())
	}
}

func TestWriteDefaultNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	original := []byte("benchmarks:\n  gemm-flops: {}\n")
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}

	created, err := WriteDefault(path)
	if err != nil {
		t.Fatalf("WriteDefault error: %v", err)
	}
	if created {
		t.Error("WriteDefault reported created=true for existing file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(original) {
		t.Errorf("existing config was overwritten: %q", data)
	}
}

func TestSaveRoundTripKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	orig := DefaultConfig()
	orig.Benchmarks.Set("gpu-burn", Benchmark{Timeout: Duration{20 * time.Minute}})
	if err := Save(path, orig); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	origNames := orig.Benchmarks.Names()
	loadedNames := loaded.Benchmarks.Names()
	if len(origNames) != len(loadedNames) {
		t.Fatalf("round trip changed benchmarks: %v vs %v", origNames, loadedNames)
	}
	for i := range origNames {
		if origNames[i] != loadedNames[i] {
			t.Errorf("order[%d] = %q, want %q", i, loadedNames[i], origNames[i])
		}
	}

	burn, _ := loaded.Benchmarks.Get("gpu-burn")
	if burn.Timeout.Duration != 20*time.Minute {
		t.Errorf("gpu-burn timeout = %s, want 20m", burn.Timeout)
	}
}

func TestTimeoutFor(t *testing.T) {
	cfg := &Config{Defaults: Defaults{Timeout: Duration{time.Minute}}}

	if got := cfg.TimeoutFor(Benchmark{}); got != time.Minute {
		t.Errorf("TimeoutFor(no override) = %s, want 1m", got)
	}
	if got := cfg.TimeoutFor(Benchmark{Timeout: Duration{10 * time.Second}}); got != 10*time.Second {
		t.Errorf("TimeoutFor(override) = %s, want 10s", got)
	}
}

func TestHostsFor(t *testing.T) {
	cfg := &Config{Defaults: Defaults{Hosts: "gpu-*"}}

	if got := cfg.HostsFor(Benchmark{}); got != "gpu-*" {
		t.Errorf("HostsFor(no override) = %q, want \"gpu-*\"", got)
	}
	if got := cfg.HostsFor(Benchmark{Hosts: "head"}); got != "head" {
		t.Errorf("HostsFor(override) = %q, want \"head\"", got)
	}
}

// loadFromString is a test helper that writes content to a temp file, loads it,
// and fails the test if loading fails.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringRaw(content)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func loadStringRaw(content string) (*Config, error) {
	dir, err := os.MkdirTemp("", "benchfleet-config-test")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, err
	}
	return Load(path)
}
