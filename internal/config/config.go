package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level benchmark run configuration.
type Config struct {
	Version    string                     `yaml:"version,omitempty"`
	Defaults   Defaults                   `yaml:"defaults"`
	Benchmarks BenchmarkSet               `yaml:"benchmarks"`
	Custom     map[string]CustomBenchmark `yaml:"custom,omitempty"`
}

// Defaults holds run-wide default settings.
type Defaults struct {
	Timeout     Duration `yaml:"timeout"`
	Concurrency int      `yaml:"concurrency"`
	Hosts       string   `yaml:"hosts,omitempty"` // default inventory pattern
}

// Benchmark is one benchmark entry in the run plan.
type Benchmark struct {
	Enable     *bool             `yaml:"enable,omitempty"` // nil means enabled
	Timeout    Duration          `yaml:"timeout,omitempty"`
	Hosts      string            `yaml:"hosts,omitempty"` // inventory pattern override
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

// Enabled reports whether the entry should run. Absent enable means yes.
func (b Benchmark) Enabled() bool {
	return b.Enable == nil || *b.Enable
}

// CustomBenchmark is a user-defined benchmark: a raw command plus the
// metric extraction rules for its output.
type CustomBenchmark struct {
	Command string       `yaml:"command"`
	GPU     bool         `yaml:"gpu,omitempty"`
	Metrics []MetricRule `yaml:"metrics"`
}

// MetricRule defines how to extract a single metric from benchmark output.
type MetricRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern,omitempty"` // regex with one capture group
	Column  int    `yaml:"column,omitempty"`  // 1-based whitespace column
}

// Duration wraps time.Duration to support YAML unmarshaling from strings like "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// BenchmarkSet is an ordered benchmark map. YAML mapping order is the run
// order, so plain map iteration will not do.
type BenchmarkSet struct {
	order   []string
	entries map[string]Benchmark
}

func (s *BenchmarkSet) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("benchmarks must be a mapping, got %s", value.Tag)
	}
	s.order = nil
	s.entries = make(map[string]Benchmark, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var name string
		if err := value.Content[i].Decode(&name); err != nil {
			return err
		}
		var b Benchmark
		if err := value.Content[i+1].Decode(&b); err != nil {
			return fmt.Errorf("benchmark %q: %w", name, err)
		}
		s.Set(name, b)
	}
	return nil
}

func (s BenchmarkSet) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range s.order {
		var key, val yaml.Node
		if err := key.Encode(name); err != nil {
			return nil, err
		}
		if err := val.Encode(s.entries[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &key, &val)
	}
	return node, nil
}

// Set adds or replaces an entry. New names append to the order.
func (s *BenchmarkSet) Set(name string, b Benchmark) {
	if s.entries == nil {
		s.entries = make(map[string]Benchmark)
	}
	if _, ok := s.entries[name]; !ok {
		s.order = append(s.order, name)
	}
	s.entries[name] = b
}

// Get returns the entry with the given name.
func (s *BenchmarkSet) Get(name string) (Benchmark, bool) {
	b, ok := s.entries[name]
	return b, ok
}

// Names returns benchmark names in declaration order.
func (s *BenchmarkSet) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of entries.
func (s *BenchmarkSet) Len() int {
	return len(s.order)
}

// DefaultConfig returns the sample configuration seeded by setup: a small
// set of enabled micro-benchmarks with run-wide defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Version:  "v1",
		Defaults: DefaultDefaults(),
	}
	cfg.Benchmarks.Set("gpu-copy-bw", Benchmark{})
	cfg.Benchmarks.Set("gemm-flops", Benchmark{})
	cfg.Benchmarks.Set("kernel-launch", Benchmark{})
	cfg.Benchmarks.Set("cpu-stream", Benchmark{})
	return cfg
}

// DefaultDefaults returns the run-wide defaults applied when a config file
// omits them.
func DefaultDefaults() Defaults {
	return Defaults{
		Timeout:     Duration{5 * time.Minute},
		Concurrency: 8,
	}
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{Defaults: DefaultDefaults()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to the given file path as YAML.
// It creates parent directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// WriteDefault seeds the sample config at path. It never overwrites: an
// existing file is left alone and reported via the bool.
func WriteDefault(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := Save(path, DefaultConfig()); err != nil {
		return false, err
	}
	return true, nil
}

// TimeoutFor returns the effective timeout for a benchmark entry.
func (c *Config) TimeoutFor(b Benchmark) time.Duration {
	if b.Timeout.Duration > 0 {
		return b.Timeout.Duration
	}
	return c.Defaults.Timeout.Duration
}

// HostsFor returns the effective inventory pattern for a benchmark entry.
func (c *Config) HostsFor(b Benchmark) string {
	if b.Hosts != "" {
		return b.Hosts
	}
	return c.Defaults.Hosts
}

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	if c.Defaults.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", c.Defaults.Concurrency)
	}
	if c.Defaults.Timeout.Duration < 0 {
		return fmt.Errorf("default timeout must be non-negative, got %s", c.Defaults.Timeout)
	}

	for _, name := range c.Benchmarks.Names() {
		if !nameRe.MatchString(name) {
			return fmt.Errorf("benchmark name %q must match [a-zA-Z0-9_-]+", name)
		}
		b, _ := c.Benchmarks.Get(name)
		if b.Timeout.Duration < 0 {
			return fmt.Errorf("benchmark %q has negative timeout: %s", name, b.Timeout)
		}
	}

	for name, custom := range c.Custom {
		if !nameRe.MatchString(name) {
			return fmt.Errorf("custom benchmark name %q must match [a-zA-Z0-9_-]+", name)
		}
		if custom.Command == "" {
			return fmt.Errorf("custom benchmark %q has no command", name)
		}
		if len(custom.Metrics) == 0 {
			return fmt.Errorf("custom benchmark %q has no metric rules", name)
		}
		for i, rule := range custom.Metrics {
			if rule.Name == "" {
				return fmt.Errorf("custom benchmark %q rule %d has empty metric name", name, i)
			}
			if rule.Pattern == "" && rule.Column == 0 {
				return fmt.Errorf("custom benchmark %q rule %d (%s) must have pattern or column", name, i, rule.Name)
			}
			if rule.Pattern != "" {
				if _, err := regexp.Compile(rule.Pattern); err != nil {
					return fmt.Errorf("custom benchmark %q rule %d (%s): invalid pattern: %w", name, i, rule.Name, err)
				}
			}
		}
	}

	return nil
}
