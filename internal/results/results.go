// Package results persists benchmark run output: one JSON file per node
// plus a run-level summary with per-metric reductions.
package results

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run identifies one orchestrated benchmark run.
type Run struct {
	ID        string    `json:"id"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Config    string    `json:"config"`
	Inventory string    `json:"inventory"`
	Image     string    `json:"image,omitempty"`
	NoDocker  bool      `json:"no_docker,omitempty"`
	Hosts     []string  `json:"hosts"`
}

// NewRunID returns a dated unique run identifier like run-20260825-3f1c9a02.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
}

// Record is one benchmark execution on one node.
type Record struct {
	Benchmark string             `json:"benchmark"`
	Host      string             `json:"host"`
	Command   string             `json:"command"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	ExitCode  int                `json:"exit_code"`
	Duration  float64            `json:"duration_s"`
	Error     string             `json:"error,omitempty"`
	RawTail   string             `json:"raw_tail,omitempty"`
}

// OK reports whether the record represents a clean execution.
func (r Record) OK() bool {
	return r.Error == "" && r.ExitCode == 0
}

// Reduction summarizes one metric across nodes.
type Reduction struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"`
}

// Reduce computes the summary statistics for a set of metric values.
func Reduce(values []float64) Reduction {
	r := Reduction{Count: len(values)}
	if len(values) == 0 {
		return r
	}

	r.Min = values[0]
	r.Max = values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	r.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - r.Mean
		sq += d * d
	}
	r.Stddev = math.Sqrt(sq / float64(len(values)))

	return r
}

// BenchmarkSummary aggregates one benchmark across the fleet.
type BenchmarkSummary struct {
	Metrics map[string]Reduction `json:"metrics"`
	Failed  []string             `json:"failed_hosts,omitempty"`
}

// Summary is the run-level rollup written as summary.json.
type Summary struct {
	Run        Run                         `json:"run"`
	Benchmarks map[string]BenchmarkSummary `json:"benchmarks"`
}

// Writer accumulates records for a run and writes the per-node files and
// summary under <baseDir>/<run-id>/.
type Writer struct {
	mu     sync.Mutex
	dir    string
	run    Run
	byHost map[string][]Record
}

// NewWriter creates the run directory and returns a Writer for it.
func NewWriter(baseDir string, run Run) (*Writer, error) {
	dir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &Writer{
		dir:    dir,
		run:    run,
		byHost: make(map[string][]Record),
	}, nil
}

// Dir returns the run directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Add appends a record. Safe for concurrent use.
func (w *Writer) Add(rec Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byHost[rec.Host] = append(w.byHost[rec.Host], rec)
}

// Records returns all accumulated records in node order.
func (w *Writer) Records() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()

	hosts := make([]string, 0, len(w.byHost))
	for h := range w.byHost {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	var all []Record
	for _, h := range hosts {
		all = append(all, w.byHost[h]...)
	}
	return all
}

// Flush writes <host>.json per node and summary.json last, so a summary on
// disk means the node files are complete.
func (w *Writer) Flush(finished time.Time) (*Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for host, recs := range w.byHost {
		path := filepath.Join(w.dir, host+".json")
		if err := writeJSON(path, recs); err != nil {
			return nil, fmt.Errorf("write node results for %s: %w", host, err)
		}
	}

	run := w.run
	run.Finished = finished
	summary := &Summary{
		Run:        run,
		Benchmarks: w.summarize(),
	}
	if err := writeJSON(filepath.Join(w.dir, "summary.json"), summary); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	return summary, nil
}

// summarize rolls records up per benchmark and metric. Caller holds the lock.
func (w *Writer) summarize() map[string]BenchmarkSummary {
	type key struct{ bench, metric string }
	values := make(map[key][]float64)
	failed := make(map[string][]string)

	for _, recs := range w.byHost {
		for _, rec := range recs {
			if !rec.OK() {
				failed[rec.Benchmark] = append(failed[rec.Benchmark], rec.Host)
				continue
			}
			for name, v := range rec.Metrics {
				k := key{rec.Benchmark, name}
				values[k] = append(values[k], v)
			}
		}
	}

	out := make(map[string]BenchmarkSummary)
	get := func(bench string) BenchmarkSummary {
		if s, ok := out[bench]; ok {
			return s
		}
		return BenchmarkSummary{Metrics: make(map[string]Reduction)}
	}

	for k, vals := range values {
		s := get(k.bench)
		s.Metrics[k.metric] = Reduce(vals)
		out[k.bench] = s
	}
	for bench, hosts := range failed {
		s := get(bench)
		sort.Strings(hosts)
		s.Failed = hosts
		out[bench] = s
	}

	return out
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// HasResultJSON reports whether any .json file exists under dir.
func HasResultJSON(dir string) bool {
	found := false
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// Tail returns the last n bytes of output as a string, trimming a partial
// leading line when the output was cut.
func Tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	s := string(b[len(b)-n:])
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return s
}
