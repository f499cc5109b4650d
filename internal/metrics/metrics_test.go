package metrics

import (
	"testing"

	"github.com/benchfleet/benchfleet/internal/config"
)

func mustNew(t *testing.T, rules []config.MetricRule) *Extractor {
	t.Helper()
	e, err := New(rules)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return e
}

func TestExtractPattern(t *testing.T) {
	output := `running copy benchmark
iterations: 20
bandwidth 25.13 GB/s
done
`
	e := mustNew(t, []config.MetricRule{
		{Name: "bandwidth_gbps", Pattern: `bandwidth\s+([0-9.]+)`},
	})

	got := e.Extract([]byte(output))
	if len(got) != 1 {
		t.Fatalf("extracted %d metrics, want 1", len(got))
	}
	if got["bandwidth_gbps"] != 25.13 {
		t.Errorf("bandwidth_gbps = %v, want 25.13", got["bandwidth_gbps"])
	}
}

func TestExtractColumn(t *testing.T) {
	output := `Function  Rate(GB/s)  AvgTime
Copy      31.5        0.002
Scale     30.9        0.003
`
	e := mustNew(t, []config.MetricRule{
		{Name: "copy_gbps", Column: 2},
	})

	got := e.Extract([]byte(output))
	if got["copy_gbps"] != 31.5 {
		t.Errorf("copy_gbps = %v, want 31.5", got["copy_gbps"])
	}
}

func TestExtractUnitSuffix(t *testing.T) {
	e := mustNew(t, []config.MetricRule{
		{Name: "bw", Pattern: `copy:\s+(\S+)`},
	})

	got := e.Extract([]byte("copy: 12.5GB/s\n"))
	if got["bw"] != 12.5 {
		t.Errorf("bw = %v, want 12.5", got["bw"])
	}
}

func TestExtractScientificNotation(t *testing.T) {
	e := mustNew(t, []config.MetricRule{
		{Name: "overhead_us", Pattern: `overhead\s+(\S+)`},
	})

	got := e.Extract([]byte("overhead 3.2e-06 s\n"))
	if got["overhead_us"] != 3.2e-06 {
		t.Errorf("overhead_us = %v, want 3.2e-06", got["overhead_us"])
	}
}

func TestExtractMissingIsNotFatal(t *testing.T) {
	e := mustNew(t, []config.MetricRule{
		{Name: "present", Pattern: `value=([0-9.]+)`},
		{Name: "absent", Pattern: `missing=([0-9.]+)`},
		{Name: "garbage", Pattern: `label=(\S+)`},
	})

	got := e.Extract([]byte("value=7\nlabel=N/A\n"))
	if len(got) != 1 {
		t.Fatalf("extracted %d metrics, want 1: %v", len(got), got)
	}
	if got["present"] != 7 {
		t.Errorf("present = %v, want 7", got["present"])
	}
	if _, ok := got["absent"]; ok {
		t.Error("absent metric should be missing from result")
	}
	if _, ok := got["garbage"]; ok {
		t.Error("non-numeric metric should be missing from result")
	}
}

func TestExtractGarbageInput(t *testing.T) {
	e := mustNew(t, []config.MetricRule{
		{Name: "x", Pattern: `x=([0-9.]+)`},
		{Name: "col", Column: 3},
	})

	for _, input := range []string{"", "\x00\xff\xfe", "no metrics here", "one\n"} {
		if got := e.Extract([]byte(input)); len(got) != 0 {
			t.Errorf("Extract(%q) = %v, want empty", input, got)
		}
	}
}

func TestExtractColumnPastEnd(t *testing.T) {
	e := mustNew(t, []config.MetricRule{{Name: "x", Column: 9}})

	got := e.Extract([]byte("header\na b c\n"))
	if len(got) != 0 {
		t.Errorf("Extract = %v, want empty for column past end", got)
	}
}

func TestNames(t *testing.T) {
	e := mustNew(t, []config.MetricRule{
		{Name: "first", Column: 1},
		{Name: "second", Column: 2},
	})

	names := e.Names()
	if len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("Names() = %v, want [first second]", names)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name  string
		rules []config.MetricRule
	}{
		{"bad regex", []config.MetricRule{{Name: "x", Pattern: "(unclosed"}}},
		{"neither pattern nor column", []config.MetricRule{{Name: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.rules); err == nil {
				t.Error("New succeeded, want error")
			}
		})
	}
}
