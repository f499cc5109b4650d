package metrics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/benchfleet/benchfleet/internal/config"
)

// rule is a compiled metric rule.
type rule struct {
	name   string
	re     *regexp.Regexp // nil if using column mode
	column int            // 0 if using regex mode (1-based when set)
}

// Extractor pulls named numeric metrics out of benchmark output.
type Extractor struct {
	rules []rule
}

// numberRe matches the leading numeric part of a token, so values like
// "25.1GB/s" still parse.
var numberRe = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?`)

// New creates an Extractor from config metric rules.
// It compiles regex patterns and validates rules.
func New(rules []config.MetricRule) (*Extractor, error) {
	compiled := make([]rule, 0, len(rules))
	for _, r := range rules {
		cr := rule{name: r.Name}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid regex for metric %q: %w", r.Name, err)
			}
			cr.re = re
		} else if r.Column > 0 {
			cr.column = r.Column
		} else {
			return nil, fmt.Errorf("rule for metric %q must have pattern or column", r.Name)
		}
		compiled = append(compiled, cr)
	}
	return &Extractor{rules: compiled}, nil
}

// Names returns the metric names in rule order.
func (e *Extractor) Names() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.name
	}
	return names
}

// Extract parses benchmark stdout and returns the metrics it could read.
// A rule that matches nothing, or matches something non-numeric, leaves its
// metric out of the result rather than failing the extraction.
func (e *Extractor) Extract(stdout []byte) map[string]float64 {
	values := make(map[string]float64, len(e.rules))
	text := string(stdout)

	for _, r := range e.rules {
		var raw string
		if r.re != nil {
			matches := r.re.FindStringSubmatch(text)
			if len(matches) >= 2 {
				raw = matches[1]
			}
		} else if r.column > 0 {
			raw = extractColumn(text, r.column)
		}
		if raw == "" {
			continue
		}
		if v, ok := parseValue(raw); ok {
			values[r.name] = v
		}
	}

	return values
}

// extractColumn splits text into lines, finds the first non-empty data line
// (skipping the first line as a header), splits by whitespace, and returns
// the column at the given 1-based index.
func extractColumn(text string, col int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if col <= len(fields) {
			return fields[col-1]
		}
		return ""
	}
	return ""
}

// parseValue reads the leading number from a raw token, tolerating unit
// suffixes like "GB/s".
func parseValue(raw string) (float64, bool) {
	m := numberRe.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
