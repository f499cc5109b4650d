package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/benchfleet/benchfleet/internal/config"
)

// Definition describes one runnable benchmark: the command template, its
// default parameters, and the metric rules for its output.
type Definition struct {
	Name        string
	Description string
	Command     string // template with {param} placeholders
	Defaults    map[string]string
	Metrics     []config.MetricRule
	GPU         bool // requires a GPU on the node
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// RenderCommand substitutes parameters into the command template. Explicit
// parameters override the definition's defaults. An unresolved placeholder
// is an error.
func (d Definition) RenderCommand(params map[string]string) (string, error) {
	merged := make(map[string]string, len(d.Defaults)+len(params))
	for k, v := range d.Defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}

	var missing []string
	cmd := placeholderRe.ReplaceAllStringFunc(d.Command, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := merged[key]; ok {
			return v
		}
		missing = append(missing, key)
		return m
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("benchmark %q: unresolved parameters: %s", d.Name, strings.Join(missing, ", "))
	}

	return cmd, nil
}

// Resolve looks up a benchmark definition by name. User-defined custom
// benchmarks in cfg override built-ins. Returns the definition, whether a
// built-in exists for that name, and whether it was found at all.
func Resolve(name string, cfg *config.Config) (Definition, bool, bool) {
	_, isBuiltin := Builtins()[name]

	if cfg != nil {
		if c, ok := cfg.Custom[name]; ok {
			return fromCustom(name, c), isBuiltin, true
		}
	}

	if isBuiltin {
		return Builtins()[name], true, true
	}

	return Definition{}, false, false
}

// Merged returns built-in definitions merged with user-defined custom
// benchmarks. Custom entries override built-ins with the same name.
func Merged(cfg *config.Config) map[string]Definition {
	merged := make(map[string]Definition)
	for name, d := range Builtins() {
		merged[name] = d
	}
	if cfg != nil {
		for name, c := range cfg.Custom {
			merged[name] = fromCustom(name, c)
		}
	}
	return merged
}

func fromCustom(name string, c config.CustomBenchmark) Definition {
	return Definition{
		Name:        name,
		Description: "user-defined benchmark",
		Command:     c.Command,
		Metrics:     c.Metrics,
		GPU:         c.GPU,
	}
}
