// Package orchestrator sequences a benchmark run across the fleet:
// preflight, deploy, parallel execution in config order, and result
// collection.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/benchfleet/benchfleet/internal/buildtool"
	"github.com/benchfleet/benchfleet/internal/catalog"
	"github.com/benchfleet/benchfleet/internal/config"
	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/localexec"
	"github.com/benchfleet/benchfleet/internal/metrics"
	"github.com/benchfleet/benchfleet/internal/results"
	"github.com/benchfleet/benchfleet/internal/transfer"
)

// containerName is the workspace container (re)created on each node
// when deploying a container image.
const containerName = "benchfleet"

// rawTailBytes bounds how much raw output each record keeps.
const rawTailBytes = 2048

// helperTools are probed on PATH before a run; their absence is one
// aggregated warning, never fatal.
var helperTools = []string{"docker", "nvidia-smi", "numactl", "ibstat"}

// BundlePusher uploads the benchmark bundle to remote nodes. The
// transfer fleet implements it.
type BundlePusher interface {
	Push(ctx context.Context, nodes []string, localPath, remotePath string, fn transfer.Progress) []*transfer.Result
}

// StepEvent reports benchmark progress to an observer.
type StepEvent struct {
	Benchmark string
	Index     int // 1-based position in the plan
	Total     int
	Started   bool
	Records   []results.Record // set once the step finished
}

// Params configures an Orchestrator.
type Params struct {
	Config        *config.Config
	ConfigPath    string
	Inventory     *inventory.Inventory
	InventoryPath string
	Runner        executor.Runner
	Pusher        BundlePusher // nil on local-only fleets
	OutputDir     string
	Image         string
	SkipDeploy    bool
	BundleDir     string          // where built binaries are bundled from
	Notify        func(StepEvent) // optional, called synchronously from the run loop
}

// Orchestrator runs the deploy-then-run sequence.
type Orchestrator struct {
	cfg  *config.Config
	inv  *inventory.Inventory
	exec *executor.Executor
	push BundlePusher

	facts  map[string]NodeFacts // set by Preflight
	onStep func(StepEvent)

	configPath string
	invPath    string
	outputDir  string
	bundleDir  string
	image      string
	skipDeploy bool
}

// New creates an Orchestrator. Concurrency and the default timeout come
// from the config's defaults block.
func New(p Params) *Orchestrator {
	bundleDir := p.BundleDir
	if bundleDir == "" {
		bundleDir = buildtool.DefaultInstallDir
	}
	return &Orchestrator{
		cfg: p.Config,
		inv: p.Inventory,
		exec: executor.New(p.Runner,
			executor.WithConcurrency(p.Config.Defaults.Concurrency),
			executor.WithTimeout(p.Config.Defaults.Timeout.Duration)),
		push:       p.Pusher,
		onStep:     p.Notify,
		configPath: p.ConfigPath,
		invPath:    p.InventoryPath,
		outputDir:  p.OutputDir,
		bundleDir:  bundleDir,
		image:      p.Image,
		skipDeploy: p.SkipDeploy,
	}
}

func (o *Orchestrator) notify(e StepEvent) {
	if o.onStep != nil {
		o.onStep(e)
	}
}

func (o *Orchestrator) hosts() []string {
	return o.inv.Names()
}

// splitHosts separates connection=local nodes from SSH nodes.
func (o *Orchestrator) splitHosts() (locals, remotes []string) {
	for _, name := range o.inv.Names() {
		h, _ := o.inv.Get(name)
		if h.IsLocal() {
			locals = append(locals, name)
		} else {
			remotes = append(remotes, name)
		}
	}
	return locals, remotes
}

// CheckHelperTools probes the tools benchmarks lean on and warns once
// about anything missing. The run continues either way.
func (o *Orchestrator) CheckHelperTools() []string {
	var missing []string
	for _, tool := range helperTools {
		if _, err := look(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		log.Warn().Strs("tools", missing).Msg("helper tools not found, some benchmarks may degrade")
	}
	return missing
}

// Run executes the whole sequence: preflight, helper-tool probe, deploy
// unless skipped, every enabled benchmark in config order, then
// collection and the run summary.
func (o *Orchestrator) Run(ctx context.Context) (*results.Summary, error) {
	if _, err := o.Preflight(ctx); err != nil {
		return nil, err
	}

	// Resolve the whole plan before deploying anything, so a config
	// typo cannot leave the fleet half-prepared.
	plan, err := o.plan()
	if err != nil {
		return nil, err
	}
	o.CheckHelperTools()

	if o.skipDeploy {
		log.Info().Msg("skipping deploy, using binaries already on the nodes")
	} else if err := o.Deploy(ctx); err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	run := results.Run{
		ID:        results.NewRunID(started),
		Started:   started,
		Config:    o.configPath,
		Inventory: o.invPath,
		Image:     o.image,
		NoDocker:  o.skipDeploy,
		Hosts:     o.hosts(),
	}
	writer, err := results.NewWriter(o.outputDir, run)
	if err != nil {
		return nil, err
	}
	log.Info().Str("run", run.ID).Str("dir", writer.Dir()).Int("benchmarks", len(plan)).Msg("starting benchmark run")

	for i, s := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.notify(StepEvent{Benchmark: s.name, Index: i + 1, Total: len(plan), Started: true})
		recs := o.runBenchmark(ctx, writer, s)
		o.notify(StepEvent{Benchmark: s.name, Index: i + 1, Total: len(plan), Records: recs})
	}

	summary, err := writer.Flush(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !results.HasResultJSON(writer.Dir()) {
		log.Warn().Str("dir", writer.Dir()).Msg("no result JSON found after run")
	}
	return summary, nil
}

// step is one resolved benchmark ready to execute.
type step struct {
	name    string
	def     catalog.Definition
	command string
	hosts   []string
	timeout time.Duration
	extract *metrics.Extractor
}

// plan resolves every enabled benchmark up front, so a typo in the
// config fails before anything has run.
func (o *Orchestrator) plan() ([]step, error) {
	var steps []step
	for _, name := range o.cfg.Benchmarks.Names() {
		b, _ := o.cfg.Benchmarks.Get(name)
		if !b.Enabled() {
			log.Debug().Str("benchmark", name).Msg("disabled, skipping")
			continue
		}
		def, _, found := catalog.Resolve(name, o.cfg)
		if !found {
			return nil, fmt.Errorf("unknown benchmark %q in config", name)
		}
		command, err := def.RenderCommand(b.Parameters)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", name, err)
		}
		extract, err := metrics.New(def.Metrics)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", name, err)
		}
		hosts, err := o.matchHosts(b, def)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", name, err)
		}
		if len(hosts) == 0 {
			log.Warn().Str("benchmark", name).Msg("no eligible nodes, skipping")
			continue
		}
		steps = append(steps, step{
			name:    name,
			def:     def,
			command: command,
			hosts:   hosts,
			timeout: o.cfg.TimeoutFor(b),
			extract: extract,
		})
	}
	return steps, nil
}

// matchHosts resolves the benchmark's host pattern against the
// inventory and, for GPU benchmarks, drops nodes the preflight saw no
// GPUs on.
func (o *Orchestrator) matchHosts(b config.Benchmark, def catalog.Definition) ([]string, error) {
	matched, err := o.inv.Filter(o.cfg.HostsFor(b))
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, h := range matched {
		if def.GPU && o.facts != nil {
			if f, ok := o.facts[h.Name]; ok && f.GPUs == 0 {
				log.Debug().Str("host", h.Name).Msg("no GPUs, excluded from GPU benchmark")
				continue
			}
		}
		hosts = append(hosts, h.Name)
	}
	return hosts, nil
}

func (o *Orchestrator) runBenchmark(ctx context.Context, writer *results.Writer, s step) []results.Record {
	wrapped := o.wrapCommand(s.command)
	log.Info().Str("benchmark", s.name).Int("nodes", len(s.hosts)).Dur("timeout", s.timeout).Msg("running")

	var recs []results.Record
	for _, res := range o.exec.ExecuteWithTimeout(ctx, s.hosts, wrapped, s.timeout) {
		rec := results.Record{
			Benchmark: s.name,
			Host:      res.Host,
			Command:   s.command,
			ExitCode:  res.ExitCode,
			Duration:  res.Duration.Seconds(),
		}
		tail := res.Stdout
		if res.ExitCode != 0 && len(res.Stderr) > 0 {
			tail = res.Stderr
		}
		rec.RawTail = results.Tail(tail, rawTailBytes)

		if res.Err != nil {
			rec.Error = res.Err.Error()
		} else if res.ExitCode == 0 {
			rec.Metrics = s.extract.Extract(res.Stdout)
			if len(rec.Metrics) == 0 && len(s.def.Metrics) > 0 {
				log.Warn().Str("benchmark", s.name).Str("host", res.Host).Msg("no metrics matched the output")
			}
		}

		if !rec.OK() {
			log.Warn().Str("benchmark", s.name).Str("host", res.Host).Int("exit", res.ExitCode).Str("error", rec.Error).Msg("benchmark failed")
		} else {
			log.Debug().Str("benchmark", s.name).Str("host", res.Host).Int("metrics", len(rec.Metrics)).Msg("benchmark complete")
		}
		writer.Add(rec)
		recs = append(recs, rec)
	}
	return recs
}

// Stubbed in tests.
var look = localexec.Look
