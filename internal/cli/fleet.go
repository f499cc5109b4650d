package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/benchfleet/benchfleet/internal/config"
	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/localexec"
	sshpkg "github.com/benchfleet/benchfleet/internal/ssh"
	"github.com/benchfleet/benchfleet/internal/transfer"
)

// baseOptions builds the SSH defaults shared by every dialing
// command. On a terminal, a password prompt backs up agent and key
// auth; in pipelines there is no last resort.
func baseOptions() sshpkg.Options {
	opts := sshpkg.Options{AcceptUnknownHosts: cfgAcceptUnknown}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		opts.Password = promptPassword
	}
	return opts
}

func promptPassword(node string) (string, error) {
	fmt.Fprintf(os.Stderr, "password for %s: ", node)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// sshNodeConfs converts the inventory's SSH hosts to per-node dial
// overrides. Load already merged ~/.ssh/config, so the fields are as
// resolved as they get before dialing.
func sshNodeConfs(inv *inventory.Inventory) map[string]sshpkg.NodeConfig {
	confs := make(map[string]sshpkg.NodeConfig, len(inv.Hosts))
	for _, h := range inv.Hosts {
		if h.IsLocal() {
			continue
		}
		confs[h.Name] = sshpkg.NodeConfig{
			Hostname:     h.Addr,
			User:         h.User,
			Port:         h.Port,
			IdentityFile: h.IdentityFile,
			ProxyJump:    h.ProxyJump,
		}
	}
	return confs
}

// fleetRunner picks the one-shot execution path for the inventory:
// pure-local fleets never touch SSH, mixed fleets route per host. For
// command sequences prefer pooledRunner.
func fleetRunner(inv *inventory.Inventory, base sshpkg.Options) executor.Runner {
	if inv.HasLocalOnly() {
		return localexec.New()
	}
	remote := sshpkg.NewRunner(base, sshNodeConfs(inv))
	for _, h := range inv.Hosts {
		if h.IsLocal() {
			return routed(inv, remote)
		}
	}
	return remote
}

// pooledRunner is fleetRunner with persistent connections: preflight,
// deploy, probes and benchmarks all reuse one SSH connection per node.
// The pool is nil for pure-local fleets; the caller closes it.
func pooledRunner(inv *inventory.Inventory, base sshpkg.Options) (executor.Runner, *sshpkg.Pool) {
	if inv.HasLocalOnly() {
		return localexec.New(), nil
	}
	pool := sshpkg.NewPool(base, sshNodeConfs(inv))
	for _, h := range inv.Hosts {
		if h.IsLocal() {
			return routed(inv, pool), pool
		}
	}
	return pool, pool
}

func routed(inv *inventory.Inventory, remote executor.Runner) *executor.RouteRunner {
	return &executor.RouteRunner{
		Local:  localexec.New(),
		Remote: remote,
		IsLocal: func(host string) bool {
			h, ok := inv.Get(host)
			return ok && h.IsLocal()
		},
	}
}

// poolPusher wraps the pool in the SFTP fleet, bounded like the
// command executor. Nil in, nil out for local-only fleets.
func poolPusher(pool *sshpkg.Pool, cfg *config.Config) *transfer.Fleet {
	if pool == nil {
		return nil
	}
	return transfer.New(pool,
		transfer.WithConcurrency(cfg.Defaults.Concurrency),
		transfer.WithTimeout(cfg.Defaults.Timeout.Duration))
}

// selectNames resolves a host pattern against the inventory. An empty
// pattern selects every host.
func selectNames(inv *inventory.Inventory, pattern string) ([]string, error) {
	hosts, err := inv.Filter(pattern)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.Name
	}
	return names, nil
}

// colorEnabled reports whether stdout rendering may use ANSI colors.
// Logging color is decided separately by the logging package.
func colorEnabled() bool {
	if cfgNoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
