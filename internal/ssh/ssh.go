// Package ssh is the fleet connection layer: it dials benchmark nodes
// and runs commands on them. Authentication walks the usual client
// chain (agent, identity files, password prompt), host keys verify
// against known_hosts unless explicitly skipped, and every blocking
// step honors its context. Runner dials per command; Pool keeps one
// connection per node for the length of a run. Both satisfy the
// executor's Runner contract.
package ssh

// PasswordPrompt supplies a login password for a node once agent and
// key auth are exhausted.
type PasswordPrompt func(node string) (string, error)

// Options are the dial settings shared across the fleet. Zero values
// defer to ~/.ssh/config and the usual defaults.
type Options struct {
	// User logs in as this name. Empty falls back to ssh_config,
	// then $USER, then root.
	User string

	// Port connects on this port. Zero falls back to ssh_config,
	// then 22.
	Port int

	// IdentityFiles are private keys to offer, in order. Empty falls
	// back to ssh_config and the conventional ~/.ssh key names.
	IdentityFiles []string

	// Password, when set, is the last auth resort.
	Password PasswordPrompt

	// AcceptUnknownHosts skips known_hosts verification entirely.
	AcceptUnknownHosts bool

	// HostKeyCheck overrides host key verification when non-nil.
	HostKeyCheck HostKeyCheck

	// ProxyJump routes the connection through one or more
	// comma-separated jump hosts. The literal "none" disables
	// jumping, matching OpenSSH.
	ProxyJump string
}

// NodeConfig narrows the shared Options for one node. The inventory
// layer fills these from host lines merged with ~/.ssh/config.
type NodeConfig struct {
	Hostname     string // address to dial when it differs from the node name
	User         string
	Port         int
	IdentityFile string
	ProxyJump    string
}

// forNode returns the effective options and dial target for a node,
// applying any per-node overrides onto the shared base.
func (o Options) forNode(nodes map[string]NodeConfig, name string) (Options, string) {
	target := name
	nc, ok := nodes[name]
	if !ok {
		return o, target
	}
	if nc.Hostname != "" {
		target = nc.Hostname
	}
	if nc.User != "" {
		o.User = nc.User
	}
	if nc.Port > 0 {
		o.Port = nc.Port
	}
	if nc.IdentityFile != "" {
		o.IdentityFiles = []string{nc.IdentityFile}
	}
	if nc.ProxyJump != "" {
		o.ProxyJump = nc.ProxyJump
	}
	return o, target
}
