package ssh

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyCheck verifies a node's host key. It is x/crypto's callback
// type, re-exported so callers configure verification without importing
// the transport package themselves.
type HostKeyCheck = ssh.HostKeyCallback

// hostKeyChecker picks the verification policy: an explicit override
// wins, AcceptUnknownHosts turns verification off, and the default is
// the user's known_hosts file, which must exist.
func hostKeyChecker(opts Options) (HostKeyCheck, error) {
	if opts.HostKeyCheck != nil {
		return opts.HostKeyCheck, nil
	}
	if opts.AcceptUnknownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	path := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts at %s; pass --accept-unknown-hosts to skip verification", path)
	}

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return check, nil
}
