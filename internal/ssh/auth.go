package ssh

import (
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	sshconfig "github.com/kevinburke/ssh_config"

	"github.com/benchfleet/benchfleet/internal/pathutil"
)

// authMethods builds the ordered auth chain for one node: agent first,
// then identity files, then the password prompt as a last resort.
func authMethods(node string, opts Options) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if m := agentMethod(); m != nil {
		methods = append(methods, m)
	}

	for _, path := range identityFiles(node, opts) {
		if signer := signerFromFile(path); signer != nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if opts.Password != nil {
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return opts.Password(node)
		}))
	}
	return methods
}

// liveAgent is the process-wide agent connection, dialed on first use.
// A mutex rather than sync.Once lets a failed or stale dial be retried
// on the next node.
var liveAgent struct {
	mu   sync.Mutex
	conn net.Conn
	ext  agent.ExtendedAgent
}

// CloseAgent drops the shared agent connection. Safe to call when none
// was ever opened.
func CloseAgent() {
	liveAgent.mu.Lock()
	defer liveAgent.mu.Unlock()
	if liveAgent.conn != nil {
		liveAgent.conn.Close()
		liveAgent.conn = nil
		liveAgent.ext = nil
	}
}

// agentMethod returns agent-backed public key auth, or nil when no
// agent is reachable or it holds no keys.
func agentMethod() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}

	liveAgent.mu.Lock()
	defer liveAgent.mu.Unlock()

	if liveAgent.ext != nil {
		keys, err := liveAgent.ext.List()
		switch {
		case err == nil && len(keys) > 0:
			return ssh.PublicKeysCallback(liveAgent.ext.Signers)
		case err == nil:
			return nil
		}
		// Stale socket; drop it and redial below.
		liveAgent.conn.Close()
		liveAgent.conn = nil
		liveAgent.ext = nil
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	liveAgent.conn = conn
	liveAgent.ext = agent.NewClient(conn)

	if keys, err := liveAgent.ext.List(); err != nil || len(keys) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(liveAgent.ext.Signers)
}

// identityFiles returns the private keys to offer for a node: explicit
// options win outright, otherwise ssh_config's IdentityFile plus the
// conventional key names that exist on disk.
func identityFiles(node string, opts Options) []string {
	if len(opts.IdentityFiles) > 0 {
		return opts.IdentityFiles
	}

	var files []string
	if identity := sshConfigValue(node, "IdentityFile"); identity != "" {
		if p := pathutil.ExpandHome(identity); fileExists(p) {
			files = append(files, p)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return files
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		if p := filepath.Join(home, ".ssh", name); fileExists(p) {
			files = append(files, p)
		}
	}
	return files
}

// signerFromFile loads a private key, or nil when the file is missing
// or not a parseable key.
func signerFromFile(path string) ssh.Signer {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return signer
}

// sshConfigValue looks a key up in the user's ssh_config, empty when
// unset or unreadable.
func sshConfigValue(node, key string) string {
	return sshconfig.Get(node, key)
}

// envUser is the login fallback once options and ssh_config are silent.
func envUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "root"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
