package ssh

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DialError is a connection failure annotated with what the operator
// can do about it.
type DialError struct {
	Node string
	Err  error
	Hint string
}

func (e *DialError) Error() string {
	return fmt.Sprintf("%s: %v\n  hint: %s", e.Node, e.Err, e.Hint)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// hintRule maps a failure signature to operator guidance. Rules are
// checked in order; the first match decides the hint.
type hintRule struct {
	match func(err error, msg string) bool
	hint  func(node string) string
}

var hintRules = []hintRule{
	{
		match: func(_ error, msg string) bool {
			return strings.Contains(msg, "permission denied") && strings.Contains(msg, "key")
		},
		hint: func(string) string { return "check SSH key permissions (chmod 600)" },
	},
	{
		match: func(err error, msg string) bool {
			var authErr *ssh.ServerAuthError
			return errors.As(err, &authErr) ||
				strings.Contains(msg, "unable to authenticate") ||
				strings.Contains(msg, "no supported methods remain") ||
				strings.Contains(msg, "handshake failed")
		},
		hint: func(node string) string {
			return fmt.Sprintf("verify your SSH key or agent. Try: ssh -v %s", node)
		},
	},
	{
		match: func(_ error, msg string) bool {
			return strings.Contains(msg, "connection refused")
		},
		hint: func(string) string { return "verify sshd is running on the node" },
	},
	{
		match: func(err error, msg string) bool {
			var dnsErr *net.DNSError
			return errors.As(err, &dnsErr) ||
				strings.Contains(msg, "no such host") || strings.Contains(msg, "lookup")
		},
		hint: func(string) string { return "verify the hostname is correct" },
	},
	{
		match: func(err error, _ string) bool {
			var keyErr *knownhosts.KeyError
			return errors.As(err, &keyErr) && len(keyErr.Want) > 0
		},
		hint: func(node string) string {
			return fmt.Sprintf("remove the old key with: ssh-keygen -R %s", node)
		},
	},
	{
		match: func(_ error, msg string) bool {
			return strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts")
		},
		hint: func(node string) string {
			return fmt.Sprintf("pass --accept-unknown-hosts or connect once with: ssh %s", node)
		},
	},
}

// Classify wraps a connection error in a DialError carrying a hint for
// the operator. Errors matching no known signature pass through as-is.
func Classify(node string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, rule := range hintRules {
		if rule.match(err, msg) {
			return &DialError{Node: node, Err: err, Hint: rule.hint(node)}
		}
	}
	return err
}
