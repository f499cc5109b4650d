package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Dial connects to a node. With ProxyJump set (and not "none") the
// connection is tunneled hop by hop through the listed jump hosts.
func Dial(ctx context.Context, node string, opts Options) (*Client, error) {
	if opts.ProxyJump != "" && opts.ProxyJump != "none" {
		return dialJumped(ctx, node, opts)
	}
	return dialHost(ctx, node, opts)
}

// dialHost opens a direct connection.
func dialHost(ctx context.Context, node string, opts Options) (*Client, error) {
	conf, addr, err := clientConfig(node, opts)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	cc, err := handshake(ctx, conn, addr, conf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return &Client{node: node, conn: cc, opts: opts}, nil
}

// dialJumped walks the ProxyJump chain, then reaches the node through
// the final hop. Each hop inherits the auth settings of the base
// options with the spec's own user and port applied.
func dialJumped(ctx context.Context, node string, opts Options) (*Client, error) {
	var hops []*Client
	closeHops := func() {
		for i := len(hops) - 1; i >= 0; i-- {
			hops[i].Close()
		}
	}

	var last *Client
	for _, spec := range strings.Split(opts.ProxyJump, ",") {
		hopOpts, hopHost := hopOptions(opts, spec)
		var (
			hop *Client
			err error
		)
		if last == nil {
			hop, err = dialHost(ctx, hopHost, hopOpts)
		} else {
			hop, err = dialThrough(ctx, last, hopHost, hopOpts)
		}
		if err != nil {
			closeHops()
			return nil, fmt.Errorf("dial jump host %q: %w", strings.TrimSpace(spec), err)
		}
		hops = append(hops, hop)
		last = hop
	}

	finalOpts := opts
	finalOpts.ProxyJump = "" // the chain ends here
	target, err := dialThrough(ctx, last, node, finalOpts)
	if err != nil {
		closeHops()
		return nil, fmt.Errorf("dial %s via proxy: %w", node, err)
	}
	target.hops = hops
	return target, nil
}

// dialThrough opens a connection to node tunneled over an established
// client.
func dialThrough(ctx context.Context, via *Client, node string, opts Options) (*Client, error) {
	conf, addr, err := clientConfig(node, opts)
	if err != nil {
		return nil, err
	}

	conn, err := via.conn.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tunnel through %s to %s: %w", via.node, addr, err)
	}

	cc, err := handshake(ctx, conn, addr, conf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s (via %s): %w", addr, via.node, err)
	}
	return &Client{node: node, conn: cc, opts: opts}, nil
}

// hopOptions derives the options for one jump spec. Auth settings carry
// over from the base; user and port come from the spec when present.
func hopOptions(base Options, spec string) (Options, string) {
	user, host, port := splitJumpSpec(spec)
	o := Options{
		Port:               port,
		IdentityFiles:      base.IdentityFiles,
		Password:           base.Password,
		AcceptUnknownHosts: base.AcceptUnknownHosts,
		HostKeyCheck:       base.HostKeyCheck,
	}
	if user != "" {
		o.User = user
	}
	return o, host
}

// splitJumpSpec parses "user@host:port" with both the user and the
// port optional.
func splitJumpSpec(spec string) (user, host string, port int) {
	spec = strings.TrimSpace(spec)
	if at := strings.Index(spec, "@"); at >= 0 {
		user, spec = spec[:at], spec[at+1:]
	}
	if h, p, err := net.SplitHostPort(spec); err == nil {
		host = h
		port, _ = strconv.Atoi(p)
		return user, host, port
	}
	return user, spec, 0
}

// clientConfig resolves the address, login, auth chain and host key
// policy for one node. Values already present in opts are taken as
// final; ssh_config fills only the gaps, so resolved hostnames are
// never looked up a second time under the wrong alias.
func clientConfig(node string, opts Options) (*ssh.ClientConfig, string, error) {
	check, err := hostKeyChecker(opts)
	if err != nil {
		return nil, "", fmt.Errorf("host key policy: %w", err)
	}

	user := opts.User
	if user == "" {
		user = sshConfigValue(node, "User")
	}
	if user == "" {
		user = envUser()
	}

	port := opts.Port
	if port == 0 {
		port, _ = strconv.Atoi(sshConfigValue(node, "Port"))
	}
	if port == 0 {
		port = 22
	}

	conf := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods(node, opts),
		HostKeyCallback: check,
	}
	return conf, net.JoinHostPort(node, strconv.Itoa(port)), nil
}

// handshake upgrades a raw connection to SSH, abandoning the attempt
// when ctx expires.
func handshake(ctx context.Context, conn net.Conn, addr string, conf *ssh.ClientConfig) (*ssh.Client, error) {
	type outcome struct {
		client *ssh.Client
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
		if err != nil {
			done <- outcome{nil, err}
			return
		}
		done <- outcome{ssh.NewClient(c, chans, reqs), nil}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case o := <-done:
		return o.client, o.err
	}
}
