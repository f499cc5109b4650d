package ssh

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"github.com/benchfleet/benchfleet/internal/sshtest"
)

// testOptions builds dial options that only use the given identity
// file: the agent is disabled and host keys are not checked.
func testOptions(t *testing.T, port int, keyPath string) Options {
	t.Helper()
	t.Setenv("SSH_AUTH_SOCK", "")
	return Options{
		User:          "bench",
		Port:          port,
		IdentityFiles: []string{keyPath},
		HostKeyCheck:  gossh.InsecureIgnoreHostKey(),
	}
}

func dialTest(t *testing.T, srv *sshtest.Server, keyPath string) *Client {
	t.Helper()
	client, err := Dial(context.Background(), srv.Host, testOptions(t, srv.Port, keyPath))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientRun(t *testing.T) {
	pub, keyPath := sshtest.KeyPair(t)
	srv := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithExec(func(string) (string, string, int) {
		return "42 GB/s\n", "", 0
	}))

	out, err := dialTest(t, srv, keyPath).Run(context.Background(), "gpu_copy_bw")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Exit != 0 {
		t.Errorf("exit = %d, want 0", out.Exit)
	}
	if got := string(out.Stdout); got != "42 GB/s\n" {
		t.Errorf("stdout = %q, want %q", got, "42 GB/s\n")
	}
	if len(out.Stderr) != 0 {
		t.Errorf("stderr = %q, want empty", out.Stderr)
	}
}

func TestClientRunNonZeroExit(t *testing.T) {
	pub, keyPath := sshtest.KeyPair(t)
	srv := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithExec(func(string) (string, string, int) {
		return "", "no CUDA device found\n", 3
	}))

	out, err := dialTest(t, srv, keyPath).Run(context.Background(), "gemm_flops")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Exit != 3 {
		t.Errorf("exit = %d, want 3", out.Exit)
	}
	if got := string(out.Stderr); got != "no CUDA device found\n" {
		t.Errorf("stderr = %q", got)
	}
	if len(out.Stdout) != 0 {
		t.Errorf("stdout = %q, want empty", out.Stdout)
	}
}

func TestClientRunBothStreams(t *testing.T) {
	pub, keyPath := sshtest.KeyPair(t)
	srv := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithExec(func(string) (string, string, int) {
		return "result: ok\n", "warning: thermal throttling\n", 0
	}))

	out, err := dialTest(t, srv, keyPath).Run(context.Background(), "gpu_burn 10")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := string(out.Stdout); got != "result: ok\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := string(out.Stderr); got != "warning: thermal throttling\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestDialHandshakeTimeout(t *testing.T) {
	// A listener that accepts and then says nothing, so the handshake
	// can only end when the context does.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	t.Setenv("SSH_AUTH_SOCK", "")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = Dial(ctx, host, Options{User: "bench", Port: port, HostKeyCheck: gossh.InsecureIgnoreHostKey()})
	if err == nil {
		t.Fatal("dial succeeded against a mute server")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dial took %v, expected the context to cut it off", elapsed)
	}
}

func TestHostKeyCheckerMissingKnownHosts(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no .ssh/known_hosts inside

	_, err := hostKeyChecker(Options{})
	if err == nil {
		t.Fatal("expected an error without a known_hosts file")
	}
	if !strings.Contains(err.Error(), "known_hosts") {
		t.Errorf("err = %v, want mention of known_hosts", err)
	}
}

func TestHostKeyCheckerAcceptUnknown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	check, err := hostKeyChecker(Options{AcceptUnknownHosts: true})
	if err != nil {
		t.Fatalf("hostKeyChecker: %v", err)
	}
	if check == nil {
		t.Fatal("nil callback")
	}
}

func TestHostKeyCheckerExplicit(t *testing.T) {
	called := false
	override := func(string, net.Addr, gossh.PublicKey) error {
		called = true
		return nil
	}
	check, err := hostKeyChecker(Options{HostKeyCheck: override})
	if err != nil {
		t.Fatalf("hostKeyChecker: %v", err)
	}
	if err := check("node", nil, nil); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !called {
		t.Error("explicit callback was not used")
	}
}

func TestForNodeOverrides(t *testing.T) {
	base := Options{User: "fleet", Port: 22}
	nodes := map[string]NodeConfig{
		"bench-a": {Hostname: "10.0.0.5", User: "admin", Port: 2222, IdentityFile: "/keys/a", ProxyJump: "bastion"},
		"bench-b": {Port: 2200},
	}

	tests := []struct {
		name       string
		node       string
		wantTarget string
		wantUser   string
		wantPort   int
	}{
		{"full override", "bench-a", "10.0.0.5", "admin", 2222},
		{"partial override", "bench-b", "bench-b", "fleet", 2200},
		{"no override", "bench-c", "bench-c", "fleet", 22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, target := base.forNode(nodes, tt.node)
			if target != tt.wantTarget {
				t.Errorf("target = %q, want %q", target, tt.wantTarget)
			}
			if opts.User != tt.wantUser {
				t.Errorf("user = %q, want %q", opts.User, tt.wantUser)
			}
			if opts.Port != tt.wantPort {
				t.Errorf("port = %d, want %d", opts.Port, tt.wantPort)
			}
		})
	}

	opts, _ := base.forNode(nodes, "bench-a")
	if len(opts.IdentityFiles) != 1 || opts.IdentityFiles[0] != "/keys/a" {
		t.Errorf("identity files = %v, want [/keys/a]", opts.IdentityFiles)
	}
	if opts.ProxyJump != "bastion" {
		t.Errorf("proxy jump = %q, want bastion", opts.ProxyJump)
	}
}

func TestRunnerDialsNodeHostname(t *testing.T) {
	pub, keyPath := sshtest.KeyPair(t)
	srv := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithExec(func(cmd string) (string, string, int) {
		return cmd + "\n", "", 0
	}))

	// The inventory name does not resolve; only the override does.
	runner := NewRunner(testOptions(t, srv.Port, keyPath), map[string]NodeConfig{
		"gpu-node-01": {Hostname: srv.Host},
	})

	res := runner.Run(context.Background(), "gpu-node-01", "uname -r")
	if res.Err != nil {
		t.Fatalf("run: %v", res.Err)
	}
	if res.Host != "gpu-node-01" {
		t.Errorf("result host = %q, want the inventory name", res.Host)
	}
	if got := string(res.Stdout); got != "uname -r\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestSplitJumpSpec(t *testing.T) {
	tests := []struct {
		spec     string
		wantUser string
		wantHost string
		wantPort int
	}{
		{"bastion", "", "bastion", 0},
		{"ops@bastion", "ops", "bastion", 0},
		{"bastion:2222", "", "bastion", 2222},
		{"ops@bastion:2222", "ops", "bastion", 2222},
		{"  ops@bastion:2222  ", "ops", "bastion", 2222},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			user, host, port := splitJumpSpec(tt.spec)
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("splitJumpSpec(%q) = (%q, %q, %d), want (%q, %q, %d)",
					tt.spec, user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestProxyJumpNone(t *testing.T) {
	pub, keyPath := sshtest.KeyPair(t)
	srv := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithExec(func(string) (string, string, int) {
		return "direct\n", "", 0
	}))

	opts := testOptions(t, srv.Port, keyPath)
	opts.ProxyJump = "none"

	client, err := Dial(context.Background(), srv.Host, opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	out, err := client.Run(context.Background(), "hostname")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := string(out.Stdout); got != "direct\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestProxyJumpSingleHop(t *testing.T) {
	pub, keyPath := sshtest.KeyPair(t)
	target := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithExec(func(string) (string, string, int) {
		return "behind the bastion\n", "", 0
	}))
	jump := sshtest.Start(t, sshtest.AcceptKey(pub), sshtest.WithForwarding())

	opts := testOptions(t, target.Port, keyPath)
	opts.ProxyJump = jump.Addr

	client, err := Dial(context.Background(), target.Host, opts)
	if err != nil {
		t.Fatalf("dial via jump: %v", err)
	}
	defer client.Close()

	out, err := client.Run(context.Background(), "hostname")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := string(out.Stdout); got != "behind the bastion\n" {
		t.Errorf("stdout = %q", got)
	}
}
