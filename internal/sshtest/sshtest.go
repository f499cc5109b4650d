// Package sshtest runs an in-process SSH server so the connection
// layer can be exercised without real nodes. The default server echoes
// every exec command back as stdout; tests script node behavior with
// WithExec.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecFunc scripts what a fake node answers for one exec request.
type ExecFunc func(command string) (stdout, stderr string, exit int)

// Server is a running in-process SSH server. It shuts down with the
// test that started it.
type Server struct {
	Addr string // host:port as dialed
	Host string
	Port int
}

type options struct {
	authorizedKey ssh.PublicKey
	password      string
	open          bool
	forwarding    bool
	exec          ExecFunc
	sftpRoot      string
}

// Option configures the server before it starts listening.
type Option func(*options)

// AcceptKey authorizes exactly this public key.
func AcceptKey(pub ssh.PublicKey) Option {
	return func(o *options) { o.authorizedKey = pub }
}

// AcceptPassword authorizes exactly this password.
func AcceptPassword(pw string) Option {
	return func(o *options) { o.password = pw }
}

// AcceptAll authorizes every connection.
func AcceptAll() Option {
	return func(o *options) { o.open = true }
}

// WithExec scripts the node's answer to exec requests.
func WithExec(fn ExecFunc) Option {
	return func(o *options) { o.exec = fn }
}

// WithForwarding allows direct-tcpip channels, which jump-host dialing
// needs.
func WithForwarding() Option {
	return func(o *options) { o.forwarding = true }
}

// WithSFTP serves the sftp subsystem with relative paths resolved
// under dir, so transfers land on the local filesystem.
func WithSFTP(dir string) Option {
	return func(o *options) { o.sftpRoot = dir }
}

// Start launches the server on a loopback port and registers its
// shutdown with t.Cleanup.
func Start(t *testing.T, opts ...Option) *Server {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	conf := &ssh.ServerConfig{NoClientAuth: o.open}
	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}
	conf.AddHostKey(signer)

	if o.authorizedKey != nil {
		want := string(o.authorizedKey.Marshal())
		conf.PublicKeyCallback = func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == want {
				return nil, nil
			}
			return nil, errors.New("key not authorized")
		}
	}
	if o.password != "" {
		conf.PasswordCallback = func(_ ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if string(pw) == o.password {
				return nil, nil
			}
			return nil, errors.New("wrong password")
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, conf, &o)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
	})

	addr := ln.Addr().String()
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return &Server{Addr: addr, Host: host, Port: port}
}

func serveConn(conn net.Conn, conf *ssh.ServerConfig, o *options) {
	defer conn.Close()

	sc, chans, reqs, err := ssh.NewServerConn(conn, conf)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		switch ch.ChannelType() {
		case "session":
			accepted, requests, err := ch.Accept()
			if err != nil {
				continue
			}
			go serveSession(accepted, requests, o)
		case "direct-tcpip":
			if !o.forwarding {
				ch.Reject(ssh.Prohibited, "forwarding not enabled")
				continue
			}
			accepted, _, err := ch.Accept()
			if err != nil {
				continue
			}
			go serveForward(accepted, ch.ExtraData())
		default:
			ch.Reject(ssh.UnknownChannelType, "unknown channel type")
		}
	}
}

// serveSession answers the first exec or subsystem request on a
// session channel and closes it, the way a real sshd finishes a
// command session.
func serveSession(ch ssh.Channel, reqs <-chan *ssh.Request, o *options) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			command, ok := payloadString(req.Payload)
			if !ok {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			stdout, stderr, exit := command, "", 0
			if o.exec != nil {
				stdout, stderr, exit = o.exec(command)
			}
			if stdout != "" {
				io.WriteString(ch, stdout)
			}
			if stderr != "" {
				io.WriteString(ch.Stderr(), stderr)
			}

			status := make([]byte, 4)
			binary.BigEndian.PutUint32(status, uint32(exit))
			ch.SendRequest("exit-status", false, status)
			return

		case "subsystem":
			name, ok := payloadString(req.Payload)
			if !ok || name != "sftp" || o.sftpRoot == "" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			srv, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(o.sftpRoot))
			if err != nil {
				return
			}
			srv.Serve()
			return

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// payloadString unpacks the length-prefixed string that exec and
// subsystem request payloads share.
func payloadString(payload []byte) (string, bool) {
	if len(payload) < 4 {
		return "", false
	}
	n := int(binary.BigEndian.Uint32(payload))
	if len(payload) < 4+n {
		return "", false
	}
	return string(payload[4 : 4+n]), true
}

// serveForward bridges a direct-tcpip channel to the requested target.
func serveForward(ch ssh.Channel, extra []byte) {
	defer ch.Close()

	if len(extra) < 4 {
		return
	}
	n := int(binary.BigEndian.Uint32(extra))
	if len(extra) < 4+n+4 {
		return
	}
	host := string(extra[4 : 4+n])
	port := binary.BigEndian.Uint32(extra[4+n:])

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(ch, conn); done <- struct{}{} }()
	go func() { io.Copy(conn, ch); done <- struct{}{} }()
	<-done
}

// KeyPair generates an ed25519 key, writes the private half to a temp
// file, and returns the public key with the file path.
func KeyPair(t *testing.T) (ssh.PublicKey, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("key signer: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return signer.PublicKey(), path
}
