package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
)

func TestStaleTransportErrors(t *testing.T) {
	// Each of these means the transport died under the session.
	retryable := []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		fmt.Errorf("session: %w", io.EOF),
		&net.OpError{Op: "read", Err: errors.New("reset")},
		errors.New("use of closed network connection"),
		errors.New("connection reset by peer"),
		errors.New("write: broken pipe"),
	}
	for _, err := range retryable {
		if !stale(err) {
			t.Errorf("stale(%v) = false, want true", err)
		}
	}
}

func TestStalePermanentErrors(t *testing.T) {
	// Redialing fixes neither auth failures nor expired contexts, and a
	// benchmark's own exit status is not a transport problem.
	permanent := []error{
		nil,
		context.Canceled,
		context.DeadlineExceeded,
		fmt.Errorf("run: %w", context.Canceled),
		errors.New("ssh: handshake failed: ssh: unable to authenticate"),
		errors.New("gemm_flops: exit status 2"),
	}
	for _, err := range permanent {
		if stale(err) {
			t.Errorf("stale(%v) = true, want false", err)
		}
	}
}

func TestDropWithoutConnection(t *testing.T) {
	p := NewPool(Options{}, map[string]NodeConfig{"gpu-01": {Hostname: "10.0.0.1"}})
	p.drop("gpu-01")
	if p.Connected("gpu-01") {
		t.Error("dropped node reported as connected")
	}
}
