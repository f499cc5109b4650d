// Package discover probes address ranges for nodes answering on the
// SSH port, giving a starting point for an inventory on a fresh
// cluster.
package discover

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Node is an address that accepted a TCP connection on the probed
// port.
type Node struct {
	Addr netip.Addr
	Port int
}

// Scanner dials every usable address in a range and keeps the ones
// that answer. The zero value probes port 22 with a 2s per-address
// timeout and 256 parallel dials.
type Scanner struct {
	Port        int
	Timeout     time.Duration
	Concurrency int
}

// Scan probes the CIDR and returns the reachable nodes sorted by
// address. Unreachable addresses are skipped silently; only a
// malformed CIDR is an error. Canceling the context stops the probe
// early and returns whatever was found by then.
func (s *Scanner) Scan(ctx context.Context, cidr string) ([]Node, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse cidr: %w", err)
	}

	var (
		mu    sync.Mutex
		found []Node
	)
	var g errgroup.Group
	g.SetLimit(s.limit())
	for _, addr := range hostAddrs(prefix) {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if s.open(ctx, addr) {
				mu.Lock()
				found = append(found, Node{Addr: addr, Port: s.port()})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(found, func(i, j int) bool { return found[i].Addr.Less(found[j].Addr) })
	return found, nil
}

func (s *Scanner) open(ctx context.Context, addr netip.Addr) bool {
	d := net.Dialer{Timeout: s.timeout()}
	conn, err := d.DialContext(ctx, "tcp", netip.AddrPortFrom(addr, uint16(s.port())).String())
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Scanner) port() int {
	if s.Port > 0 {
		return s.Port
	}
	return 22
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 2 * time.Second
}

func (s *Scanner) limit() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return 256
}

// hostAddrs lists the usable addresses of an IPv4 prefix. Below /31
// the network and broadcast addresses are skipped; a /31 is
// point-to-point with both addresses usable, a /32 a single host.
// IPv6 ranges are too large to sweep and return nil.
func hostAddrs(prefix netip.Prefix) []netip.Addr {
	if !prefix.Addr().Is4() {
		return nil
	}
	prefix = prefix.Masked()

	switch prefix.Bits() {
	case 32:
		return []netip.Addr{prefix.Addr()}
	case 31:
		return []netip.Addr{prefix.Addr(), prefix.Addr().Next()}
	}

	var addrs []netip.Addr
	for a := prefix.Addr().Next(); prefix.Contains(a.Next()); a = a.Next() {
		addrs = append(addrs, a)
	}
	return addrs
}
