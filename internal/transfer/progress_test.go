package transfer

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestMeterReportsCumulativeBytes(t *testing.T) {
	var done, totals []int64
	var buf bytes.Buffer
	m := &meter{dst: &buf, node: "gpu-a", total: 11, fn: func(node string, d, tot int64) {
		if node != "gpu-a" {
			t.Errorf("node = %q, want gpu-a", node)
		}
		done = append(done, d)
		totals = append(totals, tot)
	}}

	m.Write([]byte("hello"))
	m.Write([]byte(" world"))

	if buf.String() != "hello world" {
		t.Errorf("written = %q", buf.String())
	}
	if len(done) != 2 || done[0] != 5 || done[1] != 11 {
		t.Errorf("done = %v, want [5 11]", done)
	}
	if totals[0] != 11 || totals[1] != 11 {
		t.Errorf("totals = %v, want [11 11]", totals)
	}
}

func TestMeterNilCallback(t *testing.T) {
	var buf bytes.Buffer
	m := &meter{dst: &buf}
	if _, err := m.Write([]byte("quiet")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "quiet" {
		t.Errorf("written = %q", buf.String())
	}
}

func TestCopyCtxHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	n, err := copyCtx(ctx, &dst, strings.NewReader("never copied"))
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if n != 0 {
		t.Errorf("copied %d bytes after cancel", n)
	}
}

func TestCopyCtxCopiesAcrossChunks(t *testing.T) {
	src := strings.Repeat("x", 300<<10) // several copy chunks
	var dst bytes.Buffer

	n, err := copyCtx(context.Background(), &dst, strings.NewReader(src))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != int64(len(src)) || dst.Len() != len(src) {
		t.Errorf("copied %d bytes into %d, want %d", n, dst.Len(), len(src))
	}
}
