package transfer

import "io"

// Progress observes a transfer in flight: done bytes moved so far out
// of total. Total is 0 when the source size is unknown.
type Progress func(node string, done, total int64)

// meter counts bytes through a writer and reports each write to the
// callback.
type meter struct {
	dst   io.Writer
	node  string
	done  int64
	total int64
	fn    Progress
}

func (m *meter) Write(p []byte) (int, error) {
	n, err := m.dst.Write(p)
	m.done += int64(n)
	if m.fn != nil {
		m.fn(m.node, m.done, m.total)
	}
	return n, err
}
