package node

import (
	"fmt"

	"github.com/mosaicnetworks/relay/src/metrics"
)

// lineBuffer holds the output of a client migrating here until it resumes.
type lineBuffer struct {
	lines []string
	limit int
}

func newLineBuffer(limit int) *lineBuffer {
	return &lineBuffer{limit: limit}
}

func (b *lineBuffer) push(line string) error {
	if b.limit > 0 && len(b.lines) >= b.limit {
		return fmt.Errorf("output buffer full (%d lines)", b.limit)
	}
	b.lines = append(b.lines, line)
	metrics.BufferedLines.Inc()
	return nil
}

func (b *lineBuffer) len() int {
	return len(b.lines)
}

// front returns the oldest line.
func (b *lineBuffer) front() (string, bool) {
	if len(b.lines) == 0 {
		return "", false
	}
	return b.lines[0], true
}

// shift drops the oldest line, once it has been sent.
func (b *lineBuffer) shift() {
	if len(b.lines) == 0 {
		return
	}
	b.lines[0] = ""
	b.lines = b.lines[1:]
	metrics.BufferedLines.Dec()
}

// drain empties the buffer and returns its lines in arrival order.
func (b *lineBuffer) drain() []string {
	res := b.lines
	b.lines = nil
	metrics.BufferedLines.Sub(float64(len(res)))
	return res
}
