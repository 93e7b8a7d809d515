package node

import (
	"errors"
	"sync"
)

// ErrConnClosed is returned when sending to a closed connection.
var ErrConnClosed = errors.New("connection closed")

// Conn is a client connection. Lines are sent without their terminator.
type Conn interface {
	Send(line string) error
	Close() error
}

// InmemConn is a Conn that records the lines it is sent. It is used by tests
// and by the service to stand in for a socket.
type InmemConn struct {
	sync.Mutex
	lines  []string
	closed bool
	lineCh chan string
}

// NewInmemConn creates an open InmemConn.
func NewInmemConn() *InmemConn {
	return &InmemConn{
		lineCh: make(chan string, 1024),
	}
}

// Send implements the Conn interface.
func (c *InmemConn) Send(line string) error {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	c.lines = append(c.lines, line)

	select {
	case c.lineCh <- line:
	default:
	}

	return nil
}

// Close implements the Conn interface.
func (c *InmemConn) Close() error {
	c.Lock()
	defer c.Unlock()
	c.closed = true
	return nil
}

// Lines returns a copy of every line sent so far.
func (c *InmemConn) Lines() []string {
	c.Lock()
	defer c.Unlock()
	res := make([]string, len(c.lines))
	copy(res, c.lines)
	return res
}

// Closed reports whether the connection was closed.
func (c *InmemConn) Closed() bool {
	c.Lock()
	defer c.Unlock()
	return c.closed
}

// LineCh returns a channel with the lines sent, as long as the reader keeps
// up.
func (c *InmemConn) LineCh() <-chan string {
	return c.lineCh
}
