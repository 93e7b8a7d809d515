package node

import (
	"fmt"
	"sort"

	"github.com/mosaicnetworks/relay/src/metrics"
	"github.com/mosaicnetworks/relay/src/migration"
)

type client struct {
	name  string
	conn  Conn
	state map[string]string
	// buffer is set while the client is migrating here and has not resumed.
	buffer *lineBuffer
}

// clientSet is the connection-registration subsystem of a node. It implements
// migration.Connections. Calls are serialised by the node.
type clientSet struct {
	clients map[string]*client
	// handoffs holds client state shipped here, until the flip arrives.
	handoffs map[string]map[string]string
	// migrants are connections waiting to present their resume token.
	migrants    map[string]Conn
	migrantSeq  int
	bufferLimit int
}

var _ migration.Connections = (*clientSet)(nil)

func newClientSet(bufferLimit int) *clientSet {
	return &clientSet{
		clients:     make(map[string]*client),
		handoffs:    make(map[string]map[string]string),
		migrants:    make(map[string]Conn),
		bufferLimit: bufferLimit,
	}
}

func (cs *clientSet) connect(name string, conn Conn) error {
	if _, ok := cs.clients[name]; ok {
		return fmt.Errorf("client %s already connected", name)
	}
	cs.clients[name] = &client{
		name:  name,
		conn:  conn,
		state: make(map[string]string),
	}
	metrics.LocalClients.Inc()
	return nil
}

func (cs *clientSet) get(name string) (*client, bool) {
	c, ok := cs.clients[name]
	return c, ok
}

func (cs *clientSet) names() []string {
	res := make([]string, 0, len(cs.clients))
	for name := range cs.clients {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// remove closes the connection of a client and forgets it.
func (cs *clientSet) remove(name string) {
	c, ok := cs.clients[name]
	if !ok {
		return
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if c.buffer != nil {
		c.buffer.drain()
	}
	delete(cs.clients, name)
	metrics.LocalClients.Dec()
}

// send writes a line to a client, or to its buffer while it is migrating
// here.
func (cs *clientSet) send(name, line string) error {
	c, ok := cs.clients[name]
	if !ok {
		return fmt.Errorf("client %s not connected", name)
	}
	if c.buffer != nil {
		return c.buffer.push(line)
	}
	return c.conn.Send(line)
}

func (cs *clientSet) stateOf(name string) map[string]string {
	c, ok := cs.clients[name]
	if !ok {
		return nil
	}
	res := make(map[string]string, len(c.state))
	for k, v := range c.state {
		res[k] = v
	}
	return res
}

func (cs *clientSet) stageHandoff(name string, state map[string]string) {
	cs.handoffs[name] = state
}

func (cs *clientSet) dropHandoff(name string) {
	delete(cs.handoffs, name)
}

func (cs *clientSet) addMigrant(conn Conn) string {
	cs.migrantSeq++
	name := fmt.Sprintf("~migrant-%d", cs.migrantSeq)
	cs.migrants[name] = conn
	return name
}

func (cs *clientSet) dropMigrant(name string) {
	if conn, ok := cs.migrants[name]; ok {
		conn.Close()
		delete(cs.migrants, name)
	}
}

// IsLocal implements migration.Connections.
func (cs *clientSet) IsLocal(name string) bool {
	_, ok := cs.clients[name]
	return ok
}

// Buffer implements migration.Connections.
func (cs *clientSet) Buffer(name string) error {
	if _, ok := cs.clients[name]; ok {
		return fmt.Errorf("client %s already connected", name)
	}

	state, ok := cs.handoffs[name]
	if !ok || state == nil {
		state = make(map[string]string)
	}
	delete(cs.handoffs, name)

	cs.clients[name] = &client{
		name:   name,
		state:  state,
		buffer: newLineBuffer(cs.bufferLimit),
	}
	metrics.LocalClients.Inc()
	return nil
}

// Transfer implements migration.Connections.
func (cs *clientSet) Transfer(name, migrant string) error {
	c, ok := cs.clients[name]
	if !ok {
		return fmt.Errorf("client %s not buffered", name)
	}
	conn, ok := cs.migrants[migrant]
	if !ok {
		return fmt.Errorf("unknown migrant %s", migrant)
	}
	delete(cs.migrants, migrant)
	c.conn = conn
	return nil
}

// Flush implements migration.Connections. A line leaves the buffer only once
// it is sent, so a failed flush keeps the rest for the next connection.
func (cs *clientSet) Flush(name string) error {
	c, ok := cs.clients[name]
	if !ok || c.conn == nil {
		return fmt.Errorf("client %s has no connection", name)
	}
	if c.buffer == nil {
		return nil
	}

	for {
		line, ok := c.buffer.front()
		if !ok {
			break
		}
		if err := c.conn.Send(line); err != nil {
			return err
		}
		c.buffer.shift()
	}

	c.buffer = nil
	return nil
}

// Restore implements migration.Connections.
func (cs *clientSet) Restore(name, migrant string) error {
	c, ok := cs.clients[name]
	if !ok || c.conn == nil {
		return fmt.Errorf("client %s has no connection", name)
	}
	if c.buffer == nil {
		c.buffer = newLineBuffer(cs.bufferLimit)
	}
	cs.migrants[migrant] = c.conn
	c.conn = nil
	return nil
}
