package node

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/net"
	"github.com/mosaicnetworks/relay/src/tree"
	"github.com/sirupsen/logrus"
)

// Node is a relay server. It owns the local clients, the migration records
// and the links to its neighbors in the tree. Every event, whether it comes
// from the network, from a client, or from the service, is processed under
// coreLock, one at a time.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	tree    *tree.Tree
	store   migration.Store
	manager *migration.Manager
	clients *clientSet
	links   map[string]*link
	// lastSeq is the Sequence of the last request processed from each
	// neighbor.
	lastSeq map[string]net.Sequence

	coreLock sync.Mutex

	trans net.Transport
	netCh <-chan net.RPC

	shutdownCh chan struct{}

	start       time.Time
	rpcsIn      int
	messagesOut int
	failSafes   int
	replays     int
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	tr *tree.Tree,
	store migration.Store,
	trans net.Transport,
) *Node {

	node := Node{
		conf:       conf,
		logger:     conf.Logger.WithField("this_id", tr.Self()),
		tree:       tr,
		store:      store,
		clients:    newClientSet(conf.BufferLimit),
		links:      make(map[string]*link),
		lastSeq:    make(map[string]net.Sequence),
		trans:      trans,
		netCh:      trans.Consumer(),
		shutdownCh: make(chan struct{}),
	}

	node.manager = migration.NewManager(tr,
		store,
		node.clients,
		&outbox{node: &node},
		migration.RandomTokens(),
		conf.Logger.WithField("prefix", "migration"))

	return &node
}

// Init starts the links to the neighbors and resumes the migrations found in
// the store.
func (n *Node) Init() error {
	for _, name := range n.tree.Neighbors() {
		s, _ := n.tree.Server(name)
		addr := s.NetAddr
		if addr == "" {
			addr = name
		}
		l := newLink(name, addr, n.trans, n.conf.RetryDelay, n.shutdownCh, n.logger)
		n.links[name] = l
		n.goFunc(l.run)
	}

	for _, m := range n.store.All() {
		n.logger.WithFields(logrus.Fields{
			"client":       m.Client,
			"destination":  m.Destination,
			"furthest_ack": m.FurthestAck,
			"state":        m.State,
		}).Info("Loaded migration")

		// There is no connection to buffer into yet.
		if m.Destination == n.tree.Self() && m.State == migration.AwaitingResume {
			if err := n.clients.Buffer(m.Client); err != nil {
				return err
			}
		}
	}

	n.start = time.Now()

	n.logger.WithField("neighbors", n.tree.Neighbors()).Debug("Init")

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	go n.Run()
}

// Run processes incoming RPCs until Shutdown.
func (n *Node) Run() {
	n.setState(Running)

	for {
		select {
		case rpc := <-n.netCh:
			n.coreLock.Lock()
			n.processRPC(rpc)
			n.coreLock.Unlock()
		case <-n.shutdownCh:
			return
		}
	}
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		close(n.shutdownCh)

		n.waitRoutines()

		n.trans.Close()

		n.store.Close()
	}
}

/*******************************************************************************
Client API
*******************************************************************************/

// Name returns the name of the server.
func (n *Node) Name() string {
	return n.tree.Self()
}

// Connect registers a new local client.
func (n *Node) Connect(name string, conn Conn) error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if name == "" || strings.ContainsAny(name, " ~") {
		return fmt.Errorf("invalid client name %q", name)
	}
	if _, ok := n.manager.Get(name); ok {
		return fmt.Errorf("client %s is migrating", name)
	}
	return n.clients.connect(name, conn)
}

// Disconnect closes the connection of a local client. A migration that did
// not send the flip yet is aborted.
func (n *Node) Disconnect(name string) error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if _, ok := n.clients.get(name); !ok {
		return fmt.Errorf("client %s not connected", name)
	}

	if m, ok := n.manager.Get(name); ok && m.Source == n.tree.Self() && !m.FlipSent() {
		if err := n.manager.Abort(name, "client quit"); err != nil {
			n.logger.WithError(err).Error("Aborting migration")
		}
	}

	n.clients.remove(name)
	return nil
}

// SetClientState records a piece of state that lives only on the server the
// client is connected to, and travels with the client when it migrates.
func (n *Node) SetClientState(name, key, value string) error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	c, ok := n.clients.get(name)
	if !ok {
		return fmt.Errorf("client %s not connected", name)
	}
	c.state[key] = value
	return nil
}

// ClientState returns a copy of the local-only state of a client.
func (n *Node) ClientState(name string) map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.clients.stateOf(name)
}

// Clients returns the names of the local clients, including those buffered
// here while migrating.
func (n *Node) Clients() []string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.clients.names()
}

// Say sends a line from a local client to another client, wherever it is
// connected. MIGRATE OK is the last line processed from a client migrating
// away, so a client past that point is refused.
func (n *Node) Say(sender, recipient, text string) error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	c, ok := n.clients.get(sender)
	if !ok || c.conn == nil {
		return fmt.Errorf("client %s not connected", sender)
	}
	if m, ok := n.manager.Get(sender); ok && m.Source == n.tree.Self() && m.State != migration.Requested {
		return migration.NewError(migration.BadState, sender, "client is migrating away")
	}

	msg := &net.MessageRequest{
		From:      n.tree.Self(),
		Origin:    n.tree.Self(),
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
	}

	n.deliver(msg)
	n.flood(msg, "")

	return nil
}

// StartMigration offers a local client to move to destination.
func (n *Node) StartMigration(client, destination string) (*migration.Migration, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	m, err := n.manager.Start(client, destination)
	if err != nil {
		return nil, err
	}
	return m.Copy(), nil
}

// ConfirmMigration handles a client's MIGRATE OK.
func (n *Node) ConfirmMigration(client, token string) error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.manager.Confirm(client, migration.Token(token))
}

// AbortMigration abandons a migration that has not sent the flip yet.
func (n *Node) AbortMigration(client, reason string) error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.manager.Abort(client, reason)
}

// Resume handles the resume handshake of a connection that claims to be a
// client migrating here. It returns the name of the resumed client.
func (n *Node) Resume(conn Conn, token string) (string, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	m, err := n.manager.Lookup(migration.Token(token))
	if err != nil {
		return "", err
	}
	if m.Destination != n.tree.Self() {
		return "", migration.NewError(migration.BadState, m.Client, "client is not migrating here")
	}

	migrant := n.clients.addMigrant(conn)
	if err := n.manager.Resume(m.Client, migrant); err != nil {
		n.clients.dropMigrant(migrant)
		return "", err
	}

	return m.Client, nil
}

/*******************************************************************************
Inspection
*******************************************************************************/

// GetMigration returns a copy of the migration of a client.
func (n *Node) GetMigration(client string) (*migration.Migration, bool) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	m, ok := n.manager.Get(client)
	if !ok {
		return nil, false
	}
	return m.Copy(), true
}

// GetMigrations returns a copy of every live migration.
func (n *Node) GetMigrations() []*migration.Migration {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.manager.Migrations()
}

// GetTree returns the servers of the tree.
func (n *Node) GetTree() []*tree.Server {
	return n.tree.Servers()
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	pending := 0
	for _, l := range n.links {
		pending += l.pending()
	}

	return map[string]string{
		"name":         n.tree.Self(),
		"state":        n.getState().String(),
		"servers":      strconv.Itoa(n.tree.Len()),
		"neighbors":    strconv.Itoa(len(n.links)),
		"clients":      strconv.Itoa(len(n.clients.clients)),
		"migrations":   strconv.Itoa(n.store.Len()),
		"pending_rpcs": strconv.Itoa(pending),
		"rpcs_in":      strconv.Itoa(n.rpcsIn),
		"messages_out": strconv.Itoa(n.messagesOut),
		"fail_safes":   strconv.Itoa(n.failSafes),
		"replays":      strconv.Itoa(n.replays),
		"uptime":       time.Since(n.start).Round(time.Second).String(),
		"store":        storeType(n.store),
		"transport":    n.trans.AdvertiseAddr(),
		"buffer_limit": strconv.Itoa(n.conf.BufferLimit),
		"timeout":      n.conf.TCPTimeout.String(),
	}
}

func storeType(s migration.Store) string {
	if s.StorePath() == "" {
		return "inmem"
	}
	return "badger"
}
