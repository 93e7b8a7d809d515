// Package relay wires the components of a relay server together.
package relay

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/relay/src/config"
	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/net"
	"github.com/mosaicnetworks/relay/src/node"
	"github.com/mosaicnetworks/relay/src/service"
	"github.com/mosaicnetworks/relay/src/tree"
	"github.com/sirupsen/logrus"
)

// Relay is the engine of a relay server. Init creates the tree, the store,
// the transport, the node and the service from the Config; Run starts them.
type Relay struct {
	Config    *config.Config
	Tree      *tree.Tree
	Store     migration.Store
	Transport net.Transport
	Node      *node.Node
	Service   *service.Service

	logger *logrus.Entry
}

// NewRelay creates a relay engine. A Transport or Tree set on the returned
// value before Init is used instead of the one Init would create.
func NewRelay(conf *config.Config) *Relay {
	return &Relay{
		Config: conf,
		logger: conf.Logger(),
	}
}

func (r *Relay) initTree() error {
	if r.Tree != nil {
		return nil
	}

	if r.Config.Name == "" {
		return fmt.Errorf("server name is not set")
	}

	jsonTree := tree.NewJSONTree(r.Config.DataDir)
	tr, err := jsonTree.Tree(r.Config.Name)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"servers":   tr.Len(),
		"neighbors": tr.Neighbors(),
	}).Debug("Loaded tree")

	r.Tree = tr
	return nil
}

func (r *Relay) initStore() error {
	if !r.Config.Store {
		r.Store = migration.NewInmemStore()
		r.logger.Debug("created new in-mem store")
		return nil
	}

	r.logger.WithField("path", r.Config.DatabaseDir).Debug("Attempting to load or create database")

	store, err := migration.LoadOrCreateBadgerStore(r.Config.DatabaseDir, r.logger)
	if err != nil {
		return err
	}

	if store.Loaded() {
		r.logger.WithField("migrations", store.Len()).Debug("loaded badger store from existing database")
	} else {
		r.logger.Debug("created new badger store from fresh database")
	}

	r.Store = store
	return nil
}

func (r *Relay) initTransport() error {
	if r.Transport != nil {
		return nil
	}

	trans, err := net.NewTCPTransport(
		r.Config.BindAddr,
		r.Config.AdvertiseAddr,
		r.Config.MaxPool,
		r.Config.TCPTimeout,
		r.logger,
	)
	if err != nil {
		return err
	}

	r.Transport = trans
	return nil
}

func (r *Relay) initNode() error {
	nodeConf := node.NewConfig(r.Config.TCPTimeout,
		r.Config.BufferLimit,
		r.logger.Logger)

	r.Node = node.NewNode(nodeConf, r.Tree, r.Store, r.Transport)

	if err := r.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (r *Relay) initService() error {
	if !r.Config.NoService {
		r.Service = service.NewService(r.Config.ServiceAddr, r.Node, r.logger)
	}
	return nil
}

// Init initialises the relay engine
func (r *Relay) Init() error {
	if err := r.initTree(); err != nil {
		return err
	}

	if err := r.initStore(); err != nil {
		return err
	}

	if err := r.initTransport(); err != nil {
		return err
	}

	if err := r.initNode(); err != nil {
		return err
	}

	if err := r.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the service, the transport and the node, and blocks until the
// process is interrupted.
func (r *Relay) Run() {
	if r.Service != nil {
		go r.Service.Serve()
	}

	go r.Transport.Listen()

	r.Node.RunAsync()

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGTERM)
	<-sigintCh

	r.logger.Debug("Reacting to SIGINT")
	r.Shutdown()
}

// Shutdown stops the node, which closes the transport and the store.
func (r *Relay) Shutdown() {
	r.Node.Shutdown()
}
