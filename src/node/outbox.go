package node

import (
	"fmt"

	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/net"
)

// outbox carries the side effects of the migration lifecycle to the clients
// and the network. It is only used under the node's coreLock.
type outbox struct {
	node *Node
}

var _ migration.Outbox = (*outbox)(nil)

func (o *outbox) SendStart(m *migration.Migration) error {
	return o.node.clients.send(m.Client,
		fmt.Sprintf("MIGRATE START %s %s", m.Destination, m.ConfirmToken))
}

func (o *outbox) SendHandoff(m *migration.Migration) error {
	self := o.node.tree.Self()
	return o.node.route(m.Destination, &net.HandoffRequest{
		From:         self,
		Origin:       self,
		Target:       m.Destination,
		Client:       m.Client,
		ResumeToken:  string(m.ResumeToken),
		ConfirmToken: string(m.ConfirmToken),
		State:        o.node.clients.stateOf(m.Client),
	})
}

func (o *outbox) SendHandoffDone(m *migration.Migration) error {
	self := o.node.tree.Self()
	return o.node.route(m.Source, &net.HandoffDoneRequest{
		From:   self,
		Origin: self,
		Target: m.Source,
		Client: m.Client,
	})
}

func (o *outbox) BroadcastFlip(m *migration.Migration) error {
	self := o.node.tree.Self()
	o.node.flood(&net.FlipRequest{
		From:        self,
		Origin:      self,
		Client:      m.Client,
		Destination: m.Destination,
	}, "")
	return nil
}

func (o *outbox) SendProceed(m *migration.Migration) error {
	err := o.node.clients.send(m.Client,
		fmt.Sprintf("MIGRATE PROCEED %s %s", m.Destination, m.ResumeToken))
	o.node.clients.remove(m.Client)
	return err
}

func (o *outbox) SendResumed(m *migration.Migration) error {
	self := o.node.tree.Self()
	return o.node.route(m.Source, &net.ResumedRequest{
		From:   self,
		Origin: self,
		Target: m.Source,
		Client: m.Client,
	})
}

func (o *outbox) SendAbort(m *migration.Migration, reason string) error {
	self := o.node.tree.Self()
	return o.node.route(m.Destination, &net.AbortRequest{
		From:   self,
		Origin: self,
		Target: m.Destination,
		Client: m.Client,
		Reason: reason,
	})
}
