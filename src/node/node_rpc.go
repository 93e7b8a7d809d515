package node

import (
	"fmt"

	"github.com/mosaicnetworks/relay/src/metrics"
	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/net"
	"github.com/sirupsen/logrus"
)

func (n *Node) processRPC(rpc net.RPC) {
	n.rpcsIn++
	metrics.RecordRPC(net.CommandName(rpc.Command), true)

	if !n.fresh(rpc.Command) {
		n.replays++
		n.logger.WithField("command", net.CommandName(rpc.Command)).Debug("Dropping replayed RPC")
		rpc.Respond(&net.Response{From: n.tree.Self()}, nil)
		return
	}

	var err error

	switch cmd := rpc.Command.(type) {
	case *net.HandoffRequest:
		err = n.processHandoff(cmd)
	case *net.HandoffDoneRequest:
		err = n.processHandoffDone(cmd)
	case *net.FlipRequest:
		err = n.processFlip(cmd)
	case *net.FlipAckRequest:
		err = n.processFlipAck(cmd)
	case *net.AbortRequest:
		err = n.processAbort(cmd)
	case *net.ResumedRequest:
		err = n.processResumed(cmd)
	case *net.MessageRequest:
		n.processMessage(cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
		return
	}

	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"command": net.CommandName(rpc.Command),
			"error":   err,
		}).Error("Processing RPC")
	}

	// Protocol errors are not the sender's problem. The reply only orders
	// the link.
	rpc.Respond(&net.Response{From: n.tree.Self()}, nil)
}

// fresh records the Sequence of cmd and reports whether cmd was not
// processed before. Requests without a Sequence are always fresh.
func (n *Node) fresh(cmd interface{}) bool {
	from, seq, ok := net.SequenceOf(cmd)
	if !ok || seq.Seq == 0 {
		return true
	}
	if last, ok := n.lastSeq[from]; ok && !seq.Newer(last) {
		return false
	}
	n.lastSeq[from] = seq
	return true
}

func (n *Node) processHandoff(cmd *net.HandoffRequest) error {
	if cmd.Target != n.tree.Self() {
		fwd := *cmd
		fwd.From = n.tree.Self()
		return n.route(cmd.Target, &fwd)
	}

	_, err := n.manager.Accept(cmd.Client,
		cmd.Origin,
		migration.Token(cmd.ResumeToken),
		migration.Token(cmd.ConfirmToken))
	if err != nil {
		return err
	}

	n.clients.stageHandoff(cmd.Client, cmd.State)
	return nil
}

func (n *Node) processHandoffDone(cmd *net.HandoffDoneRequest) error {
	if cmd.Target != n.tree.Self() {
		fwd := *cmd
		fwd.From = n.tree.Self()
		return n.route(cmd.Target, &fwd)
	}
	return n.manager.HandoffComplete(cmd.Client)
}

// processFlip takes over the output for the client if it is migrating here,
// acknowledges the flip if this server is on the direct path, and passes the
// flip on.
func (n *Node) processFlip(cmd *net.FlipRequest) error {
	self := n.tree.Self()

	var err error
	if cmd.Destination == self {
		err = n.manager.Flip(cmd.Client)
	}

	if n.onDirectPath(cmd.Origin, cmd.Destination) {
		ack := &net.FlipAckRequest{
			From:   self,
			Origin: self,
			Target: cmd.Origin,
			Client: cmd.Client,
		}
		if rerr := n.route(cmd.Origin, ack); rerr != nil && err == nil {
			err = rerr
		}
	}

	fwd := *cmd
	fwd.From = self
	n.flood(&fwd, cmd.From)

	return err
}

func (n *Node) processFlipAck(cmd *net.FlipAckRequest) error {
	if cmd.Target != n.tree.Self() {
		fwd := *cmd
		fwd.From = n.tree.Self()
		return n.route(cmd.Target, &fwd)
	}

	advanced, err := n.manager.Ack(cmd.Client, cmd.Origin)
	if err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"client":   cmd.Client,
		"from":     cmd.Origin,
		"advanced": advanced,
	}).Debug("Flip ack")

	return nil
}

func (n *Node) processAbort(cmd *net.AbortRequest) error {
	if cmd.Target != n.tree.Self() {
		fwd := *cmd
		fwd.From = n.tree.Self()
		return n.route(cmd.Target, &fwd)
	}

	n.clients.dropHandoff(cmd.Client)
	return n.manager.Discard(cmd.Client, cmd.Reason)
}

func (n *Node) processResumed(cmd *net.ResumedRequest) error {
	if cmd.Target != n.tree.Self() {
		fwd := *cmd
		fwd.From = n.tree.Self()
		return n.route(cmd.Target, &fwd)
	}
	return n.manager.Release(cmd.Client)
}

func (n *Node) processMessage(cmd *net.MessageRequest) {
	n.deliver(cmd)

	fwd := *cmd
	fwd.From = n.tree.Self()
	n.flood(&fwd, cmd.From)
}

// deliver outputs a message to its recipient if it is connected here and this
// server is responsible for the message.
func (n *Node) deliver(msg *net.MessageRequest) {
	m, migrating := n.manager.Get(msg.Recipient)
	if !migrating && !n.clients.IsLocal(msg.Recipient) {
		return
	}

	if migrating {
		skip, err := n.manager.SkipOutput(msg.Recipient, msg.Origin)
		if err != nil {
			n.failSafes++
			metrics.RecordDecision(metrics.DecisionFailSafe)
			n.logger.WithFields(logrus.Fields{
				"client":       m.Client,
				"source":       m.Source,
				"destination":  m.Destination,
				"furthest_ack": m.FurthestAck,
				"state":        m.State,
				"origin":       msg.Origin,
				"error":        err,
			}).Error("Output decision failed, delivering")
			skip = false
		} else if skip {
			metrics.RecordDecision(metrics.DecisionSkip)
		} else {
			metrics.RecordDecision(metrics.DecisionDeliver)
		}

		if skip || !n.clients.IsLocal(msg.Recipient) {
			return
		}
	}

	if err := n.clients.send(msg.Recipient, formatMessage(msg)); err != nil {
		n.logger.WithFields(logrus.Fields{
			"client": msg.Recipient,
			"error":  err,
		}).Error("Delivering message")
		return
	}
	n.messagesOut++
}

func formatMessage(msg *net.MessageRequest) string {
	return fmt.Sprintf("MSG %s %s", msg.Sender, msg.Text)
}

// route sends a unicast request one hop closer to target.
func (n *Node) route(target string, cmd interface{}) error {
	hop, err := n.tree.NextHop(target)
	if err != nil {
		return err
	}
	l, ok := n.links[hop]
	if !ok {
		return fmt.Errorf("no link to %s", hop)
	}
	l.enqueue(cmd)
	return nil
}

// flood sends a request to every neighbor but the one it came from.
func (n *Node) flood(cmd interface{}, except string) {
	for name, l := range n.links {
		if name == except {
			continue
		}
		l.enqueue(cmd)
	}
}

// onDirectPath reports whether this server lies on the path from source to
// destination, source excluded.
func (n *Node) onDirectPath(source, destination string) bool {
	self := n.tree.Self()
	if source == self {
		return false
	}
	if destination == self {
		return true
	}
	toSource, err := n.tree.NextHop(source)
	if err != nil {
		return false
	}
	toDest, err := n.tree.NextHop(destination)
	if err != nil {
		return false
	}
	return toSource != toDest
}
