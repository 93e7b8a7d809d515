package migration

import (
	"github.com/mosaicnetworks/relay/src/metrics"
	"github.com/sirupsen/logrus"
)

// Manager creates, advances and destroys the migration records of a server.
// It is not safe for concurrent use; the node serialises every call.
type Manager struct {
	topo   Topology
	store  Store
	conns  Connections
	outbox Outbox
	tokens TokenSource

	logger *logrus.Entry
}

// NewManager creates a Manager. If tokens is nil, RandomTokens is used.
func NewManager(topo Topology,
	store Store,
	conns Connections,
	outbox Outbox,
	tokens TokenSource,
	logger *logrus.Entry) *Manager {

	if tokens == nil {
		tokens = RandomTokens()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Manager{
		topo:   topo,
		store:  store,
		conns:  conns,
		outbox: outbox,
		tokens: tokens,
		logger: logger.WithField("this_id", topo.Self()),
	}
}

// SetTopology replaces the view of the tree, after the tree is reloaded.
func (m *Manager) SetTopology(topo Topology) {
	m.topo = topo
}

// Get returns the migration of a client, if any.
func (m *Manager) Get(client string) (*Migration, bool) {
	mig, err := m.store.ByClient(client)
	if err != nil {
		return nil, false
	}
	return mig, true
}

// Migrations returns a copy of every live migration.
func (m *Manager) Migrations() []*Migration {
	all := m.store.All()
	res := make([]*Migration, len(all))
	for i, mig := range all {
		res[i] = mig.Copy()
	}
	return res
}

// SkipOutput applies the output oracle to a message for client that
// originated at source.
func (m *Manager) SkipOutput(client, source string) (bool, error) {
	mig, _ := m.Get(client)
	return SkipOutput(m.topo, mig, m.conns.IsLocal(client), source)
}

/*******************************************************************************
Source side
*******************************************************************************/

// Start offers a migration to destination to a locally connected client.
func (m *Manager) Start(client, destination string) (*Migration, error) {
	self := m.topo.Self()

	if client == "" {
		return nil, NewError(InvariantViolation, "", "starting a migration without a client")
	}
	if !m.conns.IsLocal(client) {
		return nil, NewError(UnknownClient, client, "client is not connected here")
	}
	if destination == self {
		return nil, NewError(BadState, client, "client is already connected to the destination")
	}
	if m.topo.Depth(destination) < 0 {
		return nil, newErrorf(BadState, client, "unknown destination %q", destination)
	}

	mig := NewMigration(client, self, destination)
	if err := m.register(mig); err != nil {
		return nil, err
	}
	metrics.RecordEvent(metrics.EventStarted)

	m.logger.WithFields(logrus.Fields{
		"client":      client,
		"destination": destination,
	}).Debug("Migration requested")

	if err := m.outbox.SendStart(mig); err != nil {
		return nil, m.abandon(mig, err)
	}

	return mig, nil
}

// register stores a new migration with fresh tokens, drawing new ones while
// they collide with a live migration.
func (m *Manager) register(mig *Migration) error {
	var err error
	for i := 0; i < maxTokenAttempts; i++ {
		if mig.ResumeToken, err = m.tokens.NewToken(); err != nil {
			return err
		}
		if mig.ConfirmToken, err = m.tokens.NewToken(); err != nil {
			return err
		}

		err = m.store.Register(mig)
		if !Is(err, TokenCollision) {
			return err
		}

		m.logger.WithField("client", mig.Client).Debug("Token collision")
	}
	return err
}

// abandon drops a migration that could not get past the handoff and returns
// the AbortedMigration error to report.
func (m *Manager) abandon(mig *Migration, cause error) error {
	wasHandoff := mig.State == Handoff

	mig.setState(Aborted)
	if err := m.store.Remove(mig); err != nil {
		m.logger.WithError(err).Error("Removing abandoned migration")
	}
	metrics.RecordEvent(metrics.EventAborted)

	if wasHandoff {
		if err := m.outbox.SendAbort(mig, cause.Error()); err != nil {
			m.logger.WithError(err).Error("Sending abort")
		}
	}

	m.logger.WithFields(logrus.Fields{
		"client":      mig.Client,
		"destination": mig.Destination,
		"error":       cause,
	}).Warn("Migration abandoned")

	return newErrorf(AbortedMigration, mig.Client, "%v", cause)
}

func (m *Manager) sourceRecord(client string) (*Migration, error) {
	mig, err := m.store.ByClient(client)
	if err != nil {
		return nil, err
	}
	if mig.Destination == m.topo.Self() {
		return nil, NewError(BadState, client, "client is migrating here")
	}
	return mig, nil
}

// Confirm handles the client's MIGRATE OK by shipping the handoff to the
// destination.
func (m *Manager) Confirm(client string, token Token) error {
	mig, err := m.sourceRecord(client)
	if err != nil {
		return err
	}
	if mig.State != Requested {
		return newErrorf(BadState, client, "confirming a migration in state %s", mig.State)
	}
	if token != mig.ConfirmToken {
		return NewError(BadToken, client, "confirm token does not match")
	}

	mig.setState(Handoff)
	if err := m.store.Update(mig); err != nil {
		return err
	}

	if err := m.outbox.SendHandoff(mig); err != nil {
		return m.abandon(mig, err)
	}

	return nil
}

// HandoffComplete handles the destination's reply to the handoff by sending
// the flip.
func (m *Manager) HandoffComplete(client string) error {
	mig, err := m.sourceRecord(client)
	if err != nil {
		return err
	}
	if mig.State != Handoff {
		return newErrorf(BadState, client, "handoff completed in state %s", mig.State)
	}

	// The frontier must be set before any ack can be processed.
	mig.FurthestAck = m.topo.Self()
	mig.setState(FlipSent)
	if err := m.store.Update(mig); err != nil {
		return err
	}
	metrics.RecordEvent(metrics.EventFlipped)

	m.logger.WithFields(logrus.Fields{
		"client":      client,
		"destination": mig.Destination,
	}).Debug("Flip sent")

	return m.outbox.BroadcastFlip(mig)
}

// Ack handles the flip acknowledgement of server. It reports whether the
// frontier advanced. Once the destination has acknowledged, the client is
// told to proceed.
func (m *Manager) Ack(client, server string) (bool, error) {
	mig, err := m.sourceRecord(client)
	if err != nil {
		return false, err
	}

	if mig.State != FlipSent {
		metrics.RecordAck(false)
		return false, nil
	}

	advanced := Advance(m.topo, mig, server)
	metrics.RecordAck(advanced)
	if !advanced {
		m.logger.WithFields(logrus.Fields{
			"client":       client,
			"from":         server,
			"furthest_ack": mig.FurthestAck,
		}).Debug("Ignoring flip ack")
		return false, nil
	}

	if !mig.FullyAcked() {
		return true, m.store.Update(mig)
	}

	mig.setState(Acked)
	metrics.RecordEvent(metrics.EventAcked)

	// The destination is responsible from now on, whether or not the client
	// hears the PROCEED. Its resume token stays valid there.
	proceedErr := m.outbox.SendProceed(mig)
	mig.setState(AwaitingResume)

	if err := m.store.Update(mig); err != nil {
		return true, err
	}

	m.logger.WithFields(logrus.Fields{
		"client":      client,
		"destination": mig.Destination,
		"proceed_err": proceedErr,
	}).Debug("Flip fully acknowledged")

	return true, proceedErr
}

// Abort abandons a migration that has not sent the flip yet. If the handoff
// was shipped, the destination is told to discard it.
func (m *Manager) Abort(client, reason string) error {
	mig, err := m.sourceRecord(client)
	if err != nil {
		return err
	}
	if mig.State != Requested && mig.State != Handoff {
		return newErrorf(BadState, client, "cannot abort a migration in state %s", mig.State)
	}

	wasHandoff := mig.State == Handoff

	mig.setState(Aborted)
	if err := m.store.Remove(mig); err != nil {
		return err
	}
	metrics.RecordEvent(metrics.EventAborted)

	m.logger.WithFields(logrus.Fields{
		"client": client,
		"reason": reason,
	}).Debug("Migration aborted")

	if wasHandoff {
		return m.outbox.SendAbort(mig, reason)
	}
	return nil
}

// Release drops the source record once the destination reports the resume.
func (m *Manager) Release(client string) error {
	mig, err := m.sourceRecord(client)
	if err != nil {
		return err
	}
	if mig.State != AwaitingResume {
		return newErrorf(BadState, client, "releasing a migration in state %s", mig.State)
	}

	mig.setState(Resumed)
	if err := m.store.Remove(mig); err != nil {
		return err
	}
	metrics.RecordEvent(metrics.EventReleased)

	return nil
}

/*******************************************************************************
Destination side
*******************************************************************************/

func (m *Manager) destinationRecord(client string) (*Migration, error) {
	mig, err := m.store.ByClient(client)
	if err != nil {
		return nil, err
	}
	if mig.Destination != m.topo.Self() {
		return nil, NewError(BadState, client, "client is not migrating here")
	}
	return mig, nil
}

// Accept registers a handoff shipped by source and replies to it.
func (m *Manager) Accept(client, source string, resume, confirm Token) (*Migration, error) {
	if client == "" {
		return nil, NewError(InvariantViolation, "", "handoff without a client")
	}
	if m.topo.Depth(source) <= 0 {
		return nil, newErrorf(BadState, client, "handoff from unknown source %q", source)
	}

	mig := NewMigration(client, source, m.topo.Self())
	mig.ResumeToken = resume
	mig.ConfirmToken = confirm
	mig.setState(Handoff)

	if err := m.store.Register(mig); err != nil {
		return nil, err
	}
	metrics.RecordEvent(metrics.EventAccepted)

	m.logger.WithFields(logrus.Fields{
		"client": client,
		"source": source,
	}).Debug("Handoff accepted")

	if err := m.outbox.SendHandoffDone(mig); err != nil {
		return mig, err
	}
	return mig, nil
}

// Flip handles the arrival of the flip for a client migrating here. From now
// on the output for the client is buffered here.
func (m *Manager) Flip(client string) error {
	mig, err := m.destinationRecord(client)
	if err != nil {
		return err
	}
	if mig.State != Handoff {
		return newErrorf(BadState, client, "flip received in state %s", mig.State)
	}

	if err := m.conns.Buffer(client); err != nil {
		return err
	}

	mig.setState(AwaitingResume)
	return m.store.Update(mig)
}

// Lookup returns the migration a resume token belongs to. It has no side
// effects.
func (m *Manager) Lookup(token Token) (*Migration, error) {
	return m.store.ByResumeToken(token)
}

// Resume completes the migration of client, whose connection arrived as
// migrant. The connection is transferred to client, the buffered output is
// flushed, and the source is told to release its record.
func (m *Manager) Resume(client, migrant string) error {
	if client == "" || migrant == "" {
		return NewError(InvariantViolation, client, "resume without a client or a migrant")
	}

	mig, err := m.store.ByClient(client)
	if err != nil {
		return NewError(InvariantViolation, client, "resuming a client with no migration")
	}
	if mig.Destination != m.topo.Self() || mig.State != AwaitingResume {
		return newErrorf(BadState, client, "resuming a migration in state %s", mig.State)
	}

	if err := m.conns.Transfer(client, migrant); err != nil {
		return err
	}
	if err := m.conns.Flush(client); err != nil {
		if rerr := m.conns.Restore(client, migrant); rerr != nil {
			m.logger.WithFields(logrus.Fields{
				"client":  client,
				"migrant": migrant,
				"error":   rerr,
			}).Error("Restoring buffered output")
		}
		return err
	}

	mig.setState(Resumed)
	if err := m.store.Remove(mig); err != nil {
		return err
	}
	metrics.RecordEvent(metrics.EventResumed)

	m.logger.WithFields(logrus.Fields{
		"client": client,
		"source": mig.Source,
	}).Debug("Client resumed")

	return m.outbox.SendResumed(mig)
}

// Discard drops a handoff the source abandoned.
func (m *Manager) Discard(client, reason string) error {
	mig, err := m.destinationRecord(client)
	if err != nil {
		return err
	}
	if mig.State != Handoff {
		return newErrorf(BadState, client, "discarding a migration in state %s", mig.State)
	}

	mig.setState(Aborted)
	if err := m.store.Remove(mig); err != nil {
		return err
	}
	metrics.RecordEvent(metrics.EventAborted)

	m.logger.WithFields(logrus.Fields{
		"client": client,
		"reason": reason,
	}).Debug("Handoff discarded")

	return nil
}
