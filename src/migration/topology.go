package migration

// Topology is the view of the server tree the migration core needs. It is
// rooted at the local server: Parent(x) is the server through which x reaches
// Self(). *tree.Tree implements it.
type Topology interface {
	Self() string
	Parent(server string) (string, bool)
	// Depth is the number of links between server and Self(), -1 if unknown.
	Depth(server string) int
}

// Connections is the connection-registration subsystem.
type Connections interface {
	// IsLocal reports whether client is connected here, or is pseudo-local
	// because its output is being buffered here.
	IsLocal(client string) bool
	// Buffer starts buffering output for a client migrating here.
	Buffer(client string) error
	// Transfer moves the connection of migrant to client and discards
	// migrant.
	Transfer(client, migrant string) error
	// Flush sends the output buffered for client, in arrival order. Lines
	// that could not be sent stay buffered.
	Flush(client string) error
	// Restore undoes Transfer: the connection goes back to migrant and the
	// output of client is buffered again.
	Restore(client, migrant string) error
}

// Outbox carries the side effects of the lifecycle to clients and servers.
type Outbox interface {
	// SendStart sends MIGRATE START to the client.
	SendStart(m *Migration) error
	// SendHandoff ships the local-only client state to the destination.
	SendHandoff(m *Migration) error
	// SendHandoffDone tells the source that the handoff was accepted.
	SendHandoffDone(m *Migration) error
	// BroadcastFlip sends the flip to every server.
	BroadcastFlip(m *Migration) error
	// SendProceed sends MIGRATE PROCEED to the client and closes its
	// connection.
	SendProceed(m *Migration) error
	// SendResumed tells the source that the client resumed.
	SendResumed(m *Migration) error
	// SendAbort tells the destination to discard an accepted handoff.
	SendAbort(m *Migration, reason string) error
}

// onDirectPath reports whether server lies on the path between Self() and
// dest, both ends included.
func onDirectPath(topo Topology, dest, server string) bool {
	self := topo.Self()
	cur := dest
	for steps := topo.Depth(dest); steps >= 0; steps-- {
		if cur == server {
			return true
		}
		if cur == self {
			return false
		}
		parent, ok := topo.Parent(cur)
		if !ok {
			return false
		}
		cur = parent
	}
	return false
}
